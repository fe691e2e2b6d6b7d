package services

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/go-libsql"
)

//go:embed migrations/001_records.sql
var migration001 string

// migration holds a versioned SQL migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{Version: 1, Name: "records", SQL: migration001},
}

// LibSQLRecords implements RecordPersister on an embedded libSQL database.
type LibSQLRecords struct {
	db *sql.DB
}

// NewLibSQLRecords opens a libSQL database at the given path. The path
// should be a file URI, e.g. "file:/path/to/records.db".
func NewLibSQLRecords(dbPath string) (*LibSQLRecords, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLRecords{db: db}, nil
}

// Close closes the database.
func (s *LibSQLRecords) Close() error { return s.db.Close() }

// Migrate applies pending migrations.
func (s *LibSQLRecords) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		for _, stmt := range splitStatements(m.SQL) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// UpsertRecord inserts or updates a record keyed by (table, key). Fields
// are stored as a JSON document and merged shallowly on conflict.
func (s *LibSQLRecords) UpsertRecord(ctx context.Context, table, key string, fields map[string]any) (RecordRef, error) {
	if table == "" || key == "" {
		return RecordRef{}, fmt.Errorf("upsert record: table and key are required")
	}

	existing, found, err := s.getFields(ctx, table, key)
	if err != nil {
		return RecordRef{}, err
	}

	merged := fields
	if found {
		merged = make(map[string]any, len(existing)+len(fields))
		for k, v := range existing {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return RecordRef{}, fmt.Errorf("marshal record fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (table_name, record_key, fields) VALUES (?, ?, ?)
		 ON CONFLICT(table_name, record_key) DO UPDATE SET fields=excluded.fields, updated_at=CURRENT_TIMESTAMP`,
		table, key, string(doc),
	)
	if err != nil {
		return RecordRef{}, fmt.Errorf("upsert record %s/%s: %w", table, key, err)
	}

	return RecordRef{Table: table, Key: key, Created: !found}, nil
}

// GetRecord returns the stored fields for a record, or nil if absent.
func (s *LibSQLRecords) GetRecord(ctx context.Context, table, key string) (map[string]any, error) {
	fields, found, err := s.getFields(ctx, table, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return fields, nil
}

func (s *LibSQLRecords) getFields(ctx context.Context, table, key string) (map[string]any, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM records WHERE table_name = ? AND record_key = ?`, table, key,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return nil, false, fmt.Errorf("decode record %s/%s: %w", table, key, err)
	}
	return fields, true, nil
}

// splitStatements splits a SQL script on semicolons, skipping comment-only
// fragments.
func splitStatements(script string) []string {
	var stmts []string
	for _, raw := range strings.Split(script, ";") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		hasCode := false
		for _, l := range strings.Split(s, "\n") {
			l = strings.TrimSpace(l)
			if l != "" && !strings.HasPrefix(l, "--") {
				hasCode = true
				break
			}
		}
		if hasCode {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
