package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecords(t *testing.T) *LibSQLRecords {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "records.db")
	s, err := NewLibSQLRecords("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func TestUpsertRecord_Insert(t *testing.T) {
	s := newTestRecords(t)
	ctx := context.Background()

	ref, err := s.UpsertRecord(ctx, "deals", "deal-1", map[string]any{
		"deal_name":  "Acme Renewal",
		"deal_value": float64(92000),
	})
	require.NoError(t, err)
	assert.True(t, ref.Created)
	assert.Equal(t, "deals", ref.Table)
	assert.Equal(t, "deal-1", ref.Key)

	got, err := s.GetRecord(ctx, "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Renewal", got["deal_name"])
	assert.Equal(t, float64(92000), got["deal_value"])
}

func TestUpsertRecord_UpdateMergesFields(t *testing.T) {
	s := newTestRecords(t)
	ctx := context.Background()

	_, err := s.UpsertRecord(ctx, "deals", "deal-1", map[string]any{
		"deal_name":  "Acme Renewal",
		"deal_stage": "proposal",
	})
	require.NoError(t, err)

	ref, err := s.UpsertRecord(ctx, "deals", "deal-1", map[string]any{
		"deal_stage": "negotiation",
	})
	require.NoError(t, err)
	assert.False(t, ref.Created)

	got, err := s.GetRecord(ctx, "deals", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Renewal", got["deal_name"], "untouched fields survive")
	assert.Equal(t, "negotiation", got["deal_stage"])
}

func TestUpsertRecord_RequiresTableAndKey(t *testing.T) {
	s := newTestRecords(t)
	ctx := context.Background()

	_, err := s.UpsertRecord(ctx, "", "k", nil)
	assert.Error(t, err)

	_, err = s.UpsertRecord(ctx, "deals", "", nil)
	assert.Error(t, err)
}

func TestGetRecord_Missing(t *testing.T) {
	s := newTestRecords(t)

	got, err := s.GetRecord(context.Background(), "deals", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordsIsolatedByTable(t *testing.T) {
	s := newTestRecords(t)
	ctx := context.Background()

	_, err := s.UpsertRecord(ctx, "deals", "x", map[string]any{"kind": "deal"})
	require.NoError(t, err)
	_, err = s.UpsertRecord(ctx, "contacts", "x", map[string]any{"kind": "contact"})
	require.NoError(t, err)

	deal, err := s.GetRecord(ctx, "deals", "x")
	require.NoError(t, err)
	assert.Equal(t, "deal", deal["kind"])

	contact, err := s.GetRecord(ctx, "contacts", "x")
	require.NoError(t, err)
	assert.Equal(t, "contact", contact["kind"])
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestRecords(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
