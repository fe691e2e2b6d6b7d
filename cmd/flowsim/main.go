package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mellora/flowsim/internal/engine"
	"github.com/mellora/flowsim/internal/logging"
	"github.com/mellora/flowsim/internal/services"
	"github.com/mellora/flowsim/pkg/mcp"
	"github.com/mellora/flowsim/pkg/schema"
)

// graphFile is the on-disk workflow layout: a flat node/edge list as exported
// by the canvas editor.
type graphFile struct {
	Nodes []schema.Node `json:"nodes"`
	Edges []schema.Edge `json:"edges"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "flowsim:", err)
		os.Exit(1)
	}
}

// run serves the MCP control surface by default; "flowsim run [scenario]"
// executes one simulation and prints the trace instead.
func run(args []string) error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	graph, err := loadGraph(cfg.GraphPath)
	if err != nil {
		return err
	}

	collab, cleanup, err := buildCollaborators(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) > 0 && args[0] == "run" {
		scenario := ""
		if len(args) > 1 {
			scenario = args[1]
		}
		return runOnce(graph, collab, cfg, logger, scenario)
	}

	// The server is created after the engine, so the observer closes over a
	// variable assigned below. Snapshots before Serve go nowhere, which is
	// fine: no session is watching yet.
	var srv *mcp.FlowsimServer
	observer := func(snap schema.RunSnapshot) {
		if srv != nil {
			srv.HandleSnapshot(snap)
		}
	}

	eng, err := engine.New(graph.Nodes, graph.Edges, observer,
		engine.WithLogger(logger),
		engine.WithCollaborators(collab),
		engine.WithBaseDelay(cfg.BaseDelay()),
	)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", cfg.GraphPath, err)
	}
	if cfg.Speed > 0 {
		eng.SetSpeed(cfg.Speed)
	}

	srv = mcp.NewFlowsimServer(mcp.FlowsimServerDeps{
		Engine: eng,
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("flowsim ready", "graph", cfg.GraphPath, "nodes", len(graph.Nodes), "edges", len(graph.Edges))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	eng.Stop()
	logger.Info("flowsim shutting down")
	return nil
}

// runOnce executes a single simulation to completion, streaming each trace
// entry to stdout as it lands.
func runOnce(graph *graphFile, collab services.Collaborators, cfg Config, logger *slog.Logger, scenario string) error {
	var mu sync.Mutex
	var printed int
	observer := func(snap schema.RunSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		for ; printed < len(snap.Log); printed++ {
			entry := snap.Log[printed]
			fmt.Printf("%s  %-9s  %s\n", entry.Timestamp.Format("15:04:05.000"), entry.Kind, entry.Message)
		}
	}

	eng, err := engine.New(graph.Nodes, graph.Edges, observer,
		engine.WithLogger(logger),
		engine.WithCollaborators(collab),
		engine.WithBaseDelay(cfg.BaseDelay()),
	)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", cfg.GraphPath, err)
	}
	if cfg.Speed > 0 {
		eng.SetSpeed(cfg.Speed)
	}

	if err := eng.Start(scenario); err != nil {
		return err
	}
	for eng.Running() {
		time.Sleep(20 * time.Millisecond)
	}

	snap := eng.Snapshot()
	fmt.Printf("\nrun %s finished: %d nodes visited\n", snap.RunID, len(snap.Path))
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	// Stdout carries the MCP transport; logs go to stderr.
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func loadGraph(path string) (*graphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	var g graphFile
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph %s: %w", path, err)
	}
	return &g, nil
}

// buildCollaborators wires the record persister when a DB path is configured.
// Documents and messaging stay on engine mocks unless real services are
// attached here.
func buildCollaborators(cfg Config, logger *slog.Logger) (services.Collaborators, func(), error) {
	var collab services.Collaborators
	cleanup := func() {}

	if cfg.DBPath == "" {
		return collab, cleanup, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return collab, cleanup, fmt.Errorf("create db dir: %w", err)
	}

	records, err := services.NewLibSQLRecords("file:" + cfg.DBPath)
	if err != nil {
		// Record persistence is best-effort; the engine falls back to mocks.
		logger.Warn("record store unavailable, using mock persistence", "path", cfg.DBPath, "error", err)
		return collab, cleanup, nil
	}
	if err := records.Migrate(context.Background()); err != nil {
		logger.Warn("record store migration failed, using mock persistence", "path", cfg.DBPath, "error", err)
		_ = records.Close()
		return collab, cleanup, nil
	}

	collab.Records = records
	cleanup = func() { _ = records.Close() }
	logger.Info("record store attached", "path", cfg.DBPath)
	return collab, cleanup, nil
}
