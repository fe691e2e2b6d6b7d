package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := loadConfig()
	assert.Equal(t, "workflow.json", cfg.GraphPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 800, cfg.BaseDelayMs)
	assert.Equal(t, 1.0, cfg.Speed)
	assert.Equal(t, 800*time.Millisecond, cfg.BaseDelay())
}

func TestConfigSettingsFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".flowsim")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	settings := Config{GraphPath: "custom.json", LogLevel: "debug", BaseDelayMs: 100, Speed: 2}
	data, err := json.Marshal(settings)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), data, 0o644))

	cfg := loadConfig()
	assert.Equal(t, "custom.json", cfg.GraphPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 100, cfg.BaseDelayMs)
	assert.Equal(t, 2.0, cfg.Speed)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLOWSIM_GRAPH_PATH", "/tmp/graph.json")
	t.Setenv("FLOWSIM_LOG_LEVEL", "warn")
	t.Setenv("FLOWSIM_BASE_DELAY_MS", "50")
	t.Setenv("FLOWSIM_SPEED", "4")

	cfg := loadConfig()
	assert.Equal(t, "/tmp/graph.json", cfg.GraphPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 50, cfg.BaseDelayMs)
	assert.Equal(t, 4.0, cfg.Speed)
}

func TestConfigEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLOWSIM_BASE_DELAY_MS", "not-a-number")
	t.Setenv("FLOWSIM_SPEED", "-2")

	cfg := loadConfig()
	assert.Equal(t, 800, cfg.BaseDelayMs)
	assert.Equal(t, 1.0, cfg.Speed)
}

func TestBaseDelayClampsNegative(t *testing.T) {
	cfg := Config{BaseDelayMs: -5}
	assert.Equal(t, time.Duration(0), cfg.BaseDelay())
}

func TestLoadGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"nodes": [
			{"id": "t1", "type": "trigger", "data": {"label": "Deal created"}},
			{"id": "a1", "type": "action", "data": {"actionType": "add-note"}}
		],
		"edges": [{"source": "t1", "target": "a1"}]
	}`), 0o644))

	g, err := loadGraph(path)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 1)
	assert.Equal(t, "t1", g.Edges[0].Source)

	_, err = loadGraph(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
