package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all flowsim configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	GraphPath   string  `json:"graph_path"`
	DBPath      string  `json:"db_path"`
	LogLevel    string  `json:"log_level"`
	BaseDelayMs int     `json:"base_delay_ms"`
	Speed       float64 `json:"speed"`
}

func defaultConfig() Config {
	return Config{
		GraphPath:   "workflow.json",
		DBPath:      filepath.Join(flowsimDir(), "flowsim.db"),
		LogLevel:    "info",
		BaseDelayMs: 800,
		Speed:       1,
	}
}

func flowsimDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowsim"
	}
	return filepath.Join(home, ".flowsim")
}

func settingsPath() string {
	return filepath.Join(flowsimDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWSIM_GRAPH_PATH"); v != "" {
		cfg.GraphPath = v
	}
	if v := os.Getenv("FLOWSIM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWSIM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWSIM_BASE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BaseDelayMs = n
		}
	}
	if v := os.Getenv("FLOWSIM_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Speed = f
		}
	}

	return cfg
}

// BaseDelay converts the configured per-node delay to a duration.
func (c Config) BaseDelay() time.Duration {
	if c.BaseDelayMs < 0 {
		return 0
	}
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}
