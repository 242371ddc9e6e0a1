package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	configPath := filepath.Join(tempDir, "config.yaml")
	configContent := `
server:
  host: "127.0.0.1"
  port: 9090

database:
  path: "/data/test.db"

execution:
  run_timeout: 10
  idle_threshold_ms: 250
  max_output_chars: 4096
  history_limit: 20

sandbox:
  c_image: "runner-c:test"
  memory_mb: 256

languages:
  python:
    command: "python3.12"
  javascript:
    backend: "browser"

env: "production"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Execution.RunTimeoutDuration() != 10*time.Second {
		t.Errorf("expected run timeout 10s, got %v", cfg.Execution.RunTimeoutDuration())
	}
	if cfg.Execution.IdleThreshold() != 250*time.Millisecond {
		t.Errorf("expected idle threshold 250ms, got %v", cfg.Execution.IdleThreshold())
	}
	if cfg.Execution.MaxOutputChars != 4096 {
		t.Errorf("expected output cap 4096, got %d", cfg.Execution.MaxOutputChars)
	}
	if cfg.Sandbox.CImage != "runner-c:test" {
		t.Errorf("expected c image runner-c:test, got %s", cfg.Sandbox.CImage)
	}
	if cfg.Languages.Python.Command != "python3.12" {
		t.Errorf("expected python3.12, got %s", cfg.Languages.Python.Command)
	}
	if cfg.Languages.JavaScript.Backend != "browser" {
		t.Errorf("expected browser backend, got %s", cfg.Languages.JavaScript.Backend)
	}
	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}

	// Unset fields fall back to defaults.
	if cfg.Execution.ContainerRunTimeout != 2 {
		t.Errorf("expected default container run timeout 2, got %d", cfg.Execution.ContainerRunTimeout)
	}
	if cfg.Languages.Java.Javac != "javac" {
		t.Errorf("expected default javac, got %s", cfg.Languages.Java.Javac)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Execution.RunTimeout != 5 {
		t.Errorf("expected default run timeout 5, got %d", cfg.Execution.RunTimeout)
	}
	if cfg.Execution.IdleThresholdMs != 500 {
		t.Errorf("expected default idle threshold 500ms, got %d", cfg.Execution.IdleThresholdMs)
	}
	if cfg.Execution.SilenceAfterMs != 3000 {
		t.Errorf("expected default silence threshold 3000ms, got %d", cfg.Execution.SilenceAfterMs)
	}
	if cfg.Execution.MaxOutputChars != 10000 {
		t.Errorf("expected default output cap 10000, got %d", cfg.Execution.MaxOutputChars)
	}
	if cfg.Execution.MaxContainerChars != 100000 {
		t.Errorf("expected default container cap 100000, got %d", cfg.Execution.MaxContainerChars)
	}
	if cfg.Sandbox.MemoryMB != 128 {
		t.Errorf("expected default memory 128MB, got %d", cfg.Sandbox.MemoryMB)
	}
	if !cfg.Languages.Java.JavaTerminal() {
		t.Error("expected java terminal mode enabled by default")
	}
	if cfg.IsProduction() {
		t.Error("expected development environment by default")
	}
}
