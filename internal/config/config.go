// Package config loads the YAML service configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Execution ExecutionConfig `yaml:"execution"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Languages LanguagesConfig `yaml:"languages"`
	Assist    AssistConfig    `yaml:"assist"`

	// Env gates operator-facing detail in error messages. Anything other
	// than "production" is treated as a development environment.
	Env string `yaml:"env"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ExecutionConfig holds the engine's timing and buffering knobs.
// All thresholds of the interactive-input heuristic live here so
// deployments can tune them (the heuristic is best-effort by nature).
type ExecutionConfig struct {
	RunTimeout          int `yaml:"run_timeout"`           // seconds, process backend run step
	CompileTimeout      int `yaml:"compile_timeout"`       // seconds, any compile step
	ContainerRunTimeout int `yaml:"container_run_timeout"` // seconds, container backend run step

	IdleThresholdMs   int `yaml:"idle_threshold_ms"`   // quiet-but-alive before waiting_for_input
	SilenceAfterMs    int `yaml:"silence_after_ms"`    // total silence before giving control back
	ContinueTimeout   int `yaml:"continue_timeout"`    // seconds without output after a continuation
	MaxOutputChars    int `yaml:"max_output_chars"`    // process backend cap
	MaxContainerChars int `yaml:"max_container_chars"` // container backend cap

	MaxConcurrent int    `yaml:"max_concurrent"` // admission cap on simultaneous sandbox runs
	HistoryLimit  int    `yaml:"history_limit"`  // run-history entries kept per project
	WorkspaceDir  string `yaml:"workspace_dir"`  // base for per-run temp dirs; empty = os default
}

// SandboxConfig constrains the container backend.
type SandboxConfig struct {
	CImage    string  `yaml:"c_image"`
	MemoryMB  int     `yaml:"memory_mb"`
	CPUs      float64 `yaml:"cpus"`
	PidsLimit int     `yaml:"pids_limit"`
}

type LanguagesConfig struct {
	Python     PythonConfig     `yaml:"python"`
	JavaScript JavaScriptConfig `yaml:"javascript"`
	Java       JavaConfig       `yaml:"java"`
}

type PythonConfig struct {
	Command string `yaml:"command"`
}

type JavaScriptConfig struct {
	Command string `yaml:"command"`
	// Backend selects "node" (host process) or "browser" (the client's
	// iframe sandbox; the server performs no execution).
	Backend string `yaml:"backend"`
}

type JavaConfig struct {
	Javac string `yaml:"javac"`
	Java  string `yaml:"java"`
	// UseTerminal runs the JVM with a pseudo-terminal on stdout so that
	// partial-line prompts (System.out.print) are flushed and visible to
	// the prompt detector.
	UseTerminal *bool `yaml:"use_terminal"`
}

type AssistConfig struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"` // seconds
}

func (c *ExecutionConfig) RunTimeoutDuration() time.Duration {
	return time.Duration(c.RunTimeout) * time.Second
}

func (c *ExecutionConfig) CompileTimeoutDuration() time.Duration {
	return time.Duration(c.CompileTimeout) * time.Second
}

func (c *ExecutionConfig) ContainerRunTimeoutDuration() time.Duration {
	return time.Duration(c.ContainerRunTimeout) * time.Second
}

func (c *ExecutionConfig) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdMs) * time.Millisecond
}

func (c *ExecutionConfig) SilenceThreshold() time.Duration {
	return time.Duration(c.SilenceAfterMs) * time.Millisecond
}

func (c *ExecutionConfig) ContinueTimeoutDuration() time.Duration {
	return time.Duration(c.ContinueTimeout) * time.Second
}

func (c *AssistConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// JavaTerminal reports whether the JVM run step should get a pseudo-terminal.
func (c *JavaConfig) JavaTerminal() bool {
	if c.UseTerminal == nil {
		return true
	}
	return *c.UseTerminal
}

// IsProduction reports whether operator remediation hints should be
// suppressed from user-facing infrastructure errors.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/runner.db"
	}
	if cfg.Execution.RunTimeout == 0 {
		cfg.Execution.RunTimeout = 5
	}
	if cfg.Execution.CompileTimeout == 0 {
		cfg.Execution.CompileTimeout = 5
	}
	if cfg.Execution.ContainerRunTimeout == 0 {
		cfg.Execution.ContainerRunTimeout = 2
	}
	if cfg.Execution.IdleThresholdMs == 0 {
		cfg.Execution.IdleThresholdMs = 500
	}
	if cfg.Execution.SilenceAfterMs == 0 {
		cfg.Execution.SilenceAfterMs = 3000
	}
	if cfg.Execution.ContinueTimeout == 0 {
		cfg.Execution.ContinueTimeout = 10
	}
	if cfg.Execution.MaxOutputChars == 0 {
		cfg.Execution.MaxOutputChars = 10000
	}
	if cfg.Execution.MaxContainerChars == 0 {
		cfg.Execution.MaxContainerChars = 100000
	}
	if cfg.Execution.MaxConcurrent == 0 {
		cfg.Execution.MaxConcurrent = 8
	}
	if cfg.Execution.HistoryLimit == 0 {
		cfg.Execution.HistoryLimit = 50
	}
	if cfg.Sandbox.CImage == "" {
		cfg.Sandbox.CImage = "runner-c:latest"
	}
	if cfg.Sandbox.MemoryMB == 0 {
		cfg.Sandbox.MemoryMB = 128
	}
	if cfg.Sandbox.CPUs == 0 {
		cfg.Sandbox.CPUs = 1.0
	}
	if cfg.Sandbox.PidsLimit == 0 {
		cfg.Sandbox.PidsLimit = 64
	}
	if cfg.Languages.Python.Command == "" {
		cfg.Languages.Python.Command = "python3"
	}
	if cfg.Languages.JavaScript.Command == "" {
		cfg.Languages.JavaScript.Command = "node"
	}
	if cfg.Languages.JavaScript.Backend == "" {
		cfg.Languages.JavaScript.Backend = "node"
	}
	if cfg.Languages.Java.Javac == "" {
		cfg.Languages.Java.Javac = "javac"
	}
	if cfg.Languages.Java.Java == "" {
		cfg.Languages.Java.Java = "java"
	}
	if cfg.Assist.Timeout == 0 {
		cfg.Assist.Timeout = 30
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
}
