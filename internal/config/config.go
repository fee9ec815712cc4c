// Package config holds all dossierforge configuration. Config is loaded
// once at startup and passed explicitly to whichever component needs it;
// pipeline logic never reaches into globals for settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for a generation run.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Compile    CompileConfig    `yaml:"compile"`
	Supplement SupplementConfig `yaml:"supplement"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// PipelineConfig bounds batching and retry behavior.
type PipelineConfig struct {
	// CostCeiling is the per-batch budget in estimator cost units.
	CostCeiling int `yaml:"cost_ceiling"`

	// CharsPerUnit is the estimator's characters-per-cost-unit ratio.
	CharsPerUnit int `yaml:"chars_per_unit"`

	// DocCharLimit truncates any single document body embedded in an
	// analysis prompt.
	DocCharLimit int `yaml:"doc_char_limit"`

	// Retry bounds for LLM calls.
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`

	// Context-reduction bounds.
	MaxReductions int     `yaml:"max_reductions"`
	ReductionStep float64 `yaml:"reduction_step"`
}

// CompileConfig configures the document-compilation toolchain.
type CompileConfig struct {
	// Command is the compiler binary (pdflatex-compatible CLI).
	Command string `yaml:"command"`

	// MaxAttempts bounds the compile-repair convergence loop.
	MaxAttempts int `yaml:"max_attempts"`

	// Timeout for a single compiler invocation.
	Timeout time.Duration `yaml:"timeout"`

	// WorkDir is where run-scoped build directories are created;
	// defaults to the system temp directory.
	WorkDir string `yaml:"work_dir"`
}

// SupplementConfig configures the side-channel fetchers.
type SupplementConfig struct {
	// Endpoints maps channel names to their HTTP base URLs. A channel
	// with no endpoint is skipped.
	Endpoints map[string]string `yaml:"endpoints"`

	// MaxAttempts is the per-channel retry budget.
	MaxAttempts int `yaml:"max_attempts"`

	// Timeout bounds one channel fetch.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "gemini-2.5-pro",
			Temperature: 0.3,
			MinInterval: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			CostCeiling:   24000,
			CharsPerUnit:  4,
			DocCharLimit:  20000,
			MaxAttempts:   4,
			BaseDelay:     2 * time.Second,
			MaxDelay:      60 * time.Second,
			MaxReductions: 4,
			ReductionStep: 0.25,
		},
		Compile: CompileConfig{
			Command:     "pdflatex",
			MaxAttempts: 3,
			Timeout:     2 * time.Minute,
		},
		Supplement: SupplementConfig{
			MaxAttempts: 2,
			Timeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path, layered over defaults, with
// environment overrides applied last. An empty path loads pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments inject secrets without writing them
// into config files.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOSSIERFORGE_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DOSSIERFORGE_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DOSSIERFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.CostCeiling <= 0 {
		return fmt.Errorf("pipeline.cost_ceiling must be positive, got %d", c.Pipeline.CostCeiling)
	}
	if c.Pipeline.CharsPerUnit <= 0 {
		return fmt.Errorf("pipeline.chars_per_unit must be positive, got %d", c.Pipeline.CharsPerUnit)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.ReductionStep <= 0 || c.Pipeline.ReductionStep >= 1 {
		return fmt.Errorf("pipeline.reduction_step must be in (0, 1), got %v", c.Pipeline.ReductionStep)
	}
	if c.Compile.MaxAttempts < 1 {
		return fmt.Errorf("compile.max_attempts must be at least 1, got %d", c.Compile.MaxAttempts)
	}
	return nil
}
