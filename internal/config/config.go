// Package config holds ingot's viper-backed configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/pablasso/ingot/internal/retry"
)

// Config represents the complete ingot configuration
type Config struct {
	Retry     RetryConfig     `mapstructure:"retry"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// RetryConfig is the rate-limit backoff policy
type RetryConfig struct {
	MaxRetries       int     `mapstructure:"max_retries"`
	BaseDelaySeconds float64 `mapstructure:"base_delay_seconds"`
	MaxDelaySeconds  float64 `mapstructure:"max_delay_seconds"`
	JitterFactor     float64 `mapstructure:"jitter_factor"`
	// RetryableStatusCodes are status codes in agent output that mean "throttled"
	RetryableStatusCodes []int `mapstructure:"retryable_status_codes"`
}

// ExecutionConfig controls task dispatch
type ExecutionConfig struct {
	// MaxParallel is the number of lanes that may run at once (1-5)
	MaxParallel int `mapstructure:"max_parallel"`
	// FailFast stops dispatching new tasks after the first lane failure
	FailFast bool `mapstructure:"fail_fast"`
	// AgentLaunchRate limits agent starts per second (0 = unlimited)
	AgentLaunchRate float64 `mapstructure:"agent_launch_rate"`
	// AgentCommand is the agent CLI binary
	AgentCommand string `mapstructure:"agent_command"`
}

// SummaryConfig bounds the end-of-run change summary
type SummaryConfig struct {
	MaxLines int `mapstructure:"max_lines"`
	MaxFiles int `mapstructure:"max_files"`
}

// LoggingConfig controls the debug log
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
}

// PathsConfig controls where run state lives
type PathsConfig struct {
	// StateDir holds run.lock, progress.log, output.log and debug.log.
	// Relative paths resolve against the checklist's directory.
	StateDir string `mapstructure:"state_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	r := retry.DefaultConfig()
	return &Config{
		Retry: RetryConfig{
			MaxRetries:           r.MaxRetries,
			BaseDelaySeconds:     r.BaseDelaySeconds,
			MaxDelaySeconds:      r.MaxDelaySeconds,
			JitterFactor:         r.JitterFactor,
			RetryableStatusCodes: append([]int(nil), retry.DefaultRetryableStatusCodes...),
		},
		Execution: ExecutionConfig{
			MaxParallel:     3,
			FailFast:        false,
			AgentLaunchRate: 1.0,
			AgentCommand:    "claude",
		},
		Summary: SummaryConfig{
			MaxLines: 2000,
			MaxFiles: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Paths: PathsConfig{
			StateDir: ".ingot",
		},
	}
}

// SetDefaults registers every default with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	viper.SetDefault("retry.base_delay_seconds", defaults.Retry.BaseDelaySeconds)
	viper.SetDefault("retry.max_delay_seconds", defaults.Retry.MaxDelaySeconds)
	viper.SetDefault("retry.jitter_factor", defaults.Retry.JitterFactor)
	viper.SetDefault("retry.retryable_status_codes", defaults.Retry.RetryableStatusCodes)

	viper.SetDefault("execution.max_parallel", defaults.Execution.MaxParallel)
	viper.SetDefault("execution.fail_fast", defaults.Execution.FailFast)
	viper.SetDefault("execution.agent_launch_rate", defaults.Execution.AgentLaunchRate)
	viper.SetDefault("execution.agent_command", defaults.Execution.AgentCommand)

	viper.SetDefault("summary.max_lines", defaults.Summary.MaxLines)
	viper.SetDefault("summary.max_files", defaults.Summary.MaxFiles)

	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// RateLimit converts the retry section into the policy the retry package uses.
func (c *Config) RateLimit() retry.RateLimitConfig {
	return retry.RateLimitConfig{
		MaxRetries:       c.Retry.MaxRetries,
		BaseDelaySeconds: c.Retry.BaseDelaySeconds,
		MaxDelaySeconds:  c.Retry.MaxDelaySeconds,
		JitterFactor:     c.Retry.JitterFactor,
	}
}

// ResolveStateDir returns the state directory for a checklist at checklistPath.
func (p *PathsConfig) ResolveStateDir(checklistPath string) string {
	if filepath.IsAbs(p.StateDir) {
		return p.StateDir
	}
	return filepath.Join(filepath.Dir(checklistPath), p.StateDir)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ingot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ingot"
	}
	return filepath.Join(home, ".config", "ingot")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "ingot.yaml")
}
