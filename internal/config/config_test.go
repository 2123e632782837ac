package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 2.0, cfg.Retry.BaseDelaySeconds)
	assert.Equal(t, 60.0, cfg.Retry.MaxDelaySeconds)
	assert.Equal(t, 0.5, cfg.Retry.JitterFactor)
	assert.Equal(t, []int{429, 502, 503, 504}, cfg.Retry.RetryableStatusCodes)
	assert.Equal(t, 3, cfg.Execution.MaxParallel)
	assert.False(t, cfg.Execution.FailFast)
	assert.Equal(t, 1.0, cfg.Execution.AgentLaunchRate)
	assert.Equal(t, "claude", cfg.Execution.AgentCommand)
	assert.Equal(t, 2000, cfg.Summary.MaxLines)
	assert.Equal(t, 20, cfg.Summary.MaxFiles)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ".ingot", cfg.Paths.StateDir)

	assert.Empty(t, cfg.Validate())
	assert.NoError(t, cfg.RateLimit().Validate())
}

func TestDefault_StatusCodesNotShared(t *testing.T) {
	cfg := Default()
	cfg.Retry.RetryableStatusCodes[0] = 500
	assert.Equal(t, 429, Default().Retry.RetryableStatusCodes[0])
}

func TestLoad_FromFileAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "ingot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry:
  max_retries: 2
  retryable_status_codes: [429, 529]
execution:
  fail_fast: true
`), 0644))

	t.Setenv("INGOT_EXECUTION_MAX_PARALLEL", "5")

	SetDefaults()
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("INGOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, []int{429, 529}, cfg.Retry.RetryableStatusCodes)
	assert.True(t, cfg.Execution.FailFast)
	assert.Equal(t, 5, cfg.Execution.MaxParallel)
	assert.Equal(t, 2.0, cfg.Retry.BaseDelaySeconds, "unset keys keep defaults")
}

func TestLoad_InvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("execution.max_parallel", 9)
	viper.Set("logging.level", "verbose")

	_, err := Load()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "execution.max_parallel")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"max below base", func(c *Config) { c.Retry.MaxDelaySeconds = 1 }, "retry.max_delay_seconds"},
		{"jitter over one", func(c *Config) { c.Retry.JitterFactor = 1.2 }, "retry.jitter_factor"},
		{"bad status code", func(c *Config) { c.Retry.RetryableStatusCodes = []int{42} }, "retry.retryable_status_codes"},
		{"zero parallel", func(c *Config) { c.Execution.MaxParallel = 0 }, "execution.max_parallel"},
		{"six parallel", func(c *Config) { c.Execution.MaxParallel = 6 }, "execution.max_parallel"},
		{"negative rate", func(c *Config) { c.Execution.AgentLaunchRate = -1 }, "execution.agent_launch_rate"},
		{"empty command", func(c *Config) { c.Execution.AgentCommand = " " }, "execution.agent_command"},
		{"zero max lines", func(c *Config) { c.Summary.MaxLines = 0 }, "summary.max_lines"},
		{"zero max files", func(c *Config) { c.Summary.MaxFiles = 0 }, "summary.max_files"},
		{"empty state dir", func(c *Config) { c.Paths.StateDir = "" }, "paths.state_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Empty(t, ValidationErrors{}.Error())

	one := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	assert.Equal(t, "a: bad (got: 1)", one.Error())

	two := append(one, ValidationError{Field: "b", Value: 2, Message: "worse"})
	assert.Contains(t, two.Error(), "2 validation errors:")
	assert.Contains(t, two.Error(), "  2. b: worse (got: 2)")
}

func TestResolveStateDir(t *testing.T) {
	p := PathsConfig{StateDir: ".ingot"}
	assert.Equal(t, filepath.Join("docs", ".ingot"), p.ResolveStateDir(filepath.Join("docs", "tasks.md")))

	abs := PathsConfig{StateDir: "/var/ingot"}
	assert.Equal(t, "/var/ingot", abs.ResolveStateDir("tasks.md"))
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/ingot", ConfigDir())
	assert.Equal(t, "/tmp/xdg/ingot/ingot.yaml", ConfigFile())
}
