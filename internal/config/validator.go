package config

import (
	"fmt"
	"slices"
	"strings"
)

// MaxParallelLimit is the highest allowed execution.max_parallel.
const MaxParallelLimit = 5

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateExecution()...)
	errs = append(errs, c.validateSummary()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validatePaths()...)
	return errs
}

func (c *Config) validateRetry() []ValidationError {
	var errs []ValidationError
	r := c.Retry

	if r.MaxRetries < 0 {
		errs = append(errs, ValidationError{"retry.max_retries", r.MaxRetries, "must be non-negative"})
	}
	if r.BaseDelaySeconds < 0 {
		errs = append(errs, ValidationError{"retry.base_delay_seconds", r.BaseDelaySeconds, "must be non-negative"})
	}
	if r.MaxDelaySeconds < r.BaseDelaySeconds {
		errs = append(errs, ValidationError{"retry.max_delay_seconds", r.MaxDelaySeconds, "must be at least retry.base_delay_seconds"})
	}
	if r.JitterFactor < 0 || r.JitterFactor > 1 {
		errs = append(errs, ValidationError{"retry.jitter_factor", r.JitterFactor, "must be between 0 and 1"})
	}
	for _, code := range r.RetryableStatusCodes {
		if code < 100 || code > 599 {
			errs = append(errs, ValidationError{"retry.retryable_status_codes", code, "must be an HTTP status code (100-599)"})
		}
	}
	return errs
}

func (c *Config) validateExecution() []ValidationError {
	var errs []ValidationError
	e := c.Execution

	if e.MaxParallel < 1 || e.MaxParallel > MaxParallelLimit {
		errs = append(errs, ValidationError{"execution.max_parallel", e.MaxParallel,
			fmt.Sprintf("must be between 1 and %d", MaxParallelLimit)})
	}
	if e.AgentLaunchRate < 0 {
		errs = append(errs, ValidationError{"execution.agent_launch_rate", e.AgentLaunchRate, "must be non-negative (0 = unlimited)"})
	}
	if strings.TrimSpace(e.AgentCommand) == "" {
		errs = append(errs, ValidationError{"execution.agent_command", e.AgentCommand, "must not be empty"})
	}
	return errs
}

func (c *Config) validateSummary() []ValidationError {
	var errs []ValidationError
	if c.Summary.MaxLines < 1 {
		errs = append(errs, ValidationError{"summary.max_lines", c.Summary.MaxLines, "must be positive"})
	}
	if c.Summary.MaxFiles < 1 {
		errs = append(errs, ValidationError{"summary.max_files", c.Summary.MaxFiles, "must be positive"})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		return []ValidationError{{"logging.level", c.Logging.Level,
			"must be one of " + strings.Join(ValidLogLevels(), ", ")}}
	}
	return nil
}

func (c *Config) validatePaths() []ValidationError {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return []ValidationError{{"paths.state_dir", c.Paths.StateDir, "must not be empty"}}
	}
	return nil
}
