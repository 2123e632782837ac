// Package retry wraps a unit of work with bounded exponential-backoff retry
// for rate-limited failures.
//
// Only failures classified as rate limiting are retried. Anything else is a
// hard failure and is returned immediately. The wait between attempts goes
// through an injected Sleeper, so tests run without real delays and
// concurrent callers only ever suspend their own goroutine.
package retry

import (
	"fmt"
	"math"
	"time"
)

// RateLimitConfig is the immutable retry policy for one orchestration run.
type RateLimitConfig struct {
	// MaxRetries caps retries per unit. The first call is not a retry.
	MaxRetries int
	// BaseDelaySeconds is the delay before the first retry.
	BaseDelaySeconds float64
	// MaxDelaySeconds caps the computed delay before jitter.
	MaxDelaySeconds float64
	// JitterFactor in [0,1] randomizes each delay by up to that fraction.
	JitterFactor float64
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRetries:       5,
		BaseDelaySeconds: 2.0,
		MaxDelaySeconds:  60.0,
		JitterFactor:     0.5,
	}
}

// Validate checks the policy bounds.
func (c RateLimitConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.BaseDelaySeconds < 0 {
		return fmt.Errorf("base_delay_seconds must be non-negative, got %g", c.BaseDelaySeconds)
	}
	if c.MaxDelaySeconds < c.BaseDelaySeconds {
		return fmt.Errorf("max_delay_seconds (%g) must be >= base_delay_seconds (%g)", c.MaxDelaySeconds, c.BaseDelaySeconds)
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("jitter_factor must be in [0,1], got %g", c.JitterFactor)
	}
	return nil
}

// Delay returns the wait before retry number attempt (0 for the first
// retry): min(base*2^attempt, max), then uniformly jittered within
// [d*(1-j), d*(1+j)] and clamped at zero. rnd must return values in [0,1).
func Delay(attempt int, cfg RateLimitConfig, rnd func() float64) time.Duration {
	d := math.Min(cfg.BaseDelaySeconds*math.Pow(2, float64(attempt)), cfg.MaxDelaySeconds)

	if cfg.JitterFactor > 0 && rnd != nil {
		lo := d * (1 - cfg.JitterFactor)
		hi := d * (1 + cfg.JitterFactor)
		d = lo + rnd()*(hi-lo)
	}
	if d < 0 {
		d = 0
	}

	return time.Duration(d * float64(time.Second))
}
