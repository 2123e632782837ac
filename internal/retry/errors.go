package retry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited marks a failure caused by throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrRetriesExhausted marks a unit that stayed rate limited past MaxRetries.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RateLimitError is returned by units that know they were throttled.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRateLimited, e.Message)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetriesExhaustedError is the terminal result of a unit that was still
// rate limited after the last allowed retry.
type RetriesExhaustedError struct {
	Attempts  int
	TotalWait time.Duration
	Last      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts (waited %s): %v",
		e.Attempts, e.TotalWait.Round(time.Millisecond), e.Last)
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}
