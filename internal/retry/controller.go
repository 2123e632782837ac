package retry

import (
	"context"
	"math/rand"
	"time"
)

// State is a step of the retry state machine.
type State int

const (
	StateAttempting State = iota
	StateWaiting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateWaiting:
		return "waiting"
	default:
		return "terminal"
	}
}

// Unit is one invocation of work, typically one task run by the agent.
type Unit func(ctx context.Context) error

// Sleeper suspends the calling goroutine. Implementations must return
// ctx.Err() early if the context is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper waits on a real timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result is the outcome of Execute.
type Result struct {
	// Err is nil on success, the unit's own error on hard failure,
	// a *RetriesExhaustedError past the cap, or the context error if a
	// wait was cancelled.
	Err       error
	Attempts  int
	Retries   int
	TotalWait time.Duration
}

// Controller executes units under a RateLimitConfig.
type Controller struct {
	cfg        RateLimitConfig
	sleeper    Sleeper
	rnd        func() float64
	classifier *Classifier
	onRetry    func(retry int, delay time.Duration, cause error)
	onState    func(State)
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleeper replaces the real timer, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleeper = s }
}

// WithRand sets the jitter source. It must return values in [0,1).
func WithRand(rnd func() float64) Option {
	return func(c *Controller) { c.rnd = rnd }
}

// WithClassifier replaces the default rule table.
func WithClassifier(cl *Classifier) Option {
	return func(c *Controller) { c.classifier = cl }
}

// WithOnRetry registers a hook called before each backoff wait. retry is
// zero-based.
func WithOnRetry(fn func(retry int, delay time.Duration, cause error)) Option {
	return func(c *Controller) { c.onRetry = fn }
}

// WithOnState registers a hook called on every state change.
func WithOnState(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// NewController creates a controller. The config is copied.
func NewController(cfg RateLimitConfig, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		sleeper:    TimerSleeper{},
		rnd:        rand.Float64,
		classifier: defaultClassifier,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller's policy.
func (c *Controller) Config() RateLimitConfig {
	return c.cfg
}

// Execute runs unit until it succeeds, fails hard, or exhausts retries.
// The machine moves Attempting -> Waiting -> Attempting ... -> Terminal.
func (c *Controller) Execute(ctx context.Context, unit Unit) Result {
	var (
		res   Result
		state = StateAttempting
		cause error
	)

	for {
		c.enter(state)

		switch state {
		case StateAttempting:
			res.Attempts++
			err := unit(ctx)
			switch {
			case err == nil:
				res.Err = nil
				state = StateTerminal
			case c.classifier.Classify(err) != ClassRateLimited:
				res.Err = err
				state = StateTerminal
			case res.Retries >= c.cfg.MaxRetries:
				res.Err = &RetriesExhaustedError{
					Attempts:  res.Attempts,
					TotalWait: res.TotalWait,
					Last:      err,
				}
				state = StateTerminal
			default:
				cause = err
				state = StateWaiting
			}

		case StateWaiting:
			delay := Delay(res.Retries, c.cfg, c.rnd)
			if c.onRetry != nil {
				c.onRetry(res.Retries, delay, cause)
			}
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				res.Err = err
				state = StateTerminal
				continue
			}
			res.TotalWait += delay
			res.Retries++
			state = StateAttempting

		case StateTerminal:
			return res
		}
	}
}

func (c *Controller) enter(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}
