// Package orchestrator executes a checklist: the fundamental phase on a
// single worker, then independent lanes on a bounded pool, every task going
// through the retry controller, and finally the change summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pablasso/ingot/internal/agent"
	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/git"
	"github.com/pablasso/ingot/internal/logging"
	"github.com/pablasso/ingot/internal/planner"
	"github.com/pablasso/ingot/internal/retry"
	"github.com/pablasso/ingot/internal/ticket"
	"github.com/pablasso/ingot/internal/util"
)

// DefaultConcurrency is the lane pool size when none is configured.
const DefaultConcurrency = 3

// summaryTimeout bounds the change summary, which runs even after the run
// context is cancelled.
const summaryTimeout = 2 * time.Minute

// Summarizer produces the end-of-run change summary.
type Summarizer interface {
	Summarize(ctx context.Context) git.ChangeSummary
}

// Options configures a run.
type Options struct {
	// Concurrency bounds how many lanes run at once.
	Concurrency int
	Retry       retry.RateLimitConfig
	Classifier  *retry.Classifier
	// LaunchRate limits agent launches per second across all lanes.
	// Zero means unlimited.
	LaunchRate float64
	// FailFast stops dispatch after the first lane failure.
	FailFast bool
	// RetryFailed resets FAILED tasks to PENDING before planning.
	RetryFailed bool

	Ticket   *ticket.Ticket
	PlanText string

	// StateDir holds the run lock and progress log. Empty disables both.
	StateDir string
	Logger   logging.Logger
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeDone
	outcomeFailed
	outcomeAlreadyDone
)

// Orchestrator runs one checklist once.
type Orchestrator struct {
	store      *checklist.Store
	runner     agent.Runner
	summarizer Summarizer
	opts       Options
	events     Events
	sleeper    retry.Sleeper
	rnd        func() float64
	log        logging.Logger

	runID    string
	progress *checklist.ProgressLogger
	lock     *checklist.RunLock
	limiter  *rate.Limiter

	stopOnce sync.Once
	stopCh   chan struct{}

	mu         sync.Mutex
	outcomes   map[int]outcome
	failures   []Failure
	failFast   bool
	persistErr error
}

// New creates an orchestrator for store. summarizer may be nil.
func New(store *checklist.Store, runner agent.Runner, summarizer Summarizer, opts Options) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Classifier == nil {
		opts.Classifier = retry.NewClassifier(nil)
	}

	runID := util.NewRunID()
	o := &Orchestrator{
		store:      store,
		runner:     runner,
		summarizer: summarizer,
		opts:       opts,
		events:     NopEvents{},
		sleeper:    retry.TimerSleeper{},
		runID:      runID,
		stopCh:     make(chan struct{}),
		outcomes:   make(map[int]outcome),
		log:        opts.Logger.With(logging.String("run", util.ShortRunID(runID))),
	}

	if opts.StateDir != "" {
		o.progress = checklist.NewProgressLogger(opts.StateDir, runID)
		o.lock = checklist.NewRunLock(opts.StateDir)
	}
	if opts.LaunchRate > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.LaunchRate), 1)
	}

	return o
}

// WithEvents sets the event listener.
func (o *Orchestrator) WithEvents(e Events) *Orchestrator {
	if e == nil {
		e = NopEvents{}
	}
	o.events = e
	return o
}

// WithSleeper replaces the backoff timer (useful for testing).
func (o *Orchestrator) WithSleeper(s retry.Sleeper) *Orchestrator {
	o.sleeper = s
	return o
}

// WithRand sets the jitter source.
func (o *Orchestrator) WithRand(rnd func() float64) *Orchestrator {
	o.rnd = rnd
	return o
}

// RunID identifies this run in the progress log.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Stop stops dispatching new tasks. In-flight tasks, including their retry
// waits, run to a terminal state. Safe to call more than once and from any
// goroutine.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		o.log.Info("stop requested; no new tasks will be dispatched")
	})
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// canDispatch reports whether a new task may start.
func (o *Orchestrator) canDispatch(ctx context.Context) bool {
	if ctx.Err() != nil || o.stopped() {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.failFast && o.persistErr == nil
}

// Run executes the checklist. The returned error is non-nil only when the
// run could not start or a status could not be persisted; task failures are
// reported in the Report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if o.lock != nil {
		if err := o.lock.Acquire(); err != nil {
			return nil, err
		}
		defer o.lock.Release()
	}

	start := time.Now()
	report := &Report{RunID: o.runID}

	if o.opts.RetryFailed {
		reset, err := o.store.Reset()
		if err != nil {
			return nil, fmt.Errorf("failed to reset failed tasks: %w", err)
		}
		report.Reset = reset
		if len(reset) > 0 {
			o.log.Info("reset failed tasks", logging.Int("count", len(reset)))
		}
	}

	plan := planner.Build(o.store.Tasks())
	report.Plan = plan

	o.logProgress(o.progress.RunStarted(o.store.Path(), len(plan.Fundamental), len(plan.Lanes)))
	o.log.Info("run started",
		logging.Int("fundamental", len(plan.Fundamental)),
		logging.Int("lanes", len(plan.Lanes)),
		logging.Int("pending", plan.Pending()))
	o.events.OnRunStart(plan)

	if haltedBy := o.runFundamental(ctx, plan.Fundamental); haltedBy != nil {
		report.Halted = true
		report.HaltedBy = haltedBy
		o.logProgress(o.progress.RunHalted(*haltedBy))
		o.log.Warn("fundamental task failed; halting run", logging.String("task", haltedBy.ID()))
	} else if o.canDispatch(ctx) {
		o.runLanes(ctx, plan.Lanes)
	}

	report.Aborted = o.stopped() || ctx.Err() != nil
	if report.Aborted {
		o.logProgress(o.progress.RunAborted())
	}

	report.Changes = o.summarize(ctx)

	o.mu.Lock()
	o.tally(report, plan)
	report.FailFast = o.failFast
	persistErr := o.persistErr
	o.mu.Unlock()

	report.Duration = time.Since(start)
	o.logProgress(o.progress.RunCompleted(report.Done, report.Failed, report.Skipped, report.Duration))
	o.log.Info("run finished",
		logging.Int("done", report.Done),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Duration("duration", report.Duration))
	o.events.OnRunComplete(report)

	if persistErr != nil {
		return report, fmt.Errorf("failed to persist checklist: %w", persistErr)
	}
	return report, nil
}

// runFundamental executes the sequential phase. It returns the task that
// halted the run, or nil.
func (o *Orchestrator) runFundamental(ctx context.Context, tasks []checklist.Task) *checklist.Task {
	for i := range tasks {
		t := tasks[i]
		if t.Status == checklist.StatusDone {
			o.setOutcome(t.LineNumber, outcomeAlreadyDone)
			continue
		}
		if !o.canDispatch(ctx) && t.Status != checklist.StatusFailed {
			return nil
		}

		if !o.runTask(ctx, FundamentalLane, t, false) {
			if ctx.Err() != nil || !o.persisted() {
				return nil
			}
			return &t
		}
	}
	return nil
}

// runLanes executes every lane on a bounded pool. Lanes never block each
// other; a failed task only affects the rest of its lane through fail-fast.
func (o *Orchestrator) runLanes(ctx context.Context, lanes []planner.Lane) {
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	parallel := len(lanes) > 1

	for _, lane := range lanes {
		g.Go(func() error {
			o.runLane(ctx, lane, parallel)
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) runLane(ctx context.Context, lane planner.Lane, parallel bool) {
	log := o.log.With(logging.String("lane", lane.GroupID))
	log.Debug("lane started", logging.Int("tasks", len(lane.Tasks)))

	for _, t := range lane.Tasks {
		if t.Status == checklist.StatusDone {
			o.setOutcome(t.LineNumber, outcomeAlreadyDone)
			continue
		}
		if t.Status == checklist.StatusFailed {
			o.runTask(ctx, lane.GroupID, t, parallel)
			continue
		}
		if !o.canDispatch(ctx) {
			log.Debug("lane stopped before dispatch", logging.String("task", t.ID()))
			return
		}
		if !o.runTask(ctx, lane.GroupID, t, parallel) && o.opts.FailFast && ctx.Err() == nil {
			o.mu.Lock()
			o.failFast = true
			o.mu.Unlock()
			log.Warn("fail-fast: stopping dispatch after lane failure", logging.String("task", t.ID()))
		}
	}
}

// runTask drives one task to a terminal state and reports whether it ended
// DONE. A task already FAILED (not reset) is recorded without running.
func (o *Orchestrator) runTask(ctx context.Context, lane string, t checklist.Task, parallel bool) bool {
	if t.Status == checklist.StatusFailed {
		o.fail(lane, Failure{Task: t, Lane: lane, Cause: CauseNotRun})
		return false
	}

	if err := o.store.SetStatus(t.LineNumber, checklist.StatusInProgress); err != nil {
		o.recordPersistErr(err)
		return false
	}
	t.Status = checklist.StatusInProgress

	log := o.log.With(logging.String("lane", lane), logging.String("task", t.ID()))
	log.Info("task started", logging.String("name", t.Name))
	o.logProgress(o.progress.TaskStarted(t, lane))
	o.events.OnTaskStart(lane, t)

	ctrlOpts := []retry.Option{
		retry.WithSleeper(o.sleeper),
		retry.WithClassifier(o.opts.Classifier),
		retry.WithOnRetry(func(n int, delay time.Duration, cause error) {
			log.Warn("rate limited; backing off",
				logging.Int("retry", n+1),
				logging.Duration("delay", delay),
				logging.Err(cause))
			o.logProgress(o.progress.TaskRetry(t, n+1, delay, cause))
			o.events.OnTaskRetry(lane, t, n, delay, cause)
		}),
	}
	if o.rnd != nil {
		ctrlOpts = append(ctrlOpts, retry.WithRand(o.rnd))
	}
	ctrl := retry.NewController(o.opts.Retry, ctrlOpts...)

	attempt := 0
	res := ctrl.Execute(ctx, func(ctx context.Context) error {
		attempt++
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return o.runner.Run(ctx, agent.Request{
			Task:     t,
			Lane:     lane,
			Attempt:  attempt,
			Parallel: parallel,
			Ticket:   o.opts.Ticket,
			PlanText: o.opts.PlanText,
		})
	})

	if res.Err == nil {
		if err := o.store.SetStatus(t.LineNumber, checklist.StatusDone); err != nil {
			o.recordPersistErr(err)
			return false
		}
		t.Status = checklist.StatusDone
		o.setOutcome(t.LineNumber, outcomeDone)
		log.Info("task done", logging.Int("attempts", res.Attempts))
		o.logProgress(o.progress.TaskDone(t, res.Attempts))
		o.events.OnTaskDone(lane, t, res.Attempts)
		return true
	}

	if err := o.store.SetStatus(t.LineNumber, checklist.StatusFailed); err != nil {
		o.recordPersistErr(err)
		return false
	}
	t.Status = checklist.StatusFailed

	cause := CauseExecutionError
	if errors.Is(res.Err, retry.ErrRetriesExhausted) {
		cause = CauseRetriesExhausted
	}
	o.fail(lane, Failure{Task: t, Lane: lane, Cause: cause, Err: res.Err, Attempts: res.Attempts})
	return false
}

func (o *Orchestrator) fail(lane string, f Failure) {
	o.mu.Lock()
	o.outcomes[f.Task.LineNumber] = outcomeFailed
	o.failures = append(o.failures, f)
	o.mu.Unlock()

	o.log.Warn("task failed",
		logging.String("lane", lane),
		logging.String("task", f.Task.ID()),
		logging.String("cause", string(f.Cause)),
		logging.Err(f.Err))
	o.logProgress(o.progress.TaskFailed(f.Task, string(f.Cause), f.Err))
	o.events.OnTaskFailed(lane, f)
}

func (o *Orchestrator) setOutcome(line int, oc outcome) {
	o.mu.Lock()
	o.outcomes[line] = oc
	o.mu.Unlock()
}

func (o *Orchestrator) recordPersistErr(err error) {
	o.mu.Lock()
	if o.persistErr == nil {
		o.persistErr = err
	}
	o.mu.Unlock()
	o.log.Error("failed to persist checklist", logging.Err(err))
}

func (o *Orchestrator) persisted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistErr == nil
}

// summarize always runs, even after an abort, so it detaches from ctx
// cancellation.
func (o *Orchestrator) summarize(ctx context.Context) git.ChangeSummary {
	if o.summarizer == nil {
		return git.ChangeSummary{}
	}
	o.events.OnSummarizing()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()

	summary := o.summarizer.Summarize(sctx)
	o.logProgress(o.progress.Summary(summary.FilesChanged, summary.LinesChanged, summary.Truncated, summary.ToolError))
	if summary.ToolError {
		o.log.Warn("change summary may be incomplete: git command failed")
	}
	return summary
}

// tally fills the counts from recorded outcomes. Caller holds o.mu.
func (o *Orchestrator) tally(r *Report, plan *planner.ExecutionPlan) {
	count := func(t checklist.Task) {
		switch o.outcomes[t.LineNumber] {
		case outcomeDone:
			r.Done++
		case outcomeFailed:
			r.Failed++
		case outcomeAlreadyDone:
			r.AlreadyDone++
		default:
			if t.Status == checklist.StatusDone {
				r.AlreadyDone++
			} else {
				r.Skipped++
			}
		}
	}

	for _, t := range plan.Fundamental {
		count(t)
	}
	for _, lane := range plan.Lanes {
		for _, t := range lane.Tasks {
			count(t)
		}
	}
	r.Failures = append([]Failure(nil), o.failures...)
}

func (o *Orchestrator) logProgress(err error) {
	if err != nil {
		o.log.Warn("failed to write progress log", logging.Err(err))
	}
}
