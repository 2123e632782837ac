package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pablasso/ingot/internal/agent"
	"github.com/pablasso/ingot/internal/config"
	"github.com/pablasso/ingot/internal/display"
	"github.com/pablasso/ingot/internal/git"
	"github.com/pablasso/ingot/internal/logging"
	"github.com/pablasso/ingot/internal/orchestrator"
	"github.com/pablasso/ingot/internal/retry"
	"github.com/pablasso/ingot/internal/ticket"
	"github.com/pablasso/ingot/internal/tui"
)

type runOptions struct {
	allowDirty  bool
	retryFailed bool
	ticketPath  string
	planPath    string
	useTUI      bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <checklist>",
		Short: "Run every pending task in a checklist",
		Long: `Execute a markdown checklist. Fundamental tasks run first in dependency order;
independent tasks then run in parallel lanes grouped by group id. The run
resumes from the checklist's current state: DONE tasks are skipped, and
tasks marked FAILED by an earlier run stay FAILED and are not run again.
Pass --retry-failed (or run 'ingot reset' first) to put them back in the
queue at their original position.

Press Ctrl+C once to stop dispatching new tasks and let in-flight tasks
finish; press it again to abort them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecklist(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.allowDirty, "allow-dirty", false, "Allow running with uncommitted changes (not recommended)")
	cmd.Flags().BoolVar(&opts.retryFailed, "retry-failed", false, "Reset FAILED tasks to pending before running")
	cmd.Flags().StringVar(&opts.ticketPath, "ticket", "", "Ticket file (YAML or JSON) passed to the agent")
	cmd.Flags().StringVar(&opts.planPath, "plan", "", "Implementation plan file passed to the agent")
	cmd.Flags().BoolVar(&opts.useTUI, "tui", false, "Show the interactive run monitor")
	cmd.Flags().Int("max-parallel", 0, "Lanes that may run at once (1-5)")
	cmd.Flags().Bool("fail-fast", false, "Stop dispatching new tasks after the first lane failure")
	_ = viper.BindPFlag("execution.max_parallel", cmd.Flags().Lookup("max-parallel"))
	_ = viper.BindPFlag("execution.fail_fast", cmd.Flags().Lookup("fail-fast"))

	return cmd
}

func runChecklist(cmd *cobra.Command, path string, opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Lanes, the logger and the status line all write concurrently.
	stdout := zerolog.SyncWriter(cmd.OutOrStdout())
	stderr := zerolog.SyncWriter(cmd.ErrOrStderr())

	store, absPath, err := loadChecklist(path, stderr)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stateDir := cfg.Paths.ResolveStateDir(absPath)
	ignore := []string{filepath.Base(absPath)}
	if rel, err := filepath.Rel(dir, stateDir); err == nil && !strings.HasPrefix(rel, "..") {
		ignore = append(ignore, rel)
	}
	if err := checkPrerequisites(ctx, dir, cfg.Execution.AgentCommand, opts.allowDirty, ignore...); err != nil {
		return err
	}

	tk, planText, err := loadContext(opts)
	if err != nil {
		return err
	}

	var console io.Writer = stderr
	var echo io.Writer = stdout
	if opts.useTUI {
		console, echo = nil, nil
	}
	logger, closeLog, err := logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Console:  console,
		FilePath: filepath.Join(stateDir, logging.DebugLogFileName),
	})
	if err != nil {
		return fmt.Errorf("failed to open debug log: %w", err)
	}
	defer closeLog()

	output, err := agent.NewOutputCapture(stateDir, echo)
	if err != nil {
		return err
	}
	defer output.Close()

	classifier := retry.NewClassifier(cfg.Retry.RetryableStatusCodes)
	runner := agent.NewClaudeRunner(cfg.Execution.AgentCommand, output, classifier)
	runner.Dir = dir

	summarizer := &git.Summarizer{Dir: dir, MaxLines: cfg.Summary.MaxLines, MaxFiles: cfg.Summary.MaxFiles}

	orch := orchestrator.New(store, runner, summarizer, orchestrator.Options{
		Concurrency: cfg.Execution.MaxParallel,
		Retry:       cfg.RateLimit(),
		Classifier:  classifier,
		LaunchRate:  cfg.Execution.AgentLaunchRate,
		FailFast:    cfg.Execution.FailFast,
		RetryFailed: opts.retryFailed,
		Ticket:      tk,
		PlanText:    planText,
		StateDir:    stateDir,
		Logger:      logger,
	})

	var report *orchestrator.Report
	if opts.useTUI {
		report, err = tui.Run(filepath.Base(absPath), tui.Controls{Stop: orch.Stop, Cancel: cancel}, output,
			func(events orchestrator.Events) (*orchestrator.Report, error) {
				return orch.WithEvents(events).Run(ctx)
			})
	} else {
		report, err = runPlain(ctx, cancel, orch, stderr)
		if report != nil {
			fmt.Fprintln(stdout)
			fmt.Fprint(stdout, display.RenderSummary(report))
		}
	}
	if err != nil {
		return err
	}

	if !report.Success() {
		return ErrRunIncomplete
	}
	return nil
}

// runPlain runs with the status line on w. The first interrupt stops
// dispatch; the second cancels in-flight tasks.
func runPlain(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, w io.Writer) (*orchestrator.Report, error) {
	d := display.New(w)
	orch.WithEvents(d)

	release := handleInterrupts(orch.Stop, cancel, func(msg string) {
		d.PrintAbove("%s", msg)
	})
	defer release()

	d.Start()
	report, err := orch.Run(ctx)
	d.Stop()
	return report, err
}

// handleInterrupts installs the two-stage interrupt handler. SIGTERM cancels
// immediately. The returned func uninstalls it.
func handleInterrupts(stop func(), cancel context.CancelFunc, notify func(string)) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		interrupts := 0
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				interrupts++
				if sig == syscall.SIGTERM || interrupts > 1 {
					notify("Aborting in-flight tasks...")
					cancel()
					continue
				}
				notify("Stopping: waiting for in-flight tasks to finish. Press Ctrl+C again to abort.")
				stop()
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// loadContext reads the optional ticket and plan files.
func loadContext(opts runOptions) (*ticket.Ticket, string, error) {
	var tk *ticket.Ticket
	if opts.ticketPath != "" {
		t, err := ticket.Load(opts.ticketPath)
		if err != nil {
			return nil, "", err
		}
		tk = t
	}

	var planText string
	if opts.planPath != "" {
		data, err := os.ReadFile(opts.planPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read plan: %w", err)
		}
		planText = string(data)
	}
	return tk, planText, nil
}
