package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/testutil"
)

// executeCmd runs the root command with args against fresh viper state.
func executeCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// fakeAgent writes an executable script that stands in for the agent CLI.
func fakeAgent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write agent script: %v", err)
	}
	return path
}

// writeConfig writes a config file pointing at agent with a fast launch rate.
func writeConfig(t *testing.T, agent string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingot.yaml")
	testutil.WriteFile(t, path, "execution:\n  agent_command: "+agent+"\n  agent_launch_rate: 50\n")
	return path
}

func TestPrerequisiteError(t *testing.T) {
	err := &PrerequisiteError{
		Check:   "Test Check",
		Message: "Something went wrong",
		Help:    "Try doing X to fix it.",
	}

	expected := "Test Check: Something went wrong\n\nTry doing X to fix it."
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestCheckGitRepo(t *testing.T) {
	t.Run("in git repo returns nil", func(t *testing.T) {
		dir := testutil.InitRepo(t)
		if err := checkGitRepo(t.Context(), dir); err != nil {
			t.Errorf("expected nil error in git repo, got: %v", err)
		}
	})

	t.Run("not in git repo returns PrerequisiteError", func(t *testing.T) {
		err := checkGitRepo(t.Context(), t.TempDir())

		var prereqErr *PrerequisiteError
		if !errors.As(err, &prereqErr) {
			t.Fatalf("expected *PrerequisiteError, got %T", err)
		}
		if prereqErr.Message != "Not a git repository" {
			t.Errorf("got message %q, want %q", prereqErr.Message, "Not a git repository")
		}
		if !strings.Contains(prereqErr.Help, "git init") {
			t.Errorf("help should mention git init, got %q", prereqErr.Help)
		}
	})
}

func TestCheckAgent(t *testing.T) {
	if err := checkAgent(fakeAgent(t, "exit 0")); err != nil {
		t.Errorf("expected installed agent to pass, got: %v", err)
	}

	err := checkAgent("ingot-agent-that-does-not-exist")
	var prereqErr *PrerequisiteError
	if !errors.As(err, &prereqErr) {
		t.Fatalf("expected *PrerequisiteError, got %T", err)
	}
	if prereqErr.Check != "Agent CLI" {
		t.Errorf("got check %q", prereqErr.Check)
	}
}

func TestCheckCleanWorkspace(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteFile(t, filepath.Join(dir, "tasks.md"), "- [x] done\n")
	testutil.WriteFile(t, filepath.Join(dir, ".ingot", "progress.log"), "{}\n")

	if err := checkCleanWorkspace(t.Context(), dir, "tasks.md", ".ingot"); err != nil {
		t.Errorf("ignored paths should not make the tree dirty: %v", err)
	}

	err := checkCleanWorkspace(t.Context(), dir)
	var prereqErr *PrerequisiteError
	if !errors.As(err, &prereqErr) {
		t.Fatalf("expected *PrerequisiteError, got %T", err)
	}
	if prereqErr.Message != "Uncommitted changes" {
		t.Errorf("got message %q", prereqErr.Message)
	}
}

func TestParseLineNumbers(t *testing.T) {
	lines, err := parseLineNumbers([]string{"3", "12"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[0] != 3 || lines[1] != 12 {
		t.Errorf("got %v", lines)
	}

	for _, bad := range []string{"x", "0", "-4"} {
		if _, err := parseLineNumbers([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

const planChecklist = `# Tasks

<!-- category: fundamental, order: 1 -->
- [x] Schema

## API
<!-- category: independent, group: api -->
- [!] Endpoint
- [ ] Handler
`

func TestPlanCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	testutil.WriteFile(t, path, planChecklist)

	stdout, _, err := executeCmd(t, "plan", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"3 tasks, 2 pending, 1 lanes", "Schema", "Lane api", "Endpoint", "Handler"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("plan output missing %q:\n%s", want, stdout)
		}
	}

	if got := testutil.ReadFile(t, path); got != planChecklist {
		t.Error("plan must not modify the checklist")
	}
}

func TestPlanCmd_MissingChecklist(t *testing.T) {
	if _, _, err := executeCmd(t, "plan", filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing checklist")
	}
}

func TestPlanCmd_PrintsWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	testutil.WriteFile(t, path, "- [?] Unclear\n- [ ] Clear\n")

	stdout, stderr, err := executeCmd(t, "plan", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "warning: line 1") {
		t.Errorf("expected parse warning on stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Clear") {
		t.Errorf("valid task should still be planned:\n%s", stdout)
	}
}

func TestResetCmd(t *testing.T) {
	content := "- [!] First\n- [x] Second\n- [!] Third\n"

	t.Run("resets every failed task", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.md")
		testutil.WriteFile(t, path, content)

		stdout, _, err := executeCmd(t, "reset", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := testutil.ReadFile(t, path); got != "- [ ] First\n- [x] Second\n- [ ] Third\n" {
			t.Errorf("unexpected checklist:\n%s", got)
		}
		if !strings.Contains(stdout, "Reset line 1: First") || !strings.Contains(stdout, "Reset line 3: Third") {
			t.Errorf("unexpected output:\n%s", stdout)
		}
	})

	t.Run("resets selected lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.md")
		testutil.WriteFile(t, path, content)

		if _, _, err := executeCmd(t, "reset", path, "3"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := testutil.ReadFile(t, path); got != "- [!] First\n- [x] Second\n- [ ] Third\n" {
			t.Errorf("unexpected checklist:\n%s", got)
		}
	})

	t.Run("refuses a task that is not failed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.md")
		testutil.WriteFile(t, path, content)

		if _, _, err := executeCmd(t, "reset", path, "2"); err == nil {
			t.Error("expected error resetting a DONE task")
		}
		if got := testutil.ReadFile(t, path); got != content {
			t.Errorf("checklist should be unchanged:\n%s", got)
		}
	})

	t.Run("nothing to reset", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.md")
		testutil.WriteFile(t, path, "- [x] Done\n")

		stdout, _, err := executeCmd(t, "reset", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "No failed tasks") {
			t.Errorf("unexpected output: %q", stdout)
		}
	})

	t.Run("refuses while a run holds the lock", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "tasks.md")
		testutil.WriteFile(t, path, content)

		lock := checklist.NewRunLock(filepath.Join(dir, ".ingot"))
		if err := lock.Acquire(); err != nil {
			t.Fatalf("failed to acquire lock: %v", err)
		}
		defer lock.Release()

		_, _, err := executeCmd(t, "reset", path)
		if err == nil || !strings.Contains(err.Error(), "in progress") {
			t.Errorf("expected in-progress error, got %v", err)
		}
		if got := testutil.ReadFile(t, path); got != content {
			t.Errorf("checklist should be unchanged:\n%s", got)
		}
	})
}

func TestDiffCmd(t *testing.T) {
	t.Run("prints the full diff", func(t *testing.T) {
		dir := testutil.InitRepo(t)
		testutil.WriteFile(t, filepath.Join(dir, "main.go"), "package main\n")
		testutil.Git(t, dir, "add", ".")
		testutil.Git(t, dir, "commit", "-m", "initial")
		testutil.WriteFile(t, filepath.Join(dir, "main.go"), "package main\n\nfunc main() {}\n")

		stdout, _, err := executeCmd(t, "diff", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "+func main() {}") {
			t.Errorf("expected full diff, got:\n%s", stdout)
		}
	})

	t.Run("no changes", func(t *testing.T) {
		dir := testutil.InitRepo(t)

		stdout, _, err := executeCmd(t, "diff", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "No changes.") {
			t.Errorf("unexpected output: %q", stdout)
		}
	})

	t.Run("not a repository", func(t *testing.T) {
		_, _, err := executeCmd(t, "diff", t.TempDir())
		var prereqErr *PrerequisiteError
		if !errors.As(err, &prereqErr) {
			t.Fatalf("expected *PrerequisiteError, got %v", err)
		}
	})
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(stdout, "ingot dev") {
		t.Errorf("unexpected version output: %q", stdout)
	}
}

const runChecklistContent = `# Tasks

<!-- category: fundamental, order: 1 -->
- [ ] Schema

## API
<!-- category: independent, group: api -->
- [ ] Endpoint

## UI
<!-- category: independent, group: ui -->
- [ ] Page
`

// setupRunRepo commits a checklist into a fresh repository.
func setupRunRepo(t *testing.T) (dir, path string) {
	t.Helper()
	dir = testutil.InitRepo(t)
	path = filepath.Join(dir, "tasks.md")
	testutil.WriteFile(t, path, runChecklistContent)
	testutil.Git(t, dir, "add", ".")
	testutil.Git(t, dir, "commit", "-m", "add checklist")
	return dir, path
}

func TestRunCmd_CompletesChecklist(t *testing.T) {
	_, path := setupRunRepo(t)
	cfg := writeConfig(t, fakeAgent(t, `echo "working on it"`))

	stdout, _, err := executeCmd(t, "run", "--config", cfg, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := testutil.ReadFile(t, path)
	if strings.Contains(got, "- [ ]") {
		t.Errorf("every task should be done:\n%s", got)
	}
	if strings.Count(got, "- [x]") != 3 {
		t.Errorf("expected 3 done tasks:\n%s", got)
	}
	for _, want := range []string{"Run summary", "Completed", "working on it"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	stateDir := filepath.Join(filepath.Dir(path), ".ingot")
	if !strings.Contains(testutil.ReadFile(t, filepath.Join(stateDir, "progress.log")), "run_completed") {
		t.Error("progress log should record the completed run")
	}
	if _, err := os.Stat(filepath.Join(stateDir, "debug.log")); err != nil {
		t.Errorf("debug log should exist: %v", err)
	}
}

func TestRunCmd_ResumeIgnoresOwnFiles(t *testing.T) {
	_, path := setupRunRepo(t)
	cfg := writeConfig(t, fakeAgent(t, "exit 0"))

	if _, _, err := executeCmd(t, "run", "--config", cfg, path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// The checklist and state dir are now dirty; a second run must still start.
	if _, _, err := executeCmd(t, "run", "--config", cfg, path); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestRunCmd_FailingAgent(t *testing.T) {
	_, path := setupRunRepo(t)
	cfg := writeConfig(t, fakeAgent(t, `echo "compile error" >&2; exit 1`))

	stdout, _, err := executeCmd(t, "run", "--config", cfg, path)
	if !errors.Is(err, ErrRunIncomplete) {
		t.Fatalf("expected ErrRunIncomplete, got %v", err)
	}

	got := testutil.ReadFile(t, path)
	if !strings.Contains(got, "- [!] Schema") {
		t.Errorf("fundamental task should be failed:\n%s", got)
	}
	if !strings.Contains(got, "- [ ] Endpoint") || !strings.Contains(got, "- [ ] Page") {
		t.Errorf("lanes must not start after a fundamental failure:\n%s", got)
	}
	if !strings.Contains(stdout, "Halted") {
		t.Errorf("summary should report the halt:\n%s", stdout)
	}
}

func TestRunCmd_RefusesDirtyTree(t *testing.T) {
	dir, path := setupRunRepo(t)
	testutil.WriteFile(t, filepath.Join(dir, "scratch.txt"), "uncommitted")
	cfg := writeConfig(t, fakeAgent(t, "exit 0"))

	_, _, err := executeCmd(t, "run", "--config", cfg, path)
	var prereqErr *PrerequisiteError
	if !errors.As(err, &prereqErr) {
		t.Fatalf("expected *PrerequisiteError, got %v", err)
	}

	if _, _, err := executeCmd(t, "run", "--config", cfg, "--allow-dirty", path); err != nil {
		t.Fatalf("--allow-dirty run: %v", err)
	}
}

func TestRunCmd_RetryFailed(t *testing.T) {
	dir := testutil.InitRepo(t)
	path := filepath.Join(dir, "tasks.md")
	testutil.WriteFile(t, path, "- [!] Retry me\n- [x] Already done\n")
	testutil.Git(t, dir, "add", ".")
	testutil.Git(t, dir, "commit", "-m", "add checklist")
	cfg := writeConfig(t, fakeAgent(t, "exit 0"))

	if _, _, err := executeCmd(t, "run", "--config", cfg, "--retry-failed", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ReadFile(t, path); got != "- [x] Retry me\n- [x] Already done\n" {
		t.Errorf("failed task should have been retried:\n%s", got)
	}
}

func TestRunCmd_HelpExplainsFailedTasks(t *testing.T) {
	stdout, _, err := executeCmd(t, "run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "stay FAILED and are not run again") {
		t.Errorf("help should explain that failed tasks are not rerun:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Pass --retry-failed") {
		t.Errorf("help should point at --retry-failed:\n%s", stdout)
	}
}

func TestRunCmd_MissingArg(t *testing.T) {
	if _, _, err := executeCmd(t, "run"); err == nil {
		t.Error("expected error for missing checklist argument")
	}
}
