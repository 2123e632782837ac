package checklist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileName = "run.lock"

// RunLock is a PID lock file in the state directory. Runs share the git
// working tree, so only one run may be active per repository.
type RunLock struct {
	path string
}

// NewRunLock creates a lock manager for the given state directory.
func NewRunLock(stateDir string) *RunLock {
	return &RunLock{
		path: filepath.Join(stateDir, lockFileName),
	}
}

// Acquire takes the lock, cleaning up locks left by dead processes.
// Returns an error if another live process holds it.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := l.create(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	held, err := l.IsLocked()
	if err != nil {
		return err
	}
	if held {
		pid, _ := l.holder()
		return fmt.Errorf("a run is already in progress (PID %d)", pid)
	}

	// IsLocked removed the stale file; try exactly once more.
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("lock acquired by another process during retry")
		}
		return fmt.Errorf("failed to create lock file on retry: %w", err)
	}
	return nil
}

func (l *RunLock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()
	if writeErr != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", writeErr)
	}
	return nil
}

func (l *RunLock) holder() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// Release removes the lock file. Releasing an absent lock is not an error.
func (l *RunLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether a live process holds the lock. Stale or
// unreadable lock files are removed.
func (l *RunLock) IsLocked() (bool, error) {
	pid, err := l.holder()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) {
			return false, fmt.Errorf("failed to read existing lock file: %w", err)
		}
		// Invalid PID - treat as stale
		if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return false, fmt.Errorf("failed to remove invalid lock file: %w", removeErr)
		}
		return false, nil
	}

	if processExists(pid) {
		return true, nil
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		return false, fmt.Errorf("failed to remove stale lock file: %w", removeErr)
	}
	return false, nil
}

// processExists checks for a live process using signal 0.
func processExists(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
