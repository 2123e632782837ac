package checklist

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readLockPID(t *testing.T, dir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		t.Fatalf("failed to parse PID from lock file: %v", err)
	}
	return pid
}

func TestRunLock_Acquire_Success(t *testing.T) {
	tmpDir := t.TempDir()

	lock := NewRunLock(tmpDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pid := readLockPID(t, tmpDir); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestRunLock_Acquire_CreatesStateDir(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), ".ingot")

	lock := NewRunLock(stateDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stateDir, lockFileName)); err != nil {
		t.Fatalf("lock file should exist: %v", err)
	}
}

func TestRunLock_Acquire_AlreadyLocked(t *testing.T) {
	tmpDir := t.TempDir()

	// Our own PID is always alive
	lockPath := filepath.Join(tmpDir, lockFileName)
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	err := NewRunLock(tmpDir).Acquire()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "a run is already in progress") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestRunLock_Acquire_StaleLock(t *testing.T) {
	tmpDir := t.TempDir()

	// PID 99999999 is unlikely to exist
	lockPath := filepath.Join(tmpDir, lockFileName)
	if err := os.WriteFile(lockPath, []byte("99999999"), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	if err := NewRunLock(tmpDir).Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid := readLockPID(t, tmpDir); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestRunLock_Acquire_InvalidLockFile(t *testing.T) {
	tmpDir := t.TempDir()

	lockPath := filepath.Join(tmpDir, lockFileName)
	if err := os.WriteFile(lockPath, []byte("not-a-pid"), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	if err := NewRunLock(tmpDir).Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid := readLockPID(t, tmpDir); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestRunLock_ReleaseAndReacquire(t *testing.T) {
	tmpDir := t.TempDir()
	lock := NewRunLock(tmpDir)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, lockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to re-acquire lock after release: %v", err)
	}
}

func TestRunLock_Release_Idempotent(t *testing.T) {
	if err := NewRunLock(t.TempDir()).Release(); err != nil {
		t.Errorf("release without acquire should not fail: %v", err)
	}
}

func TestRunLock_IsLocked(t *testing.T) {
	tmpDir := t.TempDir()
	lock := NewRunLock(tmpDir)

	locked, err := lock.IsLocked()
	if err != nil || locked {
		t.Fatalf("expected unlocked, got locked=%v err=%v", locked, err)
	}

	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	locked, err = lock.IsLocked()
	if err != nil || !locked {
		t.Fatalf("expected locked, got locked=%v err=%v", locked, err)
	}
}
