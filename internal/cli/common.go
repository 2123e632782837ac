package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/pablasso/ingot/internal/checklist"
)

// loadChecklist loads the checklist at path and prints parse warnings to w.
// The returned path is absolute.
func loadChecklist(path string, w io.Writer) (*checklist.Store, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve checklist path: %w", err)
	}

	store, warnings, err := checklist.Load(abs)
	if err != nil {
		return nil, "", err
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %v\n", warning)
	}
	return store, abs, nil
}

// ensureNotRunning refuses to touch a checklist while a run holds its lock.
func ensureNotRunning(stateDir string) error {
	locked, err := checklist.NewRunLock(stateDir).IsLocked()
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("a run is in progress for this checklist")
	}
	return nil
}
