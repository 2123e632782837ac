package checklist

import (
	"fmt"
	"os"
	"sync"
)

// Store owns a parsed checklist and its backing file. Every mutation holds
// the store's mutex for the whole update-serialize-write sequence, so
// concurrent lanes can never interleave partial writes.
type Store struct {
	mu   sync.Mutex
	path string
	doc  *Document
}

// Load reads and parses the checklist at path.
func Load(path string) (*Store, []ParseWarning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read checklist: %w", err)
	}

	doc, warnings := Parse(string(data))
	return &Store{path: path, doc: doc}, warnings, nil
}

// NewStore wraps an already parsed document. An empty path keeps the store
// in memory only.
func NewStore(path string, doc *Document) *Store {
	return &Store{path: path, doc: doc}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Tasks returns a snapshot of all tasks in file order.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Tasks()
}

// Task returns a snapshot of a single task.
func (s *Store) Task(lineNumber int) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Task(lineNumber)
}

// SetStatus moves a task forward and persists the checklist. On a write
// failure the in-memory status is rolled back.
func (s *Store) SetStatus(lineNumber int, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.doc.setStatus(lineNumber, status)
	if err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.doc.find(lineNumber).Status = prev
		return err
	}
	return nil
}

// Reset moves FAILED tasks back to PENDING. It is the only backwards
// transition and is reserved for explicit operator requests. With no line
// numbers every failed task is reset. Returns the lines that were reset.
func (s *Store) Reset(lineNumbers ...int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(lineNumbers) == 0 {
		for _, t := range s.doc.tasks {
			if t.Status == StatusFailed {
				lineNumbers = append(lineNumbers, t.LineNumber)
			}
		}
	}
	if len(lineNumbers) == 0 {
		return nil, nil
	}

	for _, ln := range lineNumbers {
		if t := s.doc.find(ln); t == nil || t.Status != StatusFailed {
			return nil, s.doc.reset(ln)
		}
	}
	for _, ln := range lineNumbers {
		if err := s.doc.reset(ln); err != nil {
			return nil, err
		}
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return lineNumbers, nil
}

// Content returns the serialized checklist.
func (s *Store) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Serialize()
}

// persist atomically writes the checklist. Caller must hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.path, os.Getpid())

	mode := os.FileMode(0644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(tmpPath, []byte(s.doc.Serialize()), mode); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
