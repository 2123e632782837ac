package checklist

import (
	"errors"
	"fmt"
)

// Status is the execution state of a single checklist task.
type Status string

// Task status constants
const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status is a final state for a run.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Category decides which phase of the execution plan a task belongs to.
type Category string

const (
	// CategoryFundamental tasks run first, one at a time, in dependency order.
	CategoryFundamental Category = "FUNDAMENTAL"
	// CategoryIndependent tasks run in lanes keyed by group id.
	CategoryIndependent Category = "INDEPENDENT"
)

// ErrInvalidTransition is returned when a status change would move a task backwards.
var ErrInvalidTransition = errors.New("invalid status transition")

// Task represents a single checkbox item of a checklist.
type Task struct {
	Name       string
	Status     Status
	LineNumber int
	Category   Category

	// DependencyOrder is only meaningful for fundamental tasks.
	DependencyOrder int

	// GroupID is only meaningful for independent tasks.
	GroupID string

	// Section is the text of the closest heading above the task.
	Section string
	Indent  int
}

// ID returns a short identifier for logs and progress events.
func (t *Task) ID() string {
	return fmt.Sprintf("L%d", t.LineNumber)
}

// allowed lists every forward transition. FAILED -> PENDING only happens
// through Reset.
var allowed = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusDone, StatusFailed},
	StatusInProgress: {StatusDone, StatusFailed},
	StatusDone:       {},
	StatusFailed:     {},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
