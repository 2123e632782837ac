// Package planner turns checklist tasks into an execution plan: a strictly
// sequential fundamental phase followed by independent lanes.
//
// Fundamental tasks establish shared prerequisites (schema, scaffolding,
// shared types), so every one of them must reach DONE before any lane
// starts. Lanes group independent tasks by group id. Tasks inside a lane are
// presumed to touch overlapping files and run one after another; distinct
// lanes share nothing and may run concurrently in any interleaving.
package planner

import (
	"sort"

	"github.com/pablasso/ingot/internal/checklist"
)

// Lane is the sequential queue of independent tasks sharing a group id.
type Lane struct {
	GroupID string
	Tasks   []checklist.Task
}

// ExecutionPlan is derived from a task list and never persisted.
type ExecutionPlan struct {
	Fundamental []checklist.Task
	Lanes       []Lane
}

// Build computes the execution plan. Fundamental tasks are ordered by
// (DependencyOrder, LineNumber). Each lane is ordered by LineNumber. Lanes
// are listed by the line of their first task; that order is for display only.
// Tasks in every status are kept, including DONE and FAILED.
func Build(tasks []checklist.Task) *ExecutionPlan {
	p := &ExecutionPlan{}
	lanes := make(map[string]*Lane)
	var order []string

	for _, t := range tasks {
		if t.Category == checklist.CategoryFundamental {
			p.Fundamental = append(p.Fundamental, t)
			continue
		}

		lane, ok := lanes[t.GroupID]
		if !ok {
			lane = &Lane{GroupID: t.GroupID}
			lanes[t.GroupID] = lane
			order = append(order, t.GroupID)
		}
		lane.Tasks = append(lane.Tasks, t)
	}

	sort.SliceStable(p.Fundamental, func(i, j int) bool {
		a, b := p.Fundamental[i], p.Fundamental[j]
		if a.DependencyOrder != b.DependencyOrder {
			return a.DependencyOrder < b.DependencyOrder
		}
		return a.LineNumber < b.LineNumber
	})

	for _, id := range order {
		lane := lanes[id]
		sort.SliceStable(lane.Tasks, func(i, j int) bool {
			return lane.Tasks[i].LineNumber < lane.Tasks[j].LineNumber
		})
		p.Lanes = append(p.Lanes, *lane)
	}

	sort.SliceStable(p.Lanes, func(i, j int) bool {
		return p.Lanes[i].Tasks[0].LineNumber < p.Lanes[j].Tasks[0].LineNumber
	})

	return p
}

// TaskCount returns the number of tasks in the plan.
func (p *ExecutionPlan) TaskCount() int {
	n := len(p.Fundamental)
	for _, l := range p.Lanes {
		n += len(l.Tasks)
	}
	return n
}

// Pending returns the number of tasks that are not DONE.
func (p *ExecutionPlan) Pending() int {
	n := 0
	count := func(tasks []checklist.Task) {
		for _, t := range tasks {
			if t.Status != checklist.StatusDone {
				n++
			}
		}
	}
	count(p.Fundamental)
	for _, l := range p.Lanes {
		count(l.Tasks)
	}
	return n
}
