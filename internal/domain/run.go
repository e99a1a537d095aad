package domain

import (
	"strings"
	"time"
)

// RunKind identifies the kind of scripted agent activity a run simulates.
type RunKind string

// RunKind values.
const (
	RunKindReasoning RunKind = "reasoning"
	RunKindCodegen   RunKind = "codegen"
	RunKindTestRun   RunKind = "testrun"
	RunKindScenario  RunKind = "scenario"
)

// RunStatus describes the lifecycle state of a run.
type RunStatus string

// RunStatus values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the ephemeral state of one timer-driven simulation sequence.
type Run struct {
	ID         string
	Kind       RunKind
	StoryID    string
	Status     RunStatus
	Step       int
	Total      int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewRun constructs a running run record.
func NewRun(id string, kind RunKind, storyID string, total int, now time.Time) (Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, ErrInvalidID
	}
	switch kind {
	case RunKindReasoning, RunKindCodegen, RunKindTestRun, RunKindScenario:
	default:
		return Run{}, ErrInvalidRunKind
	}
	return Run{
		ID:        id,
		Kind:      kind,
		StoryID:   strings.TrimSpace(storyID),
		Status:    RunStatusRunning,
		Total:     max(total, 0),
		StartedAt: now.UTC(),
	}, nil
}

// Advance records one completed step.
func (r *Run) Advance() {
	if r.Step < r.Total {
		r.Step++
	}
}

// Finish moves the run to a terminal status.
func (r *Run) Finish(status RunStatus, now time.Time) {
	if r.Terminal() {
		return
	}
	ts := now.UTC()
	r.Status = status
	r.FinishedAt = &ts
}

// Terminal reports whether the run has finished.
func (r Run) Terminal() bool {
	return r.Status != RunStatusRunning
}
