package app

import (
	"slices"
	"time"

	"github.com/hylla/deliveryhub/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "hub.snapshot.v1"

// Snapshot is an immutable copy of the engine state.
type Snapshot struct {
	Board    domain.Board
	Activity []domain.ActivityEvent
	// ActivityLimit is how many events the engine retains.
	ActivityLimit int
	Thinking      bool
	Streaming     bool
	Generated     bool
	Scenario      domain.ScenarioState
	Runs          []domain.Run
}

// Stories returns the stories of one lane in display order.
func (s Snapshot) Stories(lane domain.Lane) []domain.Story {
	return s.Board.Stories(lane)
}

// Story looks up one story by id.
func (s Snapshot) Story(id string) (domain.Story, bool) {
	return s.Board.Story(id)
}

// ActiveRun returns the in-flight run of a kind for a story, if any.
func (s Snapshot) ActiveRun(kind domain.RunKind, storyID string) (domain.Run, bool) {
	idx := slices.IndexFunc(s.Runs, func(r domain.Run) bool {
		return r.Kind == kind && r.StoryID == storyID
	})
	if idx < 0 {
		return domain.Run{}, false
	}
	return s.Runs[idx], true
}

// SnapshotDocument is the serializable export of a snapshot.
type SnapshotDocument struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Thinking   bool              `json:"thinking"`
	Streaming  bool              `json:"streaming"`
	Generated  bool              `json:"generated"`
	Lanes      []SnapshotLane    `json:"lanes"`
	Activity   []SnapshotEvent   `json:"activity"`
	Runs       []SnapshotRun     `json:"runs,omitempty"`
	Scenario   *SnapshotScenario `json:"scenario,omitempty"`
}

// SnapshotLane represents snapshot lane data used by this package.
type SnapshotLane struct {
	Lane    domain.Lane     `json:"lane"`
	Label   string          `json:"label"`
	Stories []SnapshotStory `json:"stories"`
}

// SnapshotStory represents snapshot story data used by this package.
type SnapshotStory struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Status             string   `json:"status"`
	GeneratedCode      string   `json:"generated_code,omitempty"`
}

// SnapshotEvent represents snapshot activity data used by this package.
type SnapshotEvent struct {
	ID   int64     `json:"id"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SnapshotRun represents snapshot run data used by this package.
type SnapshotRun struct {
	ID        string           `json:"id"`
	Kind      domain.RunKind   `json:"kind"`
	StoryID   string           `json:"story_id,omitempty"`
	Status    domain.RunStatus `json:"status"`
	Step      int              `json:"step"`
	Total     int              `json:"total"`
	StartedAt time.Time        `json:"started_at"`
}

// SnapshotScenario represents snapshot scenario data used by this package.
type SnapshotScenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ActiveAgent string `json:"active_agent,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Document converts the snapshot to its serializable export form.
func (s Snapshot) Document(now time.Time) SnapshotDocument {
	doc := SnapshotDocument{
		Version:    SnapshotVersion,
		ExportedAt: now.UTC(),
		Thinking:   s.Thinking,
		Streaming:  s.Streaming,
		Generated:  s.Generated,
		Lanes:      make([]SnapshotLane, 0, len(domain.Lanes())),
		Activity:   make([]SnapshotEvent, 0, len(s.Activity)),
	}
	for _, lane := range domain.Lanes() {
		stories := s.Board.Stories(lane)
		out := SnapshotLane{Lane: lane, Label: lane.Label(), Stories: make([]SnapshotStory, 0, len(stories))}
		for _, story := range stories {
			out.Stories = append(out.Stories, SnapshotStory{
				ID:                 story.ID,
				Title:              story.Title,
				Description:        story.Description,
				AcceptanceCriteria: story.AcceptanceCriteria,
				Status:             story.Status.Label(),
				GeneratedCode:      story.GeneratedCode,
			})
		}
		doc.Lanes = append(doc.Lanes, out)
	}
	for _, event := range s.Activity {
		doc.Activity = append(doc.Activity, SnapshotEvent(event))
	}
	for _, run := range s.Runs {
		doc.Runs = append(doc.Runs, SnapshotRun{
			ID:        run.ID,
			Kind:      run.Kind,
			StoryID:   run.StoryID,
			Status:    run.Status,
			Step:      run.Step,
			Total:     run.Total,
			StartedAt: run.StartedAt,
		})
	}
	if s.Scenario.Running() {
		doc.Scenario = &SnapshotScenario{
			ID:          s.Scenario.RunningID,
			Title:       s.Scenario.Title,
			ActiveAgent: s.Scenario.ActiveAgent,
			Text:        s.Scenario.Text,
		}
	}
	return doc
}
