package app

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hylla/deliveryhub/internal/domain"
)

// NotificationReason names the mutation that produced a notification.
type NotificationReason string

// NotificationReason values.
const (
	ReasonBoardReset       NotificationReason = "board_reset"
	ReasonActivity         NotificationReason = "activity"
	ReasonCodeStreamed     NotificationReason = "code_streamed"
	ReasonStoriesGenerated NotificationReason = "stories_generated"
	ReasonRunStarted       NotificationReason = "run_started"
	ReasonRunProgress      NotificationReason = "run_progress"
	ReasonRunFinished      NotificationReason = "run_finished"
	ReasonScenario         NotificationReason = "scenario_updated"
)

// Notification is delivered to observers after every engine mutation.
type Notification struct {
	Reason   NotificationReason
	Snapshot Snapshot
	Event    *domain.ActivityEvent
	Run      *domain.Run
}

// IDGenerator returns unique identifiers for new runs.
type IDGenerator func() string

// Timings holds the simulation delays.
type Timings struct {
	ReasoningDelays    []time.Duration
	CodeLineInterval   time.Duration
	TestDelay          time.Duration
	ScenarioTickMin    time.Duration
	ScenarioTickMax    time.Duration
	ScenarioAgentPause time.Duration
	ScenarioFinish     time.Duration
}

// DefaultTimings returns the demo timings.
func DefaultTimings() Timings {
	return Timings{
		ReasoningDelays: []time.Duration{
			0,
			600 * time.Millisecond,
			1200 * time.Millisecond,
			1600 * time.Millisecond,
			2500 * time.Millisecond,
		},
		CodeLineInterval:   350 * time.Millisecond,
		TestDelay:          1200 * time.Millisecond,
		ScenarioTickMin:    30 * time.Millisecond,
		ScenarioTickMax:    70 * time.Millisecond,
		ScenarioAgentPause: 700 * time.Millisecond,
		ScenarioFinish:     900 * time.Millisecond,
	}
}

// withDefaults replaces unusable timings with demo defaults.
func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if len(t.ReasoningDelays) == 0 {
		t.ReasoningDelays = def.ReasoningDelays
	}
	if t.CodeLineInterval <= 0 {
		t.CodeLineInterval = def.CodeLineInterval
	}
	if t.TestDelay <= 0 {
		t.TestDelay = def.TestDelay
	}
	if t.ScenarioTickMin <= 0 {
		t.ScenarioTickMin = def.ScenarioTickMin
	}
	if t.ScenarioTickMax < t.ScenarioTickMin {
		t.ScenarioTickMax = max(def.ScenarioTickMax, t.ScenarioTickMin)
	}
	if t.ScenarioAgentPause < 0 {
		t.ScenarioAgentPause = def.ScenarioAgentPause
	}
	if t.ScenarioFinish < 0 {
		t.ScenarioFinish = def.ScenarioFinish
	}
	return t
}

// EngineConfig holds configuration for the engine.
type EngineConfig struct {
	Timings       Timings
	ActivityLimit int
	Content       Content
	Oracle        TestOracle
	ScenarioSeed  uint64
}

// Engine owns the board, the activity log and every scheduled simulation run.
type Engine struct {
	mu      sync.Mutex
	sched   Scheduler
	idGen   IDGenerator
	timings Timings
	content Content
	oracle  TestOracle
	rng     *rand.Rand

	board     domain.Board
	activity  *domain.ActivityLog
	thinking  bool
	generated bool
	scenario  domain.ScenarioState

	runs      map[string]*activeRun
	runSeq    int
	observers []subscription
	nextSub   int
}

// activeRun tracks one in-flight run and its pending step.
type activeRun struct {
	run   domain.Run
	seq   int
	timer Timer
}

// subscription pairs an observer with its registration id.
type subscription struct {
	id  int
	obs Observer
}

// NewEngine constructs an engine with an empty board.
func NewEngine(sched Scheduler, idGen IDGenerator, cfg EngineConfig) *Engine {
	if sched == nil {
		sched = NewManualScheduler(time.Now())
	}
	if idGen == nil {
		idGen = uuid.NewString
	}
	content := cfg.Content.withDefaults()
	oracle := cfg.Oracle
	if oracle == nil {
		first := ""
		if len(content.Stories) > 0 {
			first = content.Stories[0].ID
		}
		oracle = PassStories(first)
	}
	return &Engine{
		sched:    sched,
		idGen:    idGen,
		timings:  cfg.Timings.withDefaults(),
		content:  content,
		oracle:   oracle,
		rng:      rand.New(rand.NewPCG(cfg.ScenarioSeed, cfg.ScenarioSeed^0x9e3779b97f4a7c15)),
		board:    domain.NewBoard(),
		activity: domain.NewActivityLog(cfg.ActivityLimit),
		runs:     map[string]*activeRun{},
	}
}

// Content returns the injected sample content.
func (e *Engine) Content() Content {
	return e.content
}

// Snapshot returns a copy of the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers an observer and returns its unsubscribe func.
func (e *Engine) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.observers = append(e.observers, subscription{id: id, obs: obs})
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.observers = slices.DeleteFunc(e.observers, func(s subscription) bool {
				return s.id == id
			})
		})
	}
}

// InitializeBoard empties every lane and cancels all in-flight runs.
func (e *Engine) InitializeBoard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelRunsLocked(nil)
	e.board = domain.NewBoard()
	e.thinking = false
	e.generated = false
	e.notifyLocked(ReasonBoardReset, nil, nil)
}

// CancelRuns cancels every in-flight run and returns how many were stopped.
func (e *Engine) CancelRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRunsLocked(nil)
}

// GenerateStories plays the reasoning steps and then loads the sample stories into Backlog.
func (e *Engine) GenerateStories() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.thinking {
		return ErrGenerationInFlight
	}
	stories, err := e.content.SampleStories()
	if err != nil {
		return err
	}
	board, err := domain.NewBacklogBoard(stories)
	if err != nil {
		return fmt.Errorf("load sample stories: %w", err)
	}

	e.thinking = true
	ar, err := e.startRunLocked(domain.RunKindReasoning, "", len(e.content.ReasoningSteps)+1)
	if err != nil {
		e.thinking = false
		return err
	}
	e.scheduleReasoningLocked(ar, board, 0)
	return nil
}

// scheduleReasoningLocked queues reasoning step idx relative to the previous step.
func (e *Engine) scheduleReasoningLocked(ar *activeRun, board domain.Board, idx int) {
	step := func() { e.reasoningStepLocked(ar, board, idx) }
	delay := e.reasoningDelay(idx) - e.reasoningDelay(idx-1)
	if idx == 0 && delay <= 0 {
		step()
		return
	}
	e.scheduleLocked(ar, delay, step)
}

// reasoningDelay returns the offset of step idx from the start of generation.
func (e *Engine) reasoningDelay(idx int) time.Duration {
	delays := e.timings.ReasoningDelays
	if idx < 0 || len(delays) == 0 {
		return 0
	}
	if idx >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[idx]
}

// reasoningStepLocked emits one reasoning step, or populates the backlog after the last one.
func (e *Engine) reasoningStepLocked(ar *activeRun, board domain.Board, idx int) {
	steps := e.content.ReasoningSteps
	if idx < len(steps) {
		e.advanceRunLocked(ar)
		e.logLocked(steps[idx])
		e.scheduleReasoningLocked(ar, board, idx+1)
		return
	}

	e.cancelRunsLocked(func(r domain.Run) bool {
		return r.Kind == domain.RunKindCodegen || r.Kind == domain.RunKindTestRun
	})
	e.board = board.Snapshot()
	e.thinking = false
	e.generated = true
	e.advanceRunLocked(ar)
	e.finishRunLocked(ar, domain.RunStatusCompleted)
	e.logLocked(fmt.Sprintf("Agent: Created %d user stories and placed them in Backlog.", e.board.Len()))
	e.notifyLocked(ReasonStoriesGenerated, nil, nil)
}

// MoveStory moves a story between two lanes and fires the lane-entry triggers.
func (e *Engine) MoveStory(id string, from, to domain.Lane) (domain.Story, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.moveLocked(id, from, to)
}

// MoveStoryByID moves a story from whichever lane holds it.
func (e *Engine) MoveStoryByID(id string, to domain.Lane) (domain.Story, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !to.Valid() {
		return domain.Story{}, domain.ErrInvalidLane
	}
	from, _, ok := e.board.Locate(id)
	if !ok {
		return domain.Story{}, fmt.Errorf("%w: %s", ErrStoryNotFound, id)
	}
	return e.moveLocked(id, from, to)
}

// moveLocked performs a validated move, announces it and starts triggered runs.
func (e *Engine) moveLocked(id string, from, to domain.Lane) (domain.Story, error) {
	if !from.Valid() || !to.Valid() {
		return domain.Story{}, domain.ErrInvalidLane
	}
	if from == to {
		return domain.Story{}, ErrSameLane
	}
	if lane, _, ok := e.board.Locate(id); !ok || lane != from {
		return domain.Story{}, fmt.Errorf("%w: %s in %s", ErrStoryNotFound, id, from.Label())
	}
	moved, err := e.board.Move(id, from, to)
	if err != nil {
		return domain.Story{}, fmt.Errorf("%w: %v", ErrStoryNotFound, err)
	}
	e.logLocked(fmt.Sprintf("User moved %s → %s", moved.ID, to.Label()))

	switch to {
	case domain.LaneInProgress:
		if err := e.startCodeGenerationLocked(moved.ID); err != nil {
			return moved, err
		}
	case domain.LaneTesting:
		if err := e.startTestRunLocked(moved.ID); err != nil {
			return moved, err
		}
	}
	current, _ := e.board.Story(moved.ID)
	return current, nil
}

// StartCodeGeneration streams the code template into a story. A run already in flight for the
// story is cancelled and its partial buffer cleared; otherwise existing code is kept.
func (e *Engine) StartCodeGeneration(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startCodeGenerationLocked(id)
}

// startCodeGenerationLocked begins a code generation run for id.
func (e *Engine) startCodeGenerationLocked(id string) error {
	if _, ok := e.board.Story(id); !ok {
		return fmt.Errorf("%w: %s", ErrStoryNotFound, id)
	}
	restarted := e.cancelRunsLocked(func(r domain.Run) bool {
		return r.Kind == domain.RunKindCodegen && r.StoryID == id
	})
	// Only an interrupted stream is discarded; finished code is kept and appended to.
	if restarted > 0 {
		e.board.Update(id, func(s *domain.Story) { s.ResetCode() })
	}

	lines := e.content.CodeTemplate(id)
	ar, err := e.startRunLocked(domain.RunKindCodegen, id, len(lines))
	if err != nil {
		return err
	}
	e.logLocked("Agent: Starting code generation for " + id)
	if len(lines) == 0 {
		e.finishRunLocked(ar, domain.RunStatusCompleted)
		e.logLocked("Agent: Code generation completed for " + id)
		return nil
	}
	e.scheduleCodeLineLocked(ar, lines, 0)
	return nil
}

// scheduleCodeLineLocked queues line idx one interval from now.
func (e *Engine) scheduleCodeLineLocked(ar *activeRun, lines []string, idx int) {
	e.scheduleLocked(ar, e.timings.CodeLineInterval, func() {
		id := ar.run.StoryID
		if _, ok := e.board.Update(id, func(s *domain.Story) { s.AppendCodeLine(lines[idx]) }); ok {
			e.notifyLocked(ReasonCodeStreamed, nil, nil)
		}
		e.advanceRunLocked(ar)
		if idx+1 < len(lines) {
			e.scheduleCodeLineLocked(ar, lines, idx+1)
			return
		}
		e.finishRunLocked(ar, domain.RunStatusCompleted)
		e.logLocked("Agent: Code generation completed for " + id)
	})
}

// StartTestRun schedules the simulated test verdict for a story.
func (e *Engine) StartTestRun(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startTestRunLocked(id)
}

// startTestRunLocked begins a test run for id, replacing one already pending.
func (e *Engine) startTestRunLocked(id string) error {
	if _, ok := e.board.Story(id); !ok {
		return fmt.Errorf("%w: %s", ErrStoryNotFound, id)
	}
	e.cancelRunsLocked(func(r domain.Run) bool {
		return r.Kind == domain.RunKindTestRun && r.StoryID == id
	})
	ar, err := e.startRunLocked(domain.RunKindTestRun, id, 1)
	if err != nil {
		return err
	}
	e.logLocked(fmt.Sprintf("Agent: Running tests for %s (simulated)", id))
	e.scheduleLocked(ar, e.timings.TestDelay, func() {
		e.testVerdictLocked(ar, id)
	})
	return nil
}

// testVerdictLocked asks the oracle and relocates the story to Done or Blocked.
func (e *Engine) testVerdictLocked(ar *activeRun, id string) {
	from, _, ok := e.board.Locate(id)
	if !ok {
		e.finishRunLocked(ar, domain.RunStatusCancelled)
		return
	}
	dest, status := domain.LaneBlocked, domain.RunStatusFailed
	text := fmt.Sprintf("Agent: Tests failed for %s → moved to Blocked", id)
	if e.oracle(id) {
		dest, status = domain.LaneDone, domain.RunStatusCompleted
		text = fmt.Sprintf("Agent: Tests passed for %s → moved to Done", id)
	}
	if from != dest {
		if _, err := e.board.Move(id, from, dest); err != nil {
			e.finishRunLocked(ar, domain.RunStatusCancelled)
			return
		}
	}
	e.advanceRunLocked(ar)
	e.finishRunLocked(ar, status)
	e.logLocked(text)
}

// StartScenario plays a scenario, replacing the one currently running.
func (e *Engine) StartScenario(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sc, ok := e.content.Scenario(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScenarioNotFound, strings.TrimSpace(id))
	}
	e.cancelRunsLocked(func(r domain.Run) bool { return r.Kind == domain.RunKindScenario })

	ar, err := e.startRunLocked(domain.RunKindScenario, "", len(sc.Agents))
	if err != nil {
		return err
	}
	e.scenario = domain.ScenarioState{RunningID: sc.ID, Title: sc.Title, AgentIndex: -1}
	e.logLocked("Scenario started: " + sc.Title)
	e.scenarioAgentLocked(ar, sc, 0)
	return nil
}

// StopScenario cancels the running scenario and reports whether one was running.
func (e *Engine) StopScenario() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	title := e.scenario.Title
	stopped := e.cancelRunsLocked(func(r domain.Run) bool { return r.Kind == domain.RunKindScenario })
	if stopped == 0 {
		return false
	}
	e.logLocked("Scenario stopped: " + title)
	return true
}

// scenarioAgentLocked starts revealing agent idx, or schedules the finish after the last agent.
func (e *Engine) scenarioAgentLocked(ar *activeRun, sc domain.Scenario, idx int) {
	if idx >= len(sc.Agents) {
		e.scheduleLocked(ar, e.timings.ScenarioFinish, func() {
			e.scenario = domain.ScenarioState{}
			e.finishRunLocked(ar, domain.RunStatusCompleted)
			e.logLocked("Scenario completed: " + sc.Title)
		})
		return
	}
	agent := sc.Agents[idx]
	e.scenario.ActiveAgent = agent
	e.scenario.AgentIndex = idx
	e.scenario.Text = ""
	e.notifyLocked(ReasonScenario, nil, nil)

	full := []rune(e.content.AgentOutput(agent))
	tick := e.timings.ScenarioTickMin
	if spread := e.timings.ScenarioTickMax - e.timings.ScenarioTickMin; spread > 0 {
		tick += time.Duration(e.rng.Int64N(int64(spread) + 1))
	}
	e.scenarioChunkLocked(ar, sc, idx, full, 0, tick)
}

// scenarioChunkLocked reveals the next 1 to 5 characters of an agent output.
func (e *Engine) scenarioChunkLocked(ar *activeRun, sc domain.Scenario, idx int, full []rune, shown int, tick time.Duration) {
	e.scheduleLocked(ar, tick, func() {
		shown = min(shown+max(1, e.rng.IntN(6)), len(full))
		e.scenario.Text = string(full[:shown])
		e.notifyLocked(ReasonScenario, nil, nil)
		if shown < len(full) {
			e.scenarioChunkLocked(ar, sc, idx, full, shown, tick)
			return
		}
		e.advanceRunLocked(ar)
		e.scheduleLocked(ar, e.timings.ScenarioAgentPause, func() {
			e.scenarioAgentLocked(ar, sc, idx+1)
		})
	})
}

// startRunLocked registers a new running run.
func (e *Engine) startRunLocked(kind domain.RunKind, storyID string, total int) (*activeRun, error) {
	id := strings.TrimSpace(e.idGen())
	if id == "" {
		id = uuid.NewString()
	}
	run, err := domain.NewRun(id, kind, storyID, total, e.sched.Now())
	if err != nil {
		return nil, fmt.Errorf("start %s run: %w", kind, err)
	}
	e.runSeq++
	ar := &activeRun{run: run, seq: e.runSeq}
	e.runs[run.ID] = ar
	e.notifyLocked(ReasonRunStarted, nil, &run)
	return ar, nil
}

// scheduleLocked queues the next step of a run; stale steps of finished runs are dropped.
func (e *Engine) scheduleLocked(ar *activeRun, d time.Duration, step func()) {
	ar.timer = e.sched.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if current, ok := e.runs[ar.run.ID]; !ok || current != ar {
			return
		}
		step()
	})
}

// advanceRunLocked records one completed step of a run.
func (e *Engine) advanceRunLocked(ar *activeRun) {
	ar.run.Advance()
	run := ar.run
	e.notifyLocked(ReasonRunProgress, nil, &run)
}

// finishRunLocked moves a run to a terminal status and forgets it.
func (e *Engine) finishRunLocked(ar *activeRun, status domain.RunStatus) {
	if _, ok := e.runs[ar.run.ID]; !ok {
		return
	}
	if ar.timer != nil {
		ar.timer.Stop()
	}
	ar.run.Finish(status, e.sched.Now())
	delete(e.runs, ar.run.ID)
	run := ar.run
	e.notifyLocked(ReasonRunFinished, nil, &run)
}

// cancelRunsLocked cancels the runs accepted by match, or every run when match is nil.
func (e *Engine) cancelRunsLocked(match func(domain.Run) bool) int {
	targets := make([]*activeRun, 0, len(e.runs))
	for _, ar := range e.runs {
		if match == nil || match(ar.run) {
			targets = append(targets, ar)
		}
	}
	slices.SortFunc(targets, func(a, b *activeRun) int { return a.seq - b.seq })
	for _, ar := range targets {
		switch ar.run.Kind {
		case domain.RunKindReasoning:
			e.thinking = false
		case domain.RunKindScenario:
			e.scenario = domain.ScenarioState{}
		}
		e.finishRunLocked(ar, domain.RunStatusCancelled)
	}
	return len(targets)
}

// logLocked pushes one activity event.
func (e *Engine) logLocked(text string) domain.ActivityEvent {
	event := e.activity.Push(text, e.sched.Now())
	e.notifyLocked(ReasonActivity, &event, nil)
	return event
}

// notifyLocked delivers a notification to every observer in subscription order.
func (e *Engine) notifyLocked(reason NotificationReason, event *domain.ActivityEvent, run *domain.Run) {
	if len(e.observers) == 0 {
		return
	}
	n := Notification{
		Reason:   reason,
		Snapshot: e.snapshotLocked(),
		Event:    event,
		Run:      run,
	}
	for _, sub := range slices.Clone(e.observers) {
		sub.obs(n)
	}
}

// snapshotLocked copies the current state.
func (e *Engine) snapshotLocked() Snapshot {
	active := make([]*activeRun, 0, len(e.runs))
	streaming := false
	for _, ar := range e.runs {
		active = append(active, ar)
		if ar.run.Kind == domain.RunKindCodegen {
			streaming = true
		}
	}
	slices.SortFunc(active, func(a, b *activeRun) int { return a.seq - b.seq })
	runs := make([]domain.Run, 0, len(active))
	for _, ar := range active {
		runs = append(runs, ar.run)
	}
	return Snapshot{
		Board:         e.board.Snapshot(),
		Activity:      e.activity.Events(),
		ActivityLimit: e.activity.Limit(),
		Thinking:      e.thinking,
		Streaming:     streaming,
		Generated:     e.generated,
		Scenario:      e.scenario,
		Runs:          runs,
	}
}
