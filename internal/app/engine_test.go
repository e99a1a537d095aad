package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hylla/deliveryhub/internal/domain"
)

var testStart = time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg EngineConfig) (*Engine, *ManualScheduler) {
	t.Helper()
	sched := NewManualScheduler(testStart)
	seq := 0
	idGen := func() string {
		seq++
		return fmt.Sprintf("run-%d", seq)
	}
	return NewEngine(sched, idGen, cfg), sched
}

func generateBoard(t *testing.T, e *Engine, sched *ManualScheduler) {
	t.Helper()
	if err := e.GenerateStories(); err != nil {
		t.Fatalf("GenerateStories() error = %v", err)
	}
	sched.Advance(2500 * time.Millisecond)
	if got := len(e.Snapshot().Stories(domain.LaneBacklog)); got != 3 {
		t.Fatalf("expected 3 backlog stories, got %d", got)
	}
}

func activityTexts(s Snapshot) []string {
	out := make([]string, 0, len(s.Activity))
	for _, event := range s.Activity {
		out = append(out, event.Text)
	}
	return out
}

func storyIDs(stories []domain.Story) []string {
	out := make([]string, 0, len(stories))
	for _, story := range stories {
		out = append(out, story.ID)
	}
	return out
}

func mustStory(t *testing.T, s Snapshot, id string) domain.Story {
	t.Helper()
	story, ok := s.Story(id)
	if !ok {
		t.Fatalf("expected story %q on the board", id)
	}
	return story
}

func TestGenerateStoriesBulkLoad(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	if err := e.GenerateStories(); err != nil {
		t.Fatalf("GenerateStories() error = %v", err)
	}
	snap := e.Snapshot()
	if !snap.Thinking || snap.Generated {
		t.Fatalf("expected thinking before completion, got thinking=%t generated=%t", snap.Thinking, snap.Generated)
	}
	if got := activityTexts(snap); len(got) != 1 || !strings.HasPrefix(got[0], "User clicked Approve") {
		t.Fatalf("expected first reasoning step immediately, got %#v", got)
	}
	if err := e.GenerateStories(); !errors.Is(err, ErrGenerationInFlight) || !errors.Is(err, ErrNoop) {
		t.Fatalf("expected ErrGenerationInFlight, got %v", err)
	}

	sched.Advance(2499 * time.Millisecond)
	snap = e.Snapshot()
	if snap.Board.Len() != 0 || !snap.Thinking {
		t.Fatalf("expected empty board while thinking, got %d stories", snap.Board.Len())
	}
	if got := len(snap.Activity); got != 4 {
		t.Fatalf("expected 4 reasoning events before completion, got %d", got)
	}

	sched.Advance(time.Millisecond)
	snap = e.Snapshot()
	if snap.Thinking || !snap.Generated {
		t.Fatalf("expected generation completed, got thinking=%t generated=%t", snap.Thinking, snap.Generated)
	}
	if got := storyIDs(snap.Stories(domain.LaneBacklog)); !slices.Equal(got, []string{"S-101", "S-102", "S-103"}) {
		t.Fatalf("unexpected backlog %#v", got)
	}
	for _, lane := range domain.Lanes()[1:] {
		if got := snap.Stories(lane); len(got) != 0 {
			t.Fatalf("expected %s empty, got %#v", lane, got)
		}
	}
	want := []string{
		"Agent: Created 3 user stories and placed them in Backlog.",
		"Agent: Formatting stories for backlog...",
		"Agent: Extracting epics and candidate stories...",
		"Agent: Summarizing BRD...",
		"User clicked Approve — agent starting BRD/TAP reasoning (simulated)...",
	}
	if got := activityTexts(snap); !slices.Equal(got, want) {
		t.Fatalf("unexpected activity %#v", got)
	}
	if len(snap.Runs) != 0 || sched.Pending() != 0 {
		t.Fatalf("expected no runs left, got %#v pending=%d", snap.Runs, sched.Pending())
	}
}

func TestMoveStoryNoopsLeaveStateUnchanged(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)
	before := e.Snapshot()

	if _, err := e.MoveStory("S-101", domain.LaneBacklog, domain.LaneBacklog); !errors.Is(err, ErrSameLane) || !errors.Is(err, ErrNoop) {
		t.Fatalf("expected ErrSameLane, got %v", err)
	}
	if _, err := e.MoveStory("nonexistent", domain.LaneBacklog, domain.LaneDone); !errors.Is(err, ErrStoryNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
	if _, err := e.MoveStory("S-101", domain.LaneDone, domain.LaneBlocked); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound for wrong source lane, got %v", err)
	}
	if _, err := e.MoveStoryByID("nonexistent", domain.LaneDone); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
	if _, err := e.MoveStoryByID("S-101", domain.LaneBacklog); !errors.Is(err, ErrSameLane) {
		t.Fatalf("expected ErrSameLane, got %v", err)
	}
	if _, err := e.MoveStoryByID("S-101", domain.Lane("review")); !errors.Is(err, domain.ErrInvalidLane) {
		t.Fatalf("expected ErrInvalidLane, got %v", err)
	}

	after := e.Snapshot()
	if len(after.Activity) != len(before.Activity) {
		t.Fatalf("expected no events, got %d new", len(after.Activity)-len(before.Activity))
	}
	for _, lane := range domain.Lanes() {
		if got, want := storyIDs(after.Stories(lane)), storyIDs(before.Stories(lane)); !slices.Equal(got, want) {
			t.Fatalf("lane %s changed from %#v to %#v", lane, want, got)
		}
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected no runs started, got %d pending", sched.Pending())
	}
}

func TestMoveStoryEmitsEventAndPrepends(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	moved, err := e.MoveStory("S-103", domain.LaneBacklog, domain.LaneDone)
	if err != nil {
		t.Fatalf("MoveStory() error = %v", err)
	}
	if moved.Status != domain.LaneDone {
		t.Fatalf("expected done status, got %q", moved.Status)
	}
	if _, err := e.MoveStory("S-102", domain.LaneBacklog, domain.LaneDone); err != nil {
		t.Fatalf("MoveStory() error = %v", err)
	}
	snap := e.Snapshot()
	if got := storyIDs(snap.Stories(domain.LaneDone)); !slices.Equal(got, []string{"S-102", "S-103"}) {
		t.Fatalf("expected prepend order, got %#v", got)
	}
	if got := snap.Activity[0].Text; got != "User moved S-102 → Done" {
		t.Fatalf("unexpected move event %q", got)
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected no trigger for Done, got %d pending", sched.Pending())
	}
}

func TestCodeGenerationStreamsTemplate(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStory("S-101", domain.LaneBacklog, domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStory() error = %v", err)
	}
	snap := e.Snapshot()
	if !snap.Streaming {
		t.Fatal("expected streaming while code generation runs")
	}
	if got := activityTexts(snap)[:2]; !slices.Equal(got, []string{"Agent: Starting code generation for S-101", "User moved S-101 → In Progress"}) {
		t.Fatalf("unexpected start events %#v", got)
	}

	sched.Advance(350 * time.Millisecond)
	if got := mustStory(t, e.Snapshot(), "S-101").GeneratedCode; got != "def s-101_handler(user, payload):\n" {
		t.Fatalf("unexpected first line %q", got)
	}

	sched.Advance(5 * 350 * time.Millisecond)
	snap = e.Snapshot()
	want := strings.Join(DefaultCodeTemplate("S-101"), "\n") + "\n"
	if got := mustStory(t, snap, "S-101").GeneratedCode; got != want {
		t.Fatalf("unexpected generated code\n got: %q\nwant: %q", got, want)
	}
	if snap.Streaming {
		t.Fatal("expected streaming cleared after the last line")
	}
	if snap.Activity[0].Text != "Agent: Code generation completed for S-101" {
		t.Fatalf("unexpected completion event %q", snap.Activity[0].Text)
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected run finished, got %d pending", sched.Pending())
	}
}

func TestCodeGenerationFollowsMovedStory(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStoryByID("S-102", domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	sched.Advance(700 * time.Millisecond)
	if _, err := e.MoveStoryByID("S-102", domain.LaneDone); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	sched.Advance(4 * 350 * time.Millisecond)
	story := mustStory(t, e.Snapshot(), "S-102")
	if story.Status != domain.LaneDone {
		t.Fatalf("expected story in done, got %q", story.Status)
	}
	if got := strings.Count(story.GeneratedCode, "\n"); got != 6 {
		t.Fatalf("expected six streamed lines, got %d", got)
	}
}

func TestRestartCodeGenerationClearsBuffer(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStory("S-101", domain.LaneBacklog, domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStory() error = %v", err)
	}
	sched.Advance(700 * time.Millisecond)
	if err := e.StartCodeGeneration("S-101"); err != nil {
		t.Fatalf("StartCodeGeneration() error = %v", err)
	}
	snap := e.Snapshot()
	if got := mustStory(t, snap, "S-101").GeneratedCode; got != "" {
		t.Fatalf("expected buffer cleared on restart, got %q", got)
	}
	if got := len(snap.Runs); got != 1 {
		t.Fatalf("expected exactly one code generation run, got %d", got)
	}

	sched.Advance(10 * time.Second)
	want := strings.Join(DefaultCodeTemplate("S-101"), "\n") + "\n"
	if got := mustStory(t, e.Snapshot(), "S-101").GeneratedCode; got != want {
		t.Fatalf("expected a single template copy, got %q", got)
	}
	if err := e.StartCodeGeneration("missing"); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
}

func TestTestRunRule(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStory("S-101", domain.LaneBacklog, domain.LaneTesting); err != nil {
		t.Fatalf("MoveStory(S-101) error = %v", err)
	}
	if _, err := e.MoveStoryByID("S-102", domain.LaneTesting); err != nil {
		t.Fatalf("MoveStoryByID(S-102) error = %v", err)
	}
	if got := e.Snapshot().Activity[0].Text; got != "Agent: Running tests for S-102 (simulated)" {
		t.Fatalf("unexpected test start event %q", got)
	}

	sched.Advance(1199 * time.Millisecond)
	if got := len(e.Snapshot().Stories(domain.LaneTesting)); got != 2 {
		t.Fatalf("expected both stories still testing, got %d", got)
	}

	sched.Advance(time.Millisecond)
	snap := e.Snapshot()
	if got := mustStory(t, snap, "S-101").Status; got != domain.LaneDone {
		t.Fatalf("expected S-101 done, got %q", got)
	}
	if got := mustStory(t, snap, "S-102").Status; got != domain.LaneBlocked {
		t.Fatalf("expected S-102 blocked, got %q", got)
	}
	texts := activityTexts(snap)
	if !slices.Contains(texts, "Agent: Tests passed for S-101 → moved to Done") {
		t.Fatalf("expected pass event, got %#v", texts)
	}
	if !slices.Contains(texts, "Agent: Tests failed for S-102 → moved to Blocked") {
		t.Fatalf("expected fail event, got %#v", texts)
	}
	if err := snap.Board.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestTestRunUsesInjectedOracle(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{Oracle: PassStories("S-103")})
	generateBoard(t, e, sched)

	for _, id := range []string{"S-101", "S-103"} {
		if err := e.StartTestRun(id); err != nil {
			t.Fatalf("StartTestRun(%s) error = %v", id, err)
		}
	}
	sched.Advance(1200 * time.Millisecond)
	snap := e.Snapshot()
	if got := mustStory(t, snap, "S-103").Status; got != domain.LaneDone {
		t.Fatalf("expected S-103 done, got %q", got)
	}
	if got := mustStory(t, snap, "S-101").Status; got != domain.LaneBlocked {
		t.Fatalf("expected S-101 blocked, got %q", got)
	}
	if err := e.StartTestRun("missing"); !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
}

func TestMoveStoryByIDPreservesFields(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStoryByID("S-101", domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	sched.Advance(6 * 350 * time.Millisecond)
	before := mustStory(t, e.Snapshot(), "S-101")

	moved, err := e.MoveStoryByID("S-101", domain.LaneTesting)
	if err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	if moved.GeneratedCode != before.GeneratedCode || !slices.Equal(moved.AcceptanceCriteria, before.AcceptanceCriteria) {
		t.Fatalf("expected mutable fields preserved, got %#v", moved)
	}
	sched.Advance(1200 * time.Millisecond)
	done := mustStory(t, e.Snapshot(), "S-101")
	if done.Status != domain.LaneDone || done.GeneratedCode != before.GeneratedCode {
		t.Fatalf("expected code preserved through the test verdict, got %#v", done)
	}
	if len(done.AcceptanceCriteria) != 3 {
		t.Fatalf("expected acceptance criteria kept, got %#v", done.AcceptanceCriteria)
	}
}

func TestMoveStoryByIDIntoInProgressKeepsExistingCode(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStoryByID("S-101", domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	sched.Advance(6 * 350 * time.Millisecond)
	if _, err := e.MoveStoryByID("S-101", domain.LaneBlocked); err != nil {
		t.Fatalf("MoveStoryByID(blocked) error = %v", err)
	}
	before := mustStory(t, e.Snapshot(), "S-101")
	if before.GeneratedCode == "" {
		t.Fatal("expected generated code before moving back")
	}

	moved, err := e.MoveStoryByID("S-101", domain.LaneInProgress)
	if err != nil {
		t.Fatalf("MoveStoryByID(in progress) error = %v", err)
	}
	if moved.GeneratedCode != before.GeneratedCode || !slices.Equal(moved.AcceptanceCriteria, before.AcceptanceCriteria) {
		t.Fatalf("expected mutable fields preserved, got %#v", moved)
	}
	if got := mustStory(t, e.Snapshot(), "S-101").GeneratedCode; got != before.GeneratedCode {
		t.Fatalf("expected snapshot code preserved, got %q", got)
	}

	sched.Advance(6 * 350 * time.Millisecond)
	template := strings.Join(DefaultCodeTemplate("S-101"), "\n") + "\n"
	if got := mustStory(t, e.Snapshot(), "S-101").GeneratedCode; got != before.GeneratedCode+template {
		t.Fatalf("expected new lines appended to existing code, got %q", got)
	}
}

func TestBoardPartitionHoldsAcrossOperations(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	check := func(step string) {
		t.Helper()
		snap := e.Snapshot()
		if err := snap.Board.Validate(); err != nil {
			t.Fatalf("%s: Validate() error = %v", step, err)
		}
		if snap.Board.Len() != 3 {
			t.Fatalf("%s: expected 3 stories, got %d", step, snap.Board.Len())
		}
	}
	moves := []struct {
		id string
		to domain.Lane
	}{
		{"S-101", domain.LaneInProgress},
		{"S-102", domain.LaneTesting},
		{"S-101", domain.LaneTesting},
		{"S-103", domain.LaneBlocked},
		{"S-103", domain.LaneBacklog},
		{"S-102", domain.LaneInProgress},
	}
	for i, mv := range moves {
		if _, err := e.MoveStoryByID(mv.id, mv.to); err != nil {
			t.Fatalf("move %d error = %v", i, err)
		}
		check(fmt.Sprintf("move %d", i))
		sched.Advance(400 * time.Millisecond)
		check(fmt.Sprintf("advance %d", i))
	}
	sched.Advance(10 * time.Second)
	check("settled")
}

func TestInitializeBoardCancelsInFlightRuns(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)

	if _, err := e.MoveStoryByID("S-101", domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	if _, err := e.MoveStoryByID("S-102", domain.LaneTesting); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	if err := e.StartScenario("kyc_migration"); err != nil {
		t.Fatalf("StartScenario() error = %v", err)
	}
	e.InitializeBoard()
	e.InitializeBoard()

	snap := e.Snapshot()
	if snap.Board.Len() != 0 || snap.Streaming || snap.Generated || snap.Scenario.Running() {
		t.Fatalf("expected idle empty board, got %#v", snap)
	}
	if len(snap.Runs) != 0 || sched.Pending() != 0 {
		t.Fatalf("expected every run cancelled, got runs=%d pending=%d", len(snap.Runs), sched.Pending())
	}
	events := len(snap.Activity)
	sched.Advance(30 * time.Second)
	if got := len(e.Snapshot().Activity); got != events {
		t.Fatalf("expected no stale timer events, got %d new", got-events)
	}
}

func TestInitializeBoardDuringGenerationDropsPopulate(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	if err := e.GenerateStories(); err != nil {
		t.Fatalf("GenerateStories() error = %v", err)
	}
	sched.Advance(700 * time.Millisecond)
	e.InitializeBoard()
	sched.Advance(5 * time.Second)

	snap := e.Snapshot()
	if snap.Thinking || snap.Board.Len() != 0 {
		t.Fatalf("expected cancelled generation, got thinking=%t stories=%d", snap.Thinking, snap.Board.Len())
	}
	for _, text := range activityTexts(snap) {
		if strings.HasPrefix(text, "Agent: Created") {
			t.Fatalf("unexpected populate event %q", text)
		}
	}
	if err := e.GenerateStories(); err != nil {
		t.Fatalf("expected generation allowed after reset, got %v", err)
	}
}

func TestRegenerationCancelsStoryRuns(t *testing.T) {
	timings := DefaultTimings()
	timings.CodeLineInterval = time.Second
	e, sched := newTestEngine(t, EngineConfig{Timings: timings})
	generateBoard(t, e, sched)

	if _, err := e.MoveStoryByID("S-101", domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	if err := e.GenerateStories(); err != nil {
		t.Fatalf("GenerateStories() error = %v", err)
	}
	sched.Advance(2500 * time.Millisecond)
	snap := e.Snapshot()
	if got := storyIDs(snap.Stories(domain.LaneBacklog)); len(got) != 3 {
		t.Fatalf("expected fresh backlog, got %#v", got)
	}
	if snap.Streaming || len(snap.Runs) != 0 {
		t.Fatalf("expected story runs cancelled, got %#v", snap.Runs)
	}
	sched.Advance(10 * time.Second)
	if got := mustStory(t, e.Snapshot(), "S-101").GeneratedCode; got != "" {
		t.Fatalf("expected no stale streaming, got %q", got)
	}
}

func TestScenarioPlayback(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{ScenarioSeed: 7})
	type frame struct {
		agent string
		text  string
	}
	var frames []frame
	unsubscribe := e.Subscribe(func(n Notification) {
		if n.Reason == ReasonScenario && n.Snapshot.Scenario.Running() {
			frames = append(frames, frame{agent: n.Snapshot.Scenario.ActiveAgent, text: n.Snapshot.Scenario.Text})
		}
	})
	defer unsubscribe()

	if err := e.StartScenario("nope"); !errors.Is(err, ErrScenarioNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrScenarioNotFound, got %v", err)
	}
	if err := e.StartScenario("payments_brd"); err != nil {
		t.Fatalf("StartScenario() error = %v", err)
	}
	snap := e.Snapshot()
	if snap.Scenario.RunningID != "payments_brd" || snap.Scenario.ActiveAgent != "Requirements Intelligence" || snap.Scenario.Text != "" {
		t.Fatalf("unexpected initial scenario state %#v", snap.Scenario)
	}

	sched.RunUntilIdle(10000)
	snap = e.Snapshot()
	if snap.Scenario.Running() {
		t.Fatalf("expected scenario cleared, got %#v", snap.Scenario)
	}
	texts := activityTexts(snap)
	if !slices.Equal(texts, []string{"Scenario completed: Payments BRD Generation", "Scenario started: Payments BRD Generation"}) {
		t.Fatalf("unexpected scenario events %#v", texts)
	}

	content := e.Content()
	sc, _ := content.Scenario("payments_brd")
	var order []string
	last := map[string]string{}
	for _, f := range frames {
		if len(order) == 0 || order[len(order)-1] != f.agent {
			order = append(order, f.agent)
		}
		if prev := last[f.agent]; !strings.HasPrefix(f.text, prev) {
			t.Fatalf("expected growing text for %s, got %q after %q", f.agent, f.text, prev)
		}
		if grown := len(f.text) - len(last[f.agent]); grown > 5 {
			t.Fatalf("expected chunks of at most 5 characters, got %d", grown)
		}
		last[f.agent] = f.text
	}
	if !slices.Equal(order, sc.Agents) {
		t.Fatalf("expected agents in scenario order, got %#v", order)
	}
	for _, agent := range sc.Agents {
		if last[agent] != content.AgentOutput(agent) {
			t.Fatalf("expected full output for %s, got %q", agent, last[agent])
		}
	}
}

func TestStopScenario(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	if e.StopScenario() {
		t.Fatal("expected no scenario to stop")
	}
	if err := e.StartScenario("core_bank"); err != nil {
		t.Fatalf("StartScenario() error = %v", err)
	}
	sched.Advance(200 * time.Millisecond)
	if err := e.StartScenario("fraud_rollout"); err != nil {
		t.Fatalf("StartScenario() restart error = %v", err)
	}
	if got := e.Snapshot().Scenario.ActiveAgent; got != "User Journey Synthesizer" {
		t.Fatalf("expected restarted scenario, got agent %q", got)
	}
	if !e.StopScenario() {
		t.Fatal("expected running scenario to stop")
	}
	snap := e.Snapshot()
	if snap.Scenario.Running() || sched.Pending() != 0 {
		t.Fatalf("expected scenario stopped, got %#v pending=%d", snap.Scenario, sched.Pending())
	}
	if snap.Activity[0].Text != "Scenario stopped: Fraud Detection Rollout" {
		t.Fatalf("unexpected stop event %q", snap.Activity[0].Text)
	}
}

func TestSubscribeDeliversNotifications(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	reasons := map[NotificationReason]int{}
	events := 0
	unsubscribe := e.Subscribe(func(n Notification) {
		reasons[n.Reason]++
		if n.Event != nil {
			events++
		}
	})
	generateBoard(t, e, sched)
	if reasons[ReasonStoriesGenerated] != 1 {
		t.Fatalf("expected one stories_generated notification, got %d", reasons[ReasonStoriesGenerated])
	}
	if reasons[ReasonRunStarted] != 1 || reasons[ReasonRunFinished] != 1 {
		t.Fatalf("expected reasoning run lifecycle, got %#v", reasons)
	}
	if events != 5 {
		t.Fatalf("expected 5 activity notifications, got %d", events)
	}

	unsubscribe()
	unsubscribe()
	e.InitializeBoard()
	if reasons[ReasonBoardReset] != 0 {
		t.Fatalf("expected no notifications after unsubscribe, got %#v", reasons)
	}
}

type fakeJournal struct {
	activity []domain.ActivityEvent
	runs     map[string]domain.Run
	fail     error
}

func (f *fakeJournal) RecordActivity(_ context.Context, event domain.ActivityEvent) error {
	if f.fail != nil {
		return f.fail
	}
	f.activity = append(f.activity, event)
	return nil
}

func (f *fakeJournal) RecordRun(_ context.Context, run domain.Run) error {
	if f.fail != nil {
		return f.fail
	}
	if f.runs == nil {
		f.runs = map[string]domain.Run{}
	}
	f.runs[run.ID] = run
	return nil
}

func TestJournalRecorderMirrorsActivityAndRuns(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	journal := &fakeJournal{}
	e.Subscribe(JournalRecorder(context.Background(), journal, nil))

	generateBoard(t, e, sched)
	if _, err := e.MoveStoryByID("S-102", domain.LaneTesting); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	sched.Advance(1200 * time.Millisecond)

	if got, want := len(journal.activity), len(e.Snapshot().Activity); got != want {
		t.Fatalf("expected %d journaled events, got %d", want, got)
	}
	if got := journal.runs["run-1"]; got.Kind != domain.RunKindReasoning || got.Status != domain.RunStatusCompleted {
		t.Fatalf("unexpected reasoning run %#v", got)
	}
	if got := journal.runs["run-2"]; got.Kind != domain.RunKindTestRun || got.Status != domain.RunStatusFailed || got.StoryID != "S-102" {
		t.Fatalf("unexpected test run %#v", got)
	}
}

func TestJournalRecorderReportsErrors(t *testing.T) {
	e, _ := newTestEngine(t, EngineConfig{})
	boom := errors.New("boom")
	var reported []error
	e.Subscribe(JournalRecorder(context.Background(), &fakeJournal{fail: boom}, func(err error) {
		reported = append(reported, err)
	}))
	if err := e.StartScenario("payments_brd"); err != nil {
		t.Fatalf("StartScenario() error = %v", err)
	}
	if len(reported) == 0 || !errors.Is(reported[0], boom) {
		t.Fatalf("expected journal failure reported, got %#v", reported)
	}
	if !e.Snapshot().Scenario.Running() {
		t.Fatal("expected engine unaffected by journal failure")
	}
}

func TestSnapshotDocument(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{})
	generateBoard(t, e, sched)
	if _, err := e.MoveStoryByID("S-101", domain.LaneInProgress); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	doc := e.Snapshot().Document(sched.Now())
	if doc.Version != SnapshotVersion || len(doc.Lanes) != 5 {
		t.Fatalf("unexpected document header %#v", doc)
	}
	if doc.Lanes[1].Label != "In Progress" || len(doc.Lanes[1].Stories) != 1 {
		t.Fatalf("unexpected in progress lane %#v", doc.Lanes[1])
	}
	if !doc.Streaming || len(doc.Runs) != 1 || doc.Runs[0].Kind != domain.RunKindCodegen {
		t.Fatalf("expected active codegen run, got %#v", doc.Runs)
	}
}

func TestContentOverridesKeepDefaults(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{Content: Content{
		Stories: []domain.StoryInput{{ID: "X-1", Title: "Custom"}},
	}})
	if e.Content().BRD == "" || len(e.Content().Scenarios) != 4 {
		t.Fatal("expected defaults filled for omitted content")
	}
	if err := e.GenerateStories(); err != nil {
		t.Fatalf("GenerateStories() error = %v", err)
	}
	sched.Advance(2500 * time.Millisecond)
	snap := e.Snapshot()
	if got := snap.Activity[0].Text; got != "Agent: Created 1 user stories and placed them in Backlog." {
		t.Fatalf("unexpected count event %q", got)
	}
	if _, err := e.MoveStoryByID("X-1", domain.LaneTesting); err != nil {
		t.Fatalf("MoveStoryByID() error = %v", err)
	}
	sched.Advance(1200 * time.Millisecond)
	if got := mustStory(t, e.Snapshot(), "X-1").Status; got != domain.LaneDone {
		t.Fatalf("expected first configured story to pass by default, got %q", got)
	}

	bad, _ := newTestEngine(t, EngineConfig{Content: Content{
		Stories: []domain.StoryInput{{ID: "X-1", Title: "a"}, {ID: "X-1", Title: "b"}},
	}})
	if err := bad.GenerateStories(); !errors.Is(err, domain.ErrDuplicateStory) {
		t.Fatalf("expected ErrDuplicateStory, got %v", err)
	}
	if bad.Snapshot().Thinking {
		t.Fatal("expected failed generation to leave thinking unset")
	}
}

func TestSnapshotReportsActivityRetention(t *testing.T) {
	e, sched := newTestEngine(t, EngineConfig{ActivityLimit: 3})
	generateBoard(t, e, sched)

	snap := e.Snapshot()
	if snap.ActivityLimit != 3 {
		t.Fatalf("ActivityLimit = %d, want 3", snap.ActivityLimit)
	}
	if len(snap.Activity) != 3 {
		t.Fatalf("expected activity trimmed to the limit, got %d events", len(snap.Activity))
	}
	if got := activityTexts(snap)[0]; got != "Agent: Created 3 user stories and placed them in Backlog." {
		t.Fatalf("expected newest event retained first, got %q", got)
	}

	e, _ = newTestEngine(t, EngineConfig{})
	if got := e.Snapshot().ActivityLimit; got != domain.DefaultActivityLimit {
		t.Fatalf("default ActivityLimit = %d, want %d", got, domain.DefaultActivityLimit)
	}
}
