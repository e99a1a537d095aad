package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/atotto/clipboard"

	"github.com/hylla/deliveryhub/internal/app"
	"github.com/hylla/deliveryhub/internal/domain"
)

// Service represents service data used by this package.
type Service interface {
	Content() app.Content
	Snapshot() app.Snapshot
	GenerateStories() error
	MoveStory(id string, from, to domain.Lane) (domain.Story, error)
	MoveStoryByID(id string, to domain.Lane) (domain.Story, error)
	InitializeBoard()
	StartScenario(id string) error
	StopScenario() bool
}

// stage identifies which screen of the hub is shown.
type stage int

// stage values.
const (
	stageIdea stage = iota
	stageReview
	stageKanban
)

// inputMode identifies the active overlay.
type inputMode int

// inputMode values.
const (
	modeNone inputMode = iota
	modeStoryDetail
	modeCommandPalette
)

// defaultActivityRows caps the activity panel when no option overrides it.
const defaultActivityRows = 8

// commandPaletteItem describes one command-palette command.
type commandPaletteItem struct {
	Command     string
	Aliases     []string
	Description string
}

// actionMsg carries the outcome of an asynchronous action.
type actionMsg struct {
	status string
	err    error
}

// Model represents model data used by this package.
type Model struct {
	svc       Service
	feed      *Feed
	clipboard ClipboardWriter
	now       func() time.Time

	content app.Content
	snap    app.Snapshot

	ready  bool
	width  int
	height int
	stage  stage
	mode   inputMode
	status string

	selectedLane  int
	selectedStory int
	detailID      string
	activityRows  int

	help           help.Model
	keys           keyMap
	markdown       *markdownRenderer
	commandInput   textinput.Model
	commandMatches []commandPaletteItem
	commandIndex   int
}

// NewModel constructs a new value for this package.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	commandInput := textinput.New()
	commandInput.Prompt = ": "
	commandInput.Placeholder = "type to filter commands"
	commandInput.CharLimit = 120
	m := Model{
		svc:          svc,
		clipboard:    clipboard.WriteAll,
		now:          time.Now,
		status:       "ready",
		activityRows: defaultActivityRows,
		help:         h,
		keys:         newKeyMap(),
		markdown:     &markdownRenderer{},
		commandInput: commandInput,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	if svc != nil {
		m.content = svc.Content()
		m.applySnapshot(svc.Snapshot())
		if m.snap.Generated {
			m.stage = stageKanban
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return waitForNotification(m.feed)
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case notificationMsg:
		m.applySnapshot(msg.notification.Snapshot)
		return m, waitForNotification(m.feed)

	case feedClosedMsg:
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// applySnapshot stores snap, advances the stage once stories exist, and clamps focus.
func (m *Model) applySnapshot(snap app.Snapshot) {
	focusID := m.selectedStoryID()
	m.snap = snap
	if m.stage == stageReview && snap.Generated {
		m.stage = stageKanban
		m.status = fmt.Sprintf("%d stories ready", snap.Board.Len())
	}
	if focusID != "" && m.focusStory(focusID) {
		return
	}
	m.clampSelection()
}

// refresh pulls a fresh snapshot after a synchronous service call.
func (m *Model) refresh() {
	if m.svc == nil {
		return
	}
	m.applySnapshot(m.svc.Snapshot())
}

// handleKey routes key presses by overlay and stage.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.mode {
	case modeCommandPalette:
		return m.handleCommandPaletteKey(msg)
	case modeStoryDetail:
		return m.handleStoryDetailKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.commandPalette):
		return m.openCommandPalette()
	case key.Matches(msg, m.keys.stopScenario):
		if m.svc.StopScenario() {
			m.status = "scenario stopped"
		} else {
			m.status = "no scenario running"
		}
		m.refresh()
		return m, nil
	}

	switch m.stage {
	case stageIdea:
		if key.Matches(msg, m.keys.proceed) {
			m.stage = stageReview
			m.status = "review the BRD and TAP, then approve"
		}
		return m, nil
	case stageReview:
		switch {
		case key.Matches(msg, m.keys.approve):
			return m.generateStories()
		case key.Matches(msg, m.keys.back):
			m.stage = stageIdea
			m.status = "ready"
		}
		return m, nil
	default:
		return m.handleKanbanKey(msg)
	}
}

// handleKanbanKey handles board navigation and story actions.
func (m Model) handleKanbanKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.laneLeft):
		m.selectedLane = clamp(m.selectedLane-1, 0, len(domain.Lanes())-1)
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.laneRight):
		m.selectedLane = clamp(m.selectedLane+1, 0, len(domain.Lanes())-1)
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.storyUp):
		m.selectedStory = clamp(m.selectedStory-1, 0, len(m.laneStories())-1)
		return m, nil
	case key.Matches(msg, m.keys.storyDown):
		m.selectedStory = clamp(m.selectedStory+1, 0, len(m.laneStories())-1)
		return m, nil
	case key.Matches(msg, m.keys.moveStoryLeft):
		return m.moveSelected(-1)
	case key.Matches(msg, m.keys.moveStoryRight):
		return m.moveSelected(1)
	case key.Matches(msg, m.keys.startStory):
		return m.moveSelectedTo(domain.LaneInProgress)
	case key.Matches(msg, m.keys.testStory):
		return m.moveSelectedTo(domain.LaneTesting)
	case key.Matches(msg, m.keys.storyDetail):
		story, ok := m.selectedStoryValue()
		if !ok {
			m.status = "no story selected"
			return m, nil
		}
		m.mode = modeStoryDetail
		m.detailID = story.ID
		return m, nil
	case key.Matches(msg, m.keys.copyCode):
		return m.copySelectedCode()
	case key.Matches(msg, m.keys.resetBoard):
		m.svc.InitializeBoard()
		m.selectedLane, m.selectedStory = 0, 0
		m.status = "board reset"
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.back):
		m.help.ShowAll = false
		return m, nil
	}
	return m, nil
}

// handleStoryDetailKey handles keys while the story detail is open.
func (m Model) handleStoryDetailKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.storyDetail), key.Matches(msg, m.keys.quit):
		m.mode = modeNone
		m.detailID = ""
		return m, nil
	case key.Matches(msg, m.keys.copyCode):
		return m.copySelectedCode()
	}
	return m, nil
}

// generateStories asks the engine for the sample backlog.
func (m Model) generateStories() (tea.Model, tea.Cmd) {
	if m.stage == stageIdea {
		m.stage = stageReview
	}
	err := m.svc.GenerateStories()
	switch {
	case errors.Is(err, app.ErrGenerationInFlight):
		m.status = "agent is already thinking"
	case err != nil:
		m.status = "error: " + err.Error()
	default:
		m.status = "agent thinking…"
	}
	m.refresh()
	return m, nil
}

// moveSelected moves the focused story delta lanes and keeps focus on it.
func (m Model) moveSelected(delta int) (tea.Model, tea.Cmd) {
	story, ok := m.selectedStoryValue()
	if !ok {
		m.status = "no story selected"
		return m, nil
	}
	from := story.Status
	to := from.Offset(delta)
	if to == from {
		m.status = "already in " + from.Label()
		return m, nil
	}
	if _, err := m.svc.MoveStory(story.ID, from, to); err != nil {
		m.status = "error: " + err.Error()
		m.refresh()
		return m, nil
	}
	m.status = fmt.Sprintf("moved %s → %s", story.ID, to.Label())
	m.refresh()
	m.focusStory(story.ID)
	return m, nil
}

// moveSelectedTo moves the focused story into lane to, wherever it is now.
func (m Model) moveSelectedTo(to domain.Lane) (tea.Model, tea.Cmd) {
	story, ok := m.selectedStoryValue()
	if !ok {
		m.status = "no story selected"
		return m, nil
	}
	_, err := m.svc.MoveStoryByID(story.ID, to)
	switch {
	case errors.Is(err, app.ErrSameLane):
		m.status = story.ID + " is already in " + to.Label()
	case err != nil:
		m.status = "error: " + err.Error()
	default:
		m.status = fmt.Sprintf("moved %s → %s", story.ID, to.Label())
	}
	m.refresh()
	m.focusStory(story.ID)
	return m, nil
}

// copySelectedCode copies the focused story's generated code.
func (m Model) copySelectedCode() (tea.Model, tea.Cmd) {
	story, ok := m.selectedStoryValue()
	if m.mode == modeStoryDetail {
		story, ok = m.snap.Story(m.detailID)
	}
	if !ok {
		m.status = "no story selected"
		return m, nil
	}
	if strings.TrimSpace(story.GeneratedCode) == "" {
		m.status = "no generated code for " + story.ID
		return m, nil
	}
	write := m.clipboard
	code := story.GeneratedCode
	id := story.ID
	m.status = "copying…"
	return m, func() tea.Msg {
		if err := write(code); err != nil {
			return actionMsg{err: fmt.Errorf("copy code: %w", err)}
		}
		return actionMsg{status: "copied code for " + id}
	}
}

// laneStories returns the stories of the focused lane.
func (m Model) laneStories() []domain.Story {
	lanes := domain.Lanes()
	return m.snap.Stories(lanes[clamp(m.selectedLane, 0, len(lanes)-1)])
}

// selectedStoryValue returns the focused story.
func (m Model) selectedStoryValue() (domain.Story, bool) {
	stories := m.laneStories()
	if len(stories) == 0 {
		return domain.Story{}, false
	}
	return stories[clamp(m.selectedStory, 0, len(stories)-1)], true
}

// selectedStoryID returns the focused story id or "".
func (m Model) selectedStoryID() string {
	story, ok := m.selectedStoryValue()
	if !ok {
		return ""
	}
	return story.ID
}

// focusStory moves focus to id and reports whether it was found.
func (m *Model) focusStory(id string) bool {
	lane, idx, ok := m.snap.Board.Locate(id)
	if !ok {
		return false
	}
	m.selectedLane = lane.Index()
	m.selectedStory = idx
	return true
}

// clampSelection keeps focus inside the current board.
func (m *Model) clampSelection() {
	m.selectedLane = clamp(m.selectedLane, 0, len(domain.Lanes())-1)
	m.selectedStory = clamp(m.selectedStory, 0, len(m.laneStories())-1)
}

// openCommandPalette shows the palette with every command listed.
func (m Model) openCommandPalette() (tea.Model, tea.Cmd) {
	m.mode = modeCommandPalette
	m.commandInput.SetValue("")
	m.commandMatches = m.filteredCommandItems("")
	m.commandIndex = 0
	m.help.ShowAll = false
	return m, m.commandInput.Focus()
}

// handleCommandPaletteKey handles keys while the palette is open.
func (m Model) handleCommandPaletteKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Code == tea.KeyEscape || msg.String() == "esc":
		m.mode = modeNone
		m.commandInput.Blur()
		m.status = "cancelled"
		return m, nil
	case msg.Code == tea.KeyTab || msg.String() == "tab":
		if len(m.commandMatches) == 0 {
			return m, nil
		}
		m.commandInput.SetValue(m.commandMatches[0].Command)
		m.commandInput.CursorEnd()
		m.commandMatches = m.filteredCommandItems(m.commandInput.Value())
		m.commandIndex = 0
		return m, nil
	case msg.String() == "down" || msg.String() == "ctrl+n":
		if m.commandIndex < len(m.commandMatches)-1 {
			m.commandIndex++
		}
		return m, nil
	case msg.String() == "up" || msg.String() == "ctrl+p":
		if m.commandIndex > 0 {
			m.commandIndex--
		}
		return m, nil
	case msg.Code == tea.KeyEnter || msg.String() == "enter":
		command := m.commandToExecute()
		m.mode = modeNone
		m.commandInput.Blur()
		return m.executeCommandPalette(command)
	default:
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		m.commandMatches = m.filteredCommandItems(m.commandInput.Value())
		m.commandIndex = clamp(m.commandIndex, 0, len(m.commandMatches)-1)
		return m, cmd
	}
}

// executeCommandPalette runs one palette command.
func (m Model) executeCommandPalette(command string) (tea.Model, tea.Cmd) {
	command = strings.TrimSpace(strings.ToLower(command))
	switch command {
	case "":
		m.status = "no command"
		return m, nil
	case "generate", "generate-stories", "approve":
		return m.generateStories()
	case "reset", "reset-board":
		m.svc.InitializeBoard()
		m.selectedLane, m.selectedStory = 0, 0
		m.status = "board reset"
		m.refresh()
		return m, nil
	case "stop-scenario", "stop":
		if m.svc.StopScenario() {
			m.status = "scenario stopped"
		} else {
			m.status = "no scenario running"
		}
		m.refresh()
		return m, nil
	case "hub", "overview":
		m.stage = stageIdea
		m.status = "ready"
		return m, nil
	case "review", "brd":
		m.stage = stageReview
		m.status = "review the BRD and TAP, then approve"
		return m, nil
	case "board", "kanban":
		m.stage = stageKanban
		m.status = "ready"
		return m, nil
	case "help":
		m.help.ShowAll = true
		return m, nil
	case "quit", "exit":
		return m, tea.Quit
	}

	id := strings.TrimSpace(strings.TrimPrefix(command, "run "))
	if _, ok := m.content.Scenario(id); !ok {
		m.status = "unknown command: " + command
		return m, nil
	}
	if err := m.svc.StartScenario(id); err != nil {
		m.status = "error: " + err.Error()
		return m, nil
	}
	m.status = "scenario started: " + id
	m.refresh()
	return m, nil
}

// commandPaletteItems returns the palette commands, scenarios included.
func (m Model) commandPaletteItems() []commandPaletteItem {
	items := []commandPaletteItem{
		{Command: "generate", Aliases: []string{"generate-stories", "approve"}, Description: "generate user stories from the BRD"},
		{Command: "reset", Aliases: []string{"reset-board"}, Description: "empty every lane and cancel runs"},
		{Command: "stop-scenario", Aliases: []string{"stop"}, Description: "stop the running scenario"},
	}
	for _, sc := range m.content.Scenarios {
		items = append(items, commandPaletteItem{
			Command:     "run " + sc.ID,
			Aliases:     []string{sc.ID},
			Description: "play " + sc.Title,
		})
	}
	return append(items,
		commandPaletteItem{Command: "hub", Aliases: []string{"overview"}, Description: "show phases and agents"},
		commandPaletteItem{Command: "review", Aliases: []string{"brd"}, Description: "show the BRD and TAP"},
		commandPaletteItem{Command: "board", Aliases: []string{"kanban"}, Description: "show the delivery board"},
		commandPaletteItem{Command: "help", Description: "show every key binding"},
		commandPaletteItem{Command: "quit", Aliases: []string{"exit"}, Description: "quit hub"},
	)
}

// filteredCommandItems returns command items filtered by query.
func (m Model) filteredCommandItems(raw string) []commandPaletteItem {
	query := strings.TrimSpace(strings.ToLower(raw))
	items := m.commandPaletteItems()
	if query == "" {
		return items
	}
	type scoredItem struct {
		item  commandPaletteItem
		score int
	}
	scored := make([]scoredItem, 0, len(items))
	for _, item := range items {
		score, ok := scoreCommandPaletteItem(query, item)
		if !ok {
			continue
		}
		scored = append(scored, scoredItem{item: item, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].item.Command < scored[j].item.Command
	})
	out := make([]commandPaletteItem, 0, len(scored))
	for _, item := range scored {
		out = append(out, item.item)
	}
	return out
}

// scoreCommandPaletteItem ranks one command-palette item for a fuzzy query.
func scoreCommandPaletteItem(query string, item commandPaletteItem) (int, bool) {
	score := -1
	ok := false
	if v, match := bestFuzzyScore(query, item.Command); match {
		score = max(score, v+200)
		ok = true
	}
	if len(item.Aliases) > 0 {
		if v, match := bestFuzzyScore(query, item.Aliases...); match {
			score = max(score, v+160)
			ok = true
		}
	}
	if v, match := bestFuzzyScore(query, item.Description); match {
		score = max(score, v+80)
		ok = true
	}
	return score, ok
}

// bestFuzzyScore returns the best fuzzy score across candidate strings.
func bestFuzzyScore(query string, candidates ...string) (int, bool) {
	best := 0
	ok := false
	for _, candidate := range candidates {
		score, match := fuzzyScore(query, candidate)
		if !match {
			continue
		}
		if !ok || score > best {
			best = score
		}
		ok = true
	}
	return best, ok
}

// fuzzyScore returns a deterministic fuzzy score where higher is better.
func fuzzyScore(query, candidate string) (int, bool) {
	query = strings.TrimSpace(strings.ToLower(query))
	candidate = strings.TrimSpace(strings.ToLower(candidate))
	if query == "" {
		return 0, true
	}
	if candidate == "" {
		return 0, false
	}
	if query == candidate {
		return 6000, true
	}
	if strings.HasPrefix(candidate, query) {
		return 5000 - len(candidate), true
	}
	if idx := strings.Index(candidate, query); idx >= 0 {
		return 4200 - idx, true
	}

	q := []rune(query)
	qi := 0
	score := 3000
	last := -1
	c := []rune(candidate)
	for ci, r := range c {
		if qi >= len(q) {
			break
		}
		if r != q[qi] {
			continue
		}
		if last < 0 {
			score -= ci
		} else {
			score -= (ci - last - 1) * 3
		}
		last = ci
		qi++
	}
	if qi != len(q) {
		return 0, false
	}
	return score - (len(c) - len(q)), true
}

// commandToExecute returns the selected command from the palette state.
func (m Model) commandToExecute() string {
	if len(m.commandMatches) > 0 {
		return m.commandMatches[clamp(m.commandIndex, 0, len(m.commandMatches)-1)].Command
	}
	return strings.TrimSpace(strings.ToLower(m.commandInput.Value()))
}

// clamp bounds v to [minV, maxV], preferring minV when the range is empty.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}

// fitLines pads or trims content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// tailLines keeps the last n lines of content.
func tailLines(content string, n int) []string {
	if content == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// formatActivityAge renders how long ago an activity event happened.
func formatActivityAge(now, at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	age := now.Sub(at)
	switch {
	case age < time.Second:
		return "now"
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age/time.Second))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age/time.Minute))
	default:
		return at.Local().Format("15:04")
	}
}
