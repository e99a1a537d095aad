package tui

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/deliveryhub/internal/domain"
)

// palette colors shared by every view.
var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
	titleColor  = lipgloss.Color("252")
	passColor   = lipgloss.Color("42")
	failColor   = lipgloss.Color("203")
)

// codePanelLines caps how many generated lines the code panel shows.
const codePanelLines = 10

// View renders the current model state.
func (m Model) View() tea.View {
	if !m.ready {
		v := tea.NewView("loading...")
		v.MouseMode = tea.MouseModeCellMotion
		v.AltScreen = true
		return v
	}

	content := m.renderContent()
	helpLine := m.renderHelpLine()
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	full := content + "\n" + helpLine
	if m.mode == modeCommandPalette {
		height := lipgloss.Height(full)
		if m.height > 0 {
			height = m.height
		}
		full = overlayOnContent(full, m.renderCommandPalette(m.width-8), max(1, m.width), max(1, height))
	}

	v := tea.NewView(full)
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// renderContent renders the header and the body of the active stage.
func (m Model) renderContent() string {
	sections := []string{m.renderHeader(), ""}
	switch {
	case m.mode == modeStoryDetail:
		sections = append(sections, m.renderStoryDetail())
	case m.stage == stageIdea:
		sections = append(sections, m.renderIdea())
	case m.stage == stageReview:
		sections = append(sections, m.renderReview())
	default:
		sections = append(sections, m.renderKanban())
	}
	if m.snap.Scenario.Running() {
		sections = append(sections, m.renderScenarioPanel())
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, lipgloss.NewStyle().Foreground(dimColor).Render(m.status))
	}
	return strings.Join(sections, "\n")
}

// renderHeader renders the title line with engine state badges.
func (m Model) renderHeader() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(titleColor)
	statusStyle := lipgloss.NewStyle().Foreground(dimColor)
	header := titleStyle.Render("hub") + "  AI delivery hub"
	header += statusStyle.Render("  [" + m.stageLabel() + "]")
	if m.snap.Thinking {
		header += statusStyle.Render("  agent thinking…")
	}
	if m.snap.Streaming {
		header += statusStyle.Render("  streaming code")
	}
	if sc := m.snap.Scenario; sc.Running() {
		header += statusStyle.Render("  scenario: " + sc.Title)
	}
	return header
}

// stageLabel returns the header label of the current stage.
func (m Model) stageLabel() string {
	if m.mode == modeStoryDetail {
		return "story"
	}
	switch m.stage {
	case stageIdea:
		return "idea"
	case stageReview:
		return "review"
	default:
		return "board"
	}
}

// renderIdea renders the hub overview with phases, agents and scenarios.
func (m Model) renderIdea() string {
	phaseStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	agentStyle := lipgloss.NewStyle().Foreground(mutedColor)
	hintStyle := lipgloss.NewStyle().Foreground(dimColor)

	lines := make([]string, 0, len(m.content.Phases)*2+len(m.content.Scenarios)+4)
	for _, phase := range m.content.Phases {
		lines = append(lines, phaseStyle.Render(phase.Name))
		lines = append(lines, "  "+agentStyle.Render(strings.Join(phase.Agents, " · ")))
	}
	if len(m.content.Scenarios) > 0 {
		lines = append(lines, "", phaseStyle.Render("Scenarios"))
		for _, sc := range m.content.Scenarios {
			line := fmt.Sprintf("  %s  %s", sc.ID, sc.Title)
			if sc.Summary != "" {
				line += agentStyle.Render("  " + sc.Summary)
			}
			lines = append(lines, truncate(line, max(24, m.width*3)))
		}
	}
	lines = append(lines, "", hintStyle.Render("enter review the BRD • : run a scenario"))
	return strings.Join(lines, "\n")
}

// renderReview renders the BRD and TAP, and the reasoning log while the agent thinks.
func (m Model) renderReview() string {
	width := max(24, m.width-4)
	doc := strings.TrimSpace(m.content.BRD) + "\n\n---\n\n" + strings.TrimSpace(m.content.TAP)
	sections := []string{m.markdown.render(doc, width)}
	if m.snap.Thinking {
		sections = append(sections, m.renderActivityPanel(width))
	} else {
		sections = append(sections, lipgloss.NewStyle().Foreground(dimColor).Render("a approve and generate stories • esc back"))
	}
	return strings.Join(sections, "\n")
}

// renderKanban renders the lanes with the code and activity panels beneath.
func (m Model) renderKanban() string {
	lanes := domain.Lanes()
	colWidth := max(16, (m.width-len(lanes)*3)/len(lanes))
	baseColStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		MarginRight(1).
		Width(colWidth)
	selColStyle := baseColStyle.BorderForeground(accentColor)
	colTitle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	subStyle := lipgloss.NewStyle().Foreground(mutedColor)

	rows := 0
	for _, lane := range lanes {
		rows = max(rows, len(m.snap.Stories(lane)))
	}
	innerHeight := max(3, rows*3)

	columns := make([]string, 0, len(lanes))
	for laneIdx, lane := range lanes {
		stories := m.snap.Stories(lane)
		lines := []string{colTitle.Render(fmt.Sprintf("%s (%d)", lane.Label(), len(stories)))}
		if len(stories) == 0 {
			lines = append(lines, emptyStyle.Render("(empty)"))
		}
		for storyIdx, story := range stories {
			selected := laneIdx == m.selectedLane && storyIdx == m.selectedStory
			prefix := "  "
			if selected {
				prefix = "│ "
			}
			title := prefix + truncate(story.Title, max(1, colWidth-6))
			if selected {
				title = selectedStyle.Render(title)
			}
			lines = append(lines, title, prefix+subStyle.Render(truncate(m.storyBadge(story), max(1, colWidth-6))))
			if storyIdx < len(stories)-1 {
				lines = append(lines, "")
			}
		}
		body := fitLines(strings.Join(lines, "\n"), innerHeight+1)
		if laneIdx == m.selectedLane {
			columns = append(columns, selColStyle.Render(body))
		} else {
			columns = append(columns, baseColStyle.Render(body))
		}
	}

	board := lipgloss.JoinHorizontal(lipgloss.Top, columns...)
	panelWidth := max(24, (m.width-4)/2)
	panels := lipgloss.JoinHorizontal(lipgloss.Top, m.renderCodePanel(panelWidth), " ", m.renderActivityPanel(panelWidth))
	return board + "\n" + panels
}

// storyBadge summarizes a story's id and in-flight work.
func (m Model) storyBadge(story domain.Story) string {
	badge := story.ID
	if run, ok := m.snap.ActiveRun(domain.RunKindCodegen, story.ID); ok {
		return badge + fmt.Sprintf(" · generating %d/%d", run.Step, run.Total)
	}
	if _, ok := m.snap.ActiveRun(domain.RunKindTestRun, story.ID); ok {
		return badge + " · testing…"
	}
	switch {
	case story.Status == domain.LaneDone:
		return badge + " · passed"
	case story.Status == domain.LaneBlocked:
		return badge + " · blocked"
	case story.GeneratedCode != "":
		return badge + " · code ready"
	}
	return badge
}

// renderCodePanel renders the generated code of the focused story.
func (m Model) renderCodePanel(width int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(width)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	hintStyle := lipgloss.NewStyle().Foreground(mutedColor)

	story, ok := m.selectedStoryValue()
	if !ok {
		return style.Render(titleStyle.Render("Code") + "\n" + hintStyle.Render("(no story selected)"))
	}
	lines := []string{titleStyle.Render("Code · " + story.ID)}
	code := tailLines(story.GeneratedCode, codePanelLines)
	if len(code) == 0 {
		lines = append(lines, hintStyle.Render("(move to In Progress to generate)"))
	}
	for _, line := range code {
		lines = append(lines, truncate(line, max(1, width-4)))
	}
	return style.Render(fitLines(strings.Join(lines, "\n"), codePanelLines+1))
}

// renderActivityPanel renders the newest activity events.
func (m Model) renderActivityPanel(width int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(width)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	ageStyle := lipgloss.NewStyle().Foreground(dimColor)

	lines := []string{titleStyle.Render(fmt.Sprintf("Activity (%d)", len(m.snap.Activity)))}
	now := m.now()
	for idx, event := range m.snap.Activity {
		if idx >= m.activityRows {
			break
		}
		age := ageStyle.Render(fmt.Sprintf("%4s ", formatActivityAge(now, event.At)))
		lines = append(lines, age+m.activityText(event.Text, max(1, width-10)))
	}
	if len(m.snap.Activity) == 0 {
		lines = append(lines, ageStyle.Render("(no activity yet)"))
	}
	return style.Render(fitLines(strings.Join(lines, "\n"), max(codePanelLines, m.activityRows)+1))
}

// activityText colors verdict events.
func (m Model) activityText(text string, width int) string {
	text = truncate(text, width)
	switch {
	case strings.Contains(text, "Tests passed"):
		return lipgloss.NewStyle().Foreground(passColor).Render(text)
	case strings.Contains(text, "Tests failed"):
		return lipgloss.NewStyle().Foreground(failColor).Render(text)
	}
	return text
}

// renderScenarioPanel renders the running scenario and the active agent's output.
func (m Model) renderScenarioPanel() string {
	sc := m.snap.Scenario
	width := max(24, m.width-2)
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Width(width)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	agentStyle := lipgloss.NewStyle().Foreground(mutedColor)

	total := 0
	if def, ok := m.content.Scenario(sc.RunningID); ok {
		total = len(def.Agents)
	}
	header := titleStyle.Render("Scenario · " + sc.Title)
	if sc.ActiveAgent != "" {
		header += agentStyle.Render(fmt.Sprintf("  agent %d/%d: %s", sc.AgentIndex+1, total, sc.ActiveAgent))
	}
	text := sc.Text + "▌"
	return style.Render(header + "\n" + text)
}

// renderStoryDetail renders the detail view of one story as markdown.
func (m Model) renderStoryDetail() string {
	story, ok := m.snap.Story(m.detailID)
	if !ok {
		return lipgloss.NewStyle().Foreground(dimColor).Render("story no longer on the board • esc back")
	}
	doc := story.Markdown()
	if story.GeneratedCode != "" {
		doc += "\n## Generated code\n\n```go\n" + strings.TrimRight(story.GeneratedCode, "\n") + "\n```\n"
	}
	rendered := m.markdown.render(doc, max(24, m.width-4))
	hint := lipgloss.NewStyle().Foreground(dimColor).Render("y copy code • esc back")
	return rendered + "\n" + hint
}

// renderCommandPalette renders the palette overlay.
func (m Model) renderCommandPalette(maxWidth int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1)
	if maxWidth > 0 {
		style = style.Width(clamp(maxWidth, 36, 96))
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	hintStyle := lipgloss.NewStyle().Foreground(mutedColor)
	in := m.commandInput
	in.SetWidth(max(18, maxWidth-20))
	lines := []string{titleStyle.Render("Command Palette"), in.View()}
	if len(m.commandMatches) == 0 {
		lines = append(lines, hintStyle.Render("(no matching commands)"))
	} else {
		const commandWindowSize = 9
		start, end := windowBounds(len(m.commandMatches), m.commandIndex, commandWindowSize)
		for idx := start; idx < end; idx++ {
			item := m.commandMatches[idx]
			prefix := "  "
			if idx == m.commandIndex {
				prefix = "› "
			}
			lines = append(lines, fmt.Sprintf("%s%s — %s", prefix, item.Command, item.Description))
		}
		if len(m.commandMatches) > commandWindowSize {
			lines = append(lines, hintStyle.Render(fmt.Sprintf("showing %d-%d of %d", start+1, end, len(m.commandMatches))))
		}
	}
	lines = append(lines, hintStyle.Render("enter run • tab autocomplete • ↑/↓ move • esc cancel"))
	return style.Render(strings.Join(lines, "\n"))
}

// renderHelpLine renders the bottom help bar for the current stage.
func (m Model) renderHelpLine() string {
	keys := stageKeys{keys: m.keys, stage: m.stage}
	h := m.help
	h.SetWidth(max(0, m.width-2))
	return lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(h.View(keys))
}

// windowBounds returns an inclusive-exclusive list window that keeps selected visible.
func windowBounds(total, selected, windowSize int) (int, int) {
	if total <= 0 || windowSize <= 0 {
		return 0, 0
	}
	if total <= windowSize {
		return 0, total
	}
	selected = clamp(selected, 0, total-1)
	start := max(0, selected-windowSize/2)
	end := start + windowSize
	if end > total {
		end = total
		start = max(0, end-windowSize)
	}
	return start, end
}

// overlayOnContent centers overlay over base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}
