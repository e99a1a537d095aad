package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit           key.Binding
	toggleHelp     key.Binding
	proceed        key.Binding
	approve        key.Binding
	back           key.Binding
	laneLeft       key.Binding
	laneRight      key.Binding
	storyUp        key.Binding
	storyDown      key.Binding
	moveStoryLeft  key.Binding
	moveStoryRight key.Binding
	startStory     key.Binding
	testStory      key.Binding
	storyDetail    key.Binding
	copyCode       key.Binding
	resetBoard     key.Binding
	commandPalette key.Binding
	stopScenario   key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		toggleHelp:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		proceed:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continue")),
		approve:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve + generate")),
		back:           key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		laneLeft:       key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "lane left")),
		laneRight:      key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "lane right")),
		storyUp:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "story up")),
		storyDown:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "story down")),
		moveStoryLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move story left")),
		moveStoryRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move story right")),
		startStory:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start (generate code)")),
		testStory:      key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "run tests")),
		storyDetail:    key.NewBinding(key.WithKeys("enter", "i"), key.WithHelp("i/enter", "story detail")),
		copyCode:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy code")),
		resetBoard:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset board")),
		commandPalette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "command palette")),
		stopScenario:   key.NewBinding(key.WithKeys("S", "shift+s"), key.WithHelp("S", "stop scenario")),
	}
}

// stageKeys exposes the bindings that apply to one stage to the help bubble.
type stageKeys struct {
	keys  keyMap
	stage stage
}

// ShortHelp handles short help.
func (k stageKeys) ShortHelp() []key.Binding {
	switch k.stage {
	case stageIdea:
		return []key.Binding{k.keys.proceed, k.keys.commandPalette, k.keys.toggleHelp, k.keys.quit}
	case stageReview:
		return []key.Binding{k.keys.approve, k.keys.back, k.keys.commandPalette, k.keys.quit}
	default:
		return []key.Binding{
			k.keys.startStory, k.keys.testStory, k.keys.storyDetail, k.keys.copyCode, k.keys.commandPalette, k.keys.toggleHelp, k.keys.quit,
		}
	}
}

// FullHelp handles full help.
func (k stageKeys) FullHelp() [][]key.Binding {
	switch k.stage {
	case stageIdea:
		return [][]key.Binding{{k.keys.proceed, k.keys.commandPalette, k.keys.stopScenario, k.keys.toggleHelp, k.keys.quit}}
	case stageReview:
		return [][]key.Binding{{k.keys.approve, k.keys.back, k.keys.commandPalette, k.keys.stopScenario, k.keys.toggleHelp, k.keys.quit}}
	default:
		return [][]key.Binding{
			{k.keys.laneLeft, k.keys.laneRight, k.keys.storyUp, k.keys.storyDown, k.keys.moveStoryLeft, k.keys.moveStoryRight},
			{k.keys.startStory, k.keys.testStory, k.keys.storyDetail, k.keys.copyCode},
			{k.keys.resetBoard, k.keys.commandPalette, k.keys.stopScenario, k.keys.toggleHelp, k.keys.quit},
		}
	}
}
