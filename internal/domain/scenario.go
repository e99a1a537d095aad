package domain

// Phase is one delivery phase shown on the hub with its agents.
type Phase struct {
	Name   string
	Agents []string
}

// Scenario is a scripted playback of canned agent outputs.
type Scenario struct {
	ID      string
	Title   string
	Agents  []string
	Summary string
}

// ScenarioState is the observable state of the scenario runner.
type ScenarioState struct {
	RunningID   string
	Title       string
	ActiveAgent string
	Text        string
	AgentIndex  int
}

// Running reports whether a scenario is being played.
func (s ScenarioState) Running() bool {
	return s.RunningID != ""
}
