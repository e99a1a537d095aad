package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// reasoningStepCount is the number of scheduled reasoning steps, including the populate step.
const reasoningStepCount = 5

// Config is the hub TOML configuration.
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`
	Simulation SimulationConfig `toml:"simulation"`
	Oracle     OracleConfig     `toml:"oracle"`
	Journal    JournalConfig    `toml:"journal"`
	Stories    []StoryConfig    `toml:"stories"`
}

// LoggingConfig selects the log level and the dev-mode file sink.
type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the per-day dev log file. A relative Dir is anchored at the workspace root.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// SimulationConfig tunes simulated agent pacing. Durations are in milliseconds.
type SimulationConfig struct {
	ReasoningDelaysMS    []int  `toml:"reasoning_delays_ms"`
	CodeLineIntervalMS   int    `toml:"code_line_interval_ms"`
	TestDelayMS          int    `toml:"test_delay_ms"`
	ActivityLimit        int    `toml:"activity_limit"`
	ScenarioSeed         uint64 `toml:"scenario_seed"`
	ScenarioAgentPauseMS int    `toml:"scenario_agent_pause_ms"`
	ScenarioFinishMS     int    `toml:"scenario_finish_ms"`
}

// OracleConfig lists the stories whose simulated tests pass. Empty passes the first story.
type OracleConfig struct {
	PassStoryIDs []string `toml:"pass_story_ids"`
}

// JournalConfig toggles the in-memory session journal.
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
}

// StoryConfig overrides one sample story.
type StoryConfig struct {
	ID          string   `toml:"id"`
	Title       string   `toml:"title"`
	Description string   `toml:"description"`
	Acceptance  []string `toml:"acceptance"`
}

var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".hub/log",
			},
		},
		Simulation: SimulationConfig{
			ReasoningDelaysMS:    []int{0, 600, 1200, 1600, 2500},
			CodeLineIntervalMS:   350,
			TestDelayMS:          1200,
			ActivityLimit:        200,
			ScenarioSeed:         1,
			ScenarioAgentPauseMS: 700,
			ScenarioFinishMS:     900,
		},
		Oracle: OracleConfig{},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}

// Load decodes path over defaults. A missing or empty file yields defaults unchanged.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	level := strings.TrimSpace(strings.ToLower(c.Logging.Level))
	if !slices.Contains(logLevels, level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	sim := c.Simulation
	if len(sim.ReasoningDelaysMS) != reasoningStepCount {
		return fmt.Errorf("simulation.reasoning_delays_ms must have %d entries, got %d", reasoningStepCount, len(sim.ReasoningDelaysMS))
	}
	for idx, delay := range sim.ReasoningDelaysMS {
		if delay < 0 {
			return fmt.Errorf("simulation.reasoning_delays_ms[%d] must be >= 0", idx)
		}
		if idx > 0 && delay < sim.ReasoningDelaysMS[idx-1] {
			return fmt.Errorf("simulation.reasoning_delays_ms[%d] must not be less than the previous delay", idx)
		}
	}
	if sim.CodeLineIntervalMS <= 0 {
		return errors.New("simulation.code_line_interval_ms must be > 0")
	}
	if sim.TestDelayMS <= 0 {
		return errors.New("simulation.test_delay_ms must be > 0")
	}
	if sim.ActivityLimit < 1 {
		return errors.New("simulation.activity_limit must be >= 1")
	}
	if sim.ScenarioAgentPauseMS < 0 {
		return errors.New("simulation.scenario_agent_pause_ms must be >= 0")
	}
	if sim.ScenarioFinishMS < 0 {
		return errors.New("simulation.scenario_finish_ms must be >= 0")
	}

	for idx, id := range c.Oracle.PassStoryIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("oracle.pass_story_ids[%d] is empty", idx)
		}
	}

	seenStoryID := map[string]struct{}{}
	for idx, story := range c.Stories {
		id := strings.TrimSpace(story.ID)
		if id == "" {
			return fmt.Errorf("stories[%d].id is required", idx)
		}
		if strings.TrimSpace(story.Title) == "" {
			return fmt.Errorf("stories[%d].title is required", idx)
		}
		if _, ok := seenStoryID[id]; ok {
			return fmt.Errorf("stories[%d].id is duplicated: %s", idx, id)
		}
		seenStoryID[id] = struct{}{}
	}

	return nil
}
