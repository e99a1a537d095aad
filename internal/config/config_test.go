package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Logging.Level != "info" || !cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging defaults %#v", cfg.Logging)
	}
	if got := cfg.Simulation.ReasoningDelaysMS; len(got) != 5 || got[4] != 2500 {
		t.Fatalf("unexpected reasoning delays %#v", got)
	}
	if cfg.Simulation.CodeLineIntervalMS != 350 || cfg.Simulation.TestDelayMS != 1200 {
		t.Fatalf("unexpected simulation defaults %#v", cfg.Simulation)
	}
	if cfg.Simulation.ActivityLimit != 200 {
		t.Fatalf("unexpected activity limit %d", cfg.Simulation.ActivityLimit)
	}
	if len(cfg.Oracle.PassStoryIDs) != 0 {
		t.Fatalf("expected oracle ids left to the engine default, got %#v", cfg.Oracle)
	}
	if !cfg.Journal.Enabled {
		t.Fatal("expected journal enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default()
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Simulation.TestDelayMS != defaults.Simulation.TestDelayMS {
		t.Fatalf("expected default test delay, got %d", cfg.Simulation.TestDelayMS)
	}
	cfg, err = Load("", defaults)
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected defaults for empty path, got %#v", cfg.Logging)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"

[simulation]
reasoning_delays_ms = [0, 10, 20, 30, 40]
code_line_interval_ms = 5
test_delay_ms = 15
scenario_seed = 42

[oracle]
pass_story_ids = ["S-102", "S-103"]

[journal]
enabled = false

[[stories]]
id = "A-1"
title = "Audit export"
description = "Export the audit trail."
acceptance = ["CSV download", "Date filter"]
`)

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.DevFile.Dir != ".hub/log" {
		t.Fatalf("unexpected logging config %#v", cfg.Logging)
	}
	if cfg.Simulation.CodeLineIntervalMS != 5 || cfg.Simulation.TestDelayMS != 15 || cfg.Simulation.ScenarioSeed != 42 {
		t.Fatalf("unexpected simulation config %#v", cfg.Simulation)
	}
	if cfg.Simulation.ActivityLimit != 200 || cfg.Simulation.ScenarioFinishMS != 900 {
		t.Fatalf("expected untouched keys to keep defaults, got %#v", cfg.Simulation)
	}
	if len(cfg.Oracle.PassStoryIDs) != 2 || cfg.Journal.Enabled {
		t.Fatalf("unexpected oracle/journal config %#v %#v", cfg.Oracle, cfg.Journal)
	}
	if len(cfg.Stories) != 1 || cfg.Stories[0].ID != "A-1" || len(cfg.Stories[0].Acceptance) != 2 {
		t.Fatalf("unexpected stories %#v", cfg.Stories)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		content string
		want    string
	}{
		"level": {
			content: "[logging]\nlevel = \"loud\"\n",
			want:    "logging.level",
		},
		"delay count": {
			content: "[simulation]\nreasoning_delays_ms = [0, 600]\n",
			want:    "5 entries",
		},
		"delay order": {
			content: "[simulation]\nreasoning_delays_ms = [0, 600, 500, 1600, 2500]\n",
			want:    "reasoning_delays_ms[2]",
		},
		"negative delay": {
			content: "[simulation]\nreasoning_delays_ms = [-1, 600, 1200, 1600, 2500]\n",
			want:    "reasoning_delays_ms[0]",
		},
		"interval": {
			content: "[simulation]\ncode_line_interval_ms = 0\n",
			want:    "code_line_interval_ms",
		},
		"test delay": {
			content: "[simulation]\ntest_delay_ms = -5\n",
			want:    "test_delay_ms",
		},
		"activity limit": {
			content: "[simulation]\nactivity_limit = 0\n",
			want:    "activity_limit",
		},
		"oracle": {
			content: "[oracle]\npass_story_ids = [\" \"]\n",
			want:    "pass_story_ids[0]",
		},
		"story id": {
			content: "[[stories]]\ntitle = \"No id\"\n",
			want:    "stories[0].id",
		},
		"duplicate story": {
			content: "[[stories]]\nid = \"A\"\ntitle = \"one\"\n[[stories]]\nid = \"A\"\ntitle = \"two\"\n",
			want:    "duplicated",
		},
		"decode": {
			content: "[simulation\n",
			want:    "decode toml",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content), Default())
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
