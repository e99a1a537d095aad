package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDevLogFileAnchorsRelativeDirAtWorkspace(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "hub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	got, err := DevLogFile(".hub/log", "", nested, "hub dev", now)
	if err != nil {
		t.Fatalf("DevLogFile() error = %v", err)
	}
	want := filepath.Join(root, ".hub", "log", "hub-dev-20260221.log")
	if got != want {
		t.Fatalf("DevLogFile() = %q, want %q", got, want)
	}
}

func TestDevLogFileFallbackAndAbsolute(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	abs := filepath.Join(t.TempDir(), "logs")
	got, err := DevLogFile("", abs, "", "", now)
	if err != nil {
		t.Fatalf("DevLogFile() error = %v", err)
	}
	if want := filepath.Join(abs, "hub-20260221.log"); got != want {
		t.Fatalf("DevLogFile() = %q, want %q", got, want)
	}
	if _, err := DevLogFile(" ", "", "", "hub", now); err == nil {
		t.Fatal("expected error for empty log dir")
	}
}

func TestLogFileStem(t *testing.T) {
	cases := map[string]string{
		"hub":        "hub",
		" a/b:c ":    "a-b-c",
		"--":         "hub",
		"":           "hub",
		`win\name x`: "win-name-x",
	}
	for in, want := range cases {
		if got := LogFileStem(in); got != want {
			t.Fatalf("LogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}
