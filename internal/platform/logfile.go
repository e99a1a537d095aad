package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DevLogFile resolves the per-day dev log file for appName. A relative dir is
// anchored at the nearest workspace root above cwd; an empty dir uses fallbackDir.
func DevLogFile(dir, fallbackDir, cwd, appName string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(dir)
	if baseDir == "" {
		baseDir = strings.TrimSpace(fallbackDir)
	}
	if baseDir == "" {
		return "", fmt.Errorf("empty log dir")
	}
	if !filepath.IsAbs(baseDir) {
		if strings.TrimSpace(cwd) == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("resolve working dir: %w", err)
			}
			cwd = wd
		}
		baseDir = filepath.Join(WorkspaceRoot(cwd), baseDir)
	}
	fileName := fmt.Sprintf("%s-%s.log", LogFileStem(appName), now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}

// WorkspaceRoot returns the nearest ancestor of start holding go.mod or .git, or start itself.
func WorkspaceRoot(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" || start == "." {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// hasWorkspaceMarker reports whether a directory looks like a project workspace root.
func hasWorkspaceMarker(dir string) bool {
	for _, marker := range []string{"go.mod", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// LogFileStem normalizes an app name into a safe file-name segment.
func LogFileStem(appName string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem := strings.Trim(replacer.Replace(strings.TrimSpace(appName)), "-")
	if stem == "" {
		return DefaultAppName
	}
	return stem
}
