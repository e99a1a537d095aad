package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	charmLog "github.com/charmbracelet/log"

	"github.com/hylla/deliveryhub/internal/config"
	"github.com/hylla/deliveryhub/internal/platform"
)

// runtimeLogger writes hub events to a styled console sink and, in dev mode,
// a logfmt file under the installation's log dir.
type runtimeLogger struct {
	console *charmLog.Logger
	file    *charmLog.Logger

	// Shared by command-scoped copies.
	muted       *atomic.Bool
	journalErrs *atomic.Int64

	closeFile func() error
	devLog    string
}

// newRuntimeLogger builds the sinks for one installation. The dev file is
// only opened when devMode is set and the config enables it.
func newRuntimeLogger(stderr io.Writer, paths platform.Paths, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if now == nil {
		now = time.Now
	}
	if stderr == nil {
		stderr = io.Discard
	}

	l := &runtimeLogger{
		console:     newSink(stderr, paths.AppDir, level, charmLog.TextFormatter),
		muted:       &atomic.Bool{},
		journalErrs: &atomic.Int64{},
	}
	if !devMode || !cfg.DevFile.Enabled {
		return l, nil
	}

	path, err := paths.DevLogFile(cfg.DevFile.Dir, "", now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	l.file = newSink(file, paths.AppDir, level, charmLog.LogfmtFormatter)
	l.closeFile = file.Close
	l.devLog = path
	return l, nil
}

func newSink(w io.Writer, prefix string, level charmLog.Level, formatter charmLog.Formatter) *charmLog.Logger {
	return charmLog.NewWithOptions(w, charmLog.Options{
		Level:           level,
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}
	return file, nil
}

// forCommand returns a logger that tags every event with the command name.
// Sinks, mute state and the file handle stay shared with l; close l, not the copy.
func (l *runtimeLogger) forCommand(name string) *runtimeLogger {
	if l == nil {
		return nil
	}
	scoped := *l
	scoped.console = l.console.With("command", name)
	if l.file != nil {
		scoped.file = l.file.With("command", name)
	}
	scoped.closeFile = nil
	return &scoped
}

// muteConsole silences the console sink while the TUI owns the terminal.
// The returned func restores the previous state.
func (l *runtimeLogger) muteConsole() (restore func()) {
	if l == nil {
		return func() {}
	}
	prev := l.muted.Swap(true)
	return func() { l.muted.Store(prev) }
}

func (l *runtimeLogger) consoleMuted() bool {
	return l == nil || l.muted.Load()
}

// journalSink returns the write-failure callback for the session journal recorder.
func (l *runtimeLogger) journalSink() func(error) {
	return func(err error) {
		if l == nil {
			return
		}
		n := l.journalErrs.Add(1)
		l.Warn("session journal write failed", "err", err, "failures", n)
	}
}

// journalFailures counts journal writes that failed since the logger was built.
func (l *runtimeLogger) journalFailures() int64 {
	if l == nil {
		return 0
	}
	return l.journalErrs.Load()
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

func (l *runtimeLogger) log(level charmLog.Level, msg string, keyvals ...any) {
	if l == nil {
		return
	}
	if !l.consoleMuted() {
		l.console.Log(level, msg, keyvals...)
	}
	if l.file != nil {
		l.file.Log(level, msg, keyvals...)
	}
}

// Debug logs a debug event.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	l.log(charmLog.DebugLevel, msg, keyvals...)
}

// Info logs an informational event.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	l.log(charmLog.InfoLevel, msg, keyvals...)
}

// Warn logs a warning event.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	l.log(charmLog.WarnLevel, msg, keyvals...)
}

// Error logs an error event.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	l.log(charmLog.ErrorLevel, msg, keyvals...)
}
