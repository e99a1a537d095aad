package tui

import "time"

// Option configures a Model.
type Option func(*Model)

// ClipboardWriter copies text to the system clipboard.
type ClipboardWriter func(string) error

// WithFeed connects the model to engine notifications.
func WithFeed(feed *Feed) Option {
	return func(m *Model) {
		m.feed = feed
	}
}

// WithClipboard overrides the clipboard writer used by the copy-code key.
func WithClipboard(write ClipboardWriter) Option {
	return func(m *Model) {
		if write != nil {
			m.clipboard = write
		}
	}
}

// WithActivityRows caps how many activity events the side panel shows.
func WithActivityRows(rows int) Option {
	return func(m *Model) {
		if rows > 0 {
			m.activityRows = rows
		}
	}
}

// WithClock overrides the time source used for relative activity stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}
