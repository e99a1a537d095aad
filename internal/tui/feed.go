package tui

import (
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/deliveryhub/internal/app"
)

// Feed bridges engine notifications to the bubbletea loop.
// Notifications carry full snapshots, so pending ones coalesce into the newest.
type Feed struct {
	mu      sync.Mutex
	latest  app.Notification
	pending bool
	closed  bool
	ready   chan struct{}
	done    chan struct{}
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Observe records n and wakes the waiting command. It never blocks, so it is
// safe to register as an engine observer.
func (f *Feed) Observe(n app.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.latest = n
	f.pending = true
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// Close stops the feed and releases the waiting command.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
}

// take returns the pending notification, if any.
func (f *Feed) take() (app.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pending {
		return app.Notification{}, false
	}
	f.pending = false
	return f.latest, true
}

// notificationMsg carries one engine notification through update handling.
type notificationMsg struct {
	notification app.Notification
}

// feedClosedMsg reports that no more notifications will arrive.
type feedClosedMsg struct{}

// waitForNotification blocks until the feed has a notification.
func waitForNotification(f *Feed) tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		for {
			select {
			case <-f.ready:
				if n, ok := f.take(); ok {
					return notificationMsg{notification: n}
				}
			case <-f.done:
				return feedClosedMsg{}
			}
		}
	}
}
