package domain

import "time"

// DefaultActivityLimit bounds the in-memory activity log.
const DefaultActivityLimit = 200

// ActivityEvent represents a single immutable activity-log entry.
type ActivityEvent struct {
	ID   int64
	Text string
	At   time.Time
}

// ActivityLog keeps the most recent events, newest first.
type ActivityLog struct {
	limit  int
	lastID int64
	events []ActivityEvent
}

// NewActivityLog constructs a log bounded to limit entries.
func NewActivityLog(limit int) *ActivityLog {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return &ActivityLog{limit: limit, events: []ActivityEvent{}}
}

// Push records one event at now and returns it. IDs are the creation time in
// milliseconds, bumped when needed so they stay strictly increasing.
func (l *ActivityLog) Push(text string, now time.Time) ActivityEvent {
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	event := ActivityEvent{ID: id, Text: text, At: now.UTC()}

	next := make([]ActivityEvent, 0, min(len(l.events)+1, l.limit))
	next = append(next, event)
	next = append(next, l.events...)
	if len(next) > l.limit {
		next = next[:l.limit]
	}
	l.events = next
	return event
}

// Events returns a copy of the retained events, most recent first.
func (l *ActivityLog) Events() []ActivityEvent {
	return append([]ActivityEvent(nil), l.events...)
}

// Len returns the number of retained events.
func (l *ActivityLog) Len() int {
	return len(l.events)
}

// Limit returns the retention bound.
func (l *ActivityLog) Limit() int {
	return l.limit
}
