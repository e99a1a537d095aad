package app

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Timer is the cancel handle of one scheduled callback.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

// Scheduler runs one-shot callbacks after a delay.
type Scheduler interface {
	AfterFunc(time.Duration, func()) Timer
	Now() time.Time
}

// LoopScheduler schedules on the wall clock and runs every callback on the
// goroutine executing Run, so callbacks never overlap.
type LoopScheduler struct {
	mu      sync.Mutex
	queue   chan func()
	done    chan struct{}
	pending map[*loopTimer]struct{}
	closed  bool
}

// loopTimer adapts time.Timer to the Timer interface.
type loopTimer struct {
	owner *LoopScheduler
	timer *time.Timer
}

// NewLoopScheduler constructs a scheduler; callbacks only run once Run is called.
func NewLoopScheduler() *LoopScheduler {
	return &LoopScheduler{
		queue:   make(chan func(), 64),
		done:    make(chan struct{}),
		pending: map[*loopTimer]struct{}{},
	}
}

// Now returns the wall clock time.
func (s *LoopScheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc queues fn onto the loop after d.
func (s *LoopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{owner: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return t
	}
	s.pending[t] = struct{}{}
	t.timer = time.AfterFunc(max(d, 0), func() {
		s.mu.Lock()
		if _, ok := s.pending[t]; !ok || s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.pending, t)
		s.mu.Unlock()
		select {
		case s.queue <- fn:
		case <-s.done:
		}
	})
	return t
}

// Stop cancels the timer if it has not fired yet.
func (t *loopTimer) Stop() bool {
	if t.timer == nil {
		return false
	}
	t.owner.mu.Lock()
	_, pending := t.owner.pending[t]
	delete(t.owner.pending, t)
	t.owner.mu.Unlock()
	t.timer.Stop()
	return pending
}

// Run executes queued callbacks until ctx is done, then stops pending timers.
func (s *LoopScheduler) Run(ctx context.Context) error {
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.queue:
			fn()
		}
	}
}

// shutdown stops every pending timer and drops queued callbacks.
func (s *LoopScheduler) shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	for t := range s.pending {
		t.timer.Stop()
		delete(s.pending, t)
	}
	s.mu.Unlock()
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

// ManualScheduler keeps virtual time that only moves on Advance.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	entries []*manualTimer
}

// manualTimer is one virtual-time callback.
type manualTimer struct {
	owner   *ManualScheduler
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// NewManualScheduler starts virtual time at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the current virtual time.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc schedules fn at now+d in virtual time.
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{owner: s, due: s.now.Add(max(d, 0)), seq: s.seq, fn: fn}
	s.entries = append(s.entries, t)
	return t
}

// Stop cancels the virtual timer.
func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves virtual time forward by d, firing due callbacks in due order.
// Callbacks scheduled while advancing fire too when they fall inside the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(max(d, 0))
	s.mu.Unlock()
	for {
		t := s.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}
	s.mu.Lock()
	if s.now.Before(target) {
		s.now = target
	}
	s.mu.Unlock()
}

// RunUntilIdle advances through every pending callback, bounded by limit steps.
func (s *ManualScheduler) RunUntilIdle(limit int) int {
	fired := 0
	for fired < limit {
		s.mu.Lock()
		next := s.nextLocked()
		s.mu.Unlock()
		if next == nil {
			break
		}
		s.Advance(next.due.Sub(s.Now()))
		fired++
	}
	return fired
}

// Pending returns the number of live callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.entries {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

// popDue removes and returns the earliest callback due at or before target.
func (s *ManualScheduler) popDue(target time.Time) *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nextLocked()
	if next == nil || next.due.After(target) {
		return nil
	}
	next.fired = true
	if next.due.After(s.now) {
		s.now = next.due
	}
	s.compactLocked()
	return next
}

// nextLocked returns the earliest live callback.
func (s *ManualScheduler) nextLocked() *manualTimer {
	live := make([]*manualTimer, 0, len(s.entries))
	for _, t := range s.entries {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].due.Equal(live[j].due) {
			return live[i].seq < live[j].seq
		}
		return live[i].due.Before(live[j].due)
	})
	return live[0]
}

// compactLocked drops fired and stopped callbacks.
func (s *ManualScheduler) compactLocked() {
	kept := s.entries[:0]
	for _, t := range s.entries {
		if !t.stopped && !t.fired {
			kept = append(kept, t)
		}
	}
	s.entries = kept
}
