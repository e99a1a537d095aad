package app

import (
	"context"
	"fmt"
)

// JournalRecorder returns an observer mirroring activity events and run
// transitions into journal. Failures are reported to onError and never stop the engine.
func JournalRecorder(ctx context.Context, journal Journal, onError func(error)) Observer {
	if ctx == nil {
		ctx = context.Background()
	}
	report := func(err error) {
		if err != nil && onError != nil {
			onError(err)
		}
	}
	return func(n Notification) {
		if journal == nil {
			return
		}
		if n.Event != nil {
			if err := journal.RecordActivity(ctx, *n.Event); err != nil {
				report(fmt.Errorf("record activity %d: %w", n.Event.ID, err))
			}
		}
		if n.Run != nil {
			if err := journal.RecordRun(ctx, *n.Run); err != nil {
				report(fmt.Errorf("record run %s: %w", n.Run.ID, err))
			}
		}
	}
}
