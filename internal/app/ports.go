package app

import (
	"context"

	"github.com/hylla/deliveryhub/internal/domain"
)

// Journal records the session ledger of activity and run lifecycle.
type Journal interface {
	RecordActivity(context.Context, domain.ActivityEvent) error
	RecordRun(context.Context, domain.Run) error
}

// Observer receives engine notifications. It runs while the engine is locked
// and must not call back into the engine.
type Observer func(Notification)
