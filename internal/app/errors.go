package app

import (
	"errors"
	"fmt"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound           = errors.New("not found")
	ErrNoop               = errors.New("no-op")
	ErrStoryNotFound      = fmt.Errorf("story %w", ErrNotFound)
	ErrScenarioNotFound   = fmt.Errorf("scenario %w", ErrNotFound)
	ErrSameLane           = fmt.Errorf("same lane %w", ErrNoop)
	ErrGenerationInFlight = fmt.Errorf("story generation in flight %w", ErrNoop)
)
