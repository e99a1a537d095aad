package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidTitle    = errors.New("invalid title")
	ErrInvalidLane     = errors.New("invalid lane")
	ErrInvalidRunKind  = errors.New("invalid run kind")
	ErrDuplicateStory  = errors.New("duplicate story id")
	ErrStoryNotInLane  = errors.New("story not in lane")
	ErrPartitionBroken = errors.New("board partition violated")
)
