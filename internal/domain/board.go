package domain

import "fmt"

// Board partitions stories into lanes. Each story id lives in exactly one lane.
type Board struct {
	lanes map[Lane][]Story
}

// NewBoard returns a board with every lane empty.
func NewBoard() Board {
	b := Board{lanes: make(map[Lane][]Story, len(lanes))}
	for _, lane := range lanes {
		b.lanes[lane] = []Story{}
	}
	return b
}

// NewBacklogBoard returns a board whose backlog holds stories in the given order.
func NewBacklogBoard(stories []Story) (Board, error) {
	b := NewBoard()
	seen := make(map[string]struct{}, len(stories))
	backlog := make([]Story, 0, len(stories))
	for _, story := range stories {
		if _, ok := seen[story.ID]; ok {
			return Board{}, fmt.Errorf("%w: %s", ErrDuplicateStory, story.ID)
		}
		seen[story.ID] = struct{}{}
		story = story.Clone()
		story.Status = LaneBacklog
		story.ResetCode()
		backlog = append(backlog, story)
	}
	b.lanes[LaneBacklog] = backlog
	return b, nil
}

// Stories returns a copy of one lane's stories in display order.
func (b Board) Stories(lane Lane) []Story {
	src := b.lanes[lane]
	out := make([]Story, 0, len(src))
	for _, story := range src {
		out = append(out, story.Clone())
	}
	return out
}

// Len returns the number of stories on the board.
func (b Board) Len() int {
	total := 0
	for _, lane := range lanes {
		total += len(b.lanes[lane])
	}
	return total
}

// Locate finds the lane and index holding the story id.
func (b Board) Locate(id string) (Lane, int, bool) {
	for _, lane := range lanes {
		for idx, story := range b.lanes[lane] {
			if story.ID == id {
				return lane, idx, true
			}
		}
	}
	return "", -1, false
}

// Story returns a copy of the story with the given id.
func (b Board) Story(id string) (Story, bool) {
	lane, idx, ok := b.Locate(id)
	if !ok {
		return Story{}, false
	}
	return b.lanes[lane][idx].Clone(), true
}

// Move removes the story from one lane and prepends it to another.
func (b *Board) Move(id string, from, to Lane) (Story, error) {
	if !from.Valid() || !to.Valid() {
		return Story{}, ErrInvalidLane
	}
	src := b.lanes[from]
	idx := -1
	for i, story := range src {
		if story.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Story{}, fmt.Errorf("%w: %s not in %s", ErrStoryNotInLane, id, from.Label())
	}

	story := src[idx]
	remaining := make([]Story, 0, len(src)-1)
	remaining = append(remaining, src[:idx]...)
	remaining = append(remaining, src[idx+1:]...)
	b.lanes[from] = remaining

	story.Status = to
	dst := make([]Story, 0, len(b.lanes[to])+1)
	dst = append(dst, story)
	dst = append(dst, b.lanes[to]...)
	b.lanes[to] = dst
	return story.Clone(), nil
}

// Update applies fn to the story in place and reports whether it was found.
func (b *Board) Update(id string, fn func(*Story)) (Story, bool) {
	lane, idx, ok := b.Locate(id)
	if !ok {
		return Story{}, false
	}
	story := b.lanes[lane][idx]
	fn(&story)
	story.ID = id
	story.Status = lane
	b.lanes[lane][idx] = story
	return story.Clone(), true
}

// Snapshot returns a deep copy of the board.
func (b Board) Snapshot() Board {
	out := Board{lanes: make(map[Lane][]Story, len(lanes))}
	for _, lane := range lanes {
		out.lanes[lane] = b.Stories(lane)
	}
	return out
}

// Validate checks the lane partition and status agreement.
func (b Board) Validate() error {
	seen := map[string]Lane{}
	for lane := range b.lanes {
		if !lane.Valid() {
			return fmt.Errorf("%w: unknown lane %q", ErrPartitionBroken, lane)
		}
	}
	for _, lane := range lanes {
		for _, story := range b.lanes[lane] {
			if prev, ok := seen[story.ID]; ok {
				return fmt.Errorf("%w: %s in %s and %s", ErrPartitionBroken, story.ID, prev.Label(), lane.Label())
			}
			seen[story.ID] = lane
			if story.Status != lane {
				return fmt.Errorf("%w: %s status %s in lane %s", ErrPartitionBroken, story.ID, story.Status.Label(), lane.Label())
			}
		}
	}
	return nil
}
