package domain

import "strings"

// Lane identifies one workflow stage on the board.
type Lane string

// Board lanes in display order.
const (
	LaneBacklog    Lane = "backlog"
	LaneInProgress Lane = "in_progress"
	LaneTesting    Lane = "testing"
	LaneDone       Lane = "done"
	LaneBlocked    Lane = "blocked"
)

// lanes stores the canonical lane ordering.
var lanes = []Lane{LaneBacklog, LaneInProgress, LaneTesting, LaneDone, LaneBlocked}

// laneLabels stores display labels for each lane.
var laneLabels = map[Lane]string{
	LaneBacklog:    "Backlog",
	LaneInProgress: "In Progress",
	LaneTesting:    "Testing",
	LaneDone:       "Done",
	LaneBlocked:    "Blocked",
}

// Lanes returns the fixed lane ordering.
func Lanes() []Lane {
	return append([]Lane(nil), lanes...)
}

// Valid reports whether the lane is one of the fixed board lanes.
func (l Lane) Valid() bool {
	_, ok := laneLabels[l]
	return ok
}

// Label returns the display label for the lane.
func (l Lane) Label() string {
	if label, ok := laneLabels[l]; ok {
		return label
	}
	return string(l)
}

// Index returns the lane position in display order, or -1 when unknown.
func (l Lane) Index() int {
	for idx, lane := range lanes {
		if lane == l {
			return idx
		}
	}
	return -1
}

// Offset returns the lane delta positions away, clamped to the board edges.
func (l Lane) Offset(delta int) Lane {
	idx := l.Index()
	if idx < 0 {
		return l
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx > len(lanes)-1 {
		idx = len(lanes) - 1
	}
	return lanes[idx]
}

// ParseLane accepts a lane identifier, its display label, or a kebab/space variant.
func ParseLane(raw string) (Lane, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if norm == "" {
		return "", ErrInvalidLane
	}
	for _, lane := range lanes {
		if string(lane) == norm {
			return lane, nil
		}
		if strings.ReplaceAll(strings.ToLower(lane.Label()), " ", "_") == norm {
			return lane, nil
		}
	}
	if norm == "inprogress" || norm == "progress" {
		return LaneInProgress, nil
	}
	return "", ErrInvalidLane
}
