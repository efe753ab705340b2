package input

import "time"

// Direction is a horizontal movement key.
type Direction int

const (
	DirLeft Direction = iota
	DirRight
	numDirections
)

func (d Direction) String() string {
	if d == DirLeft {
		return "left"
	}
	return "right"
}

// Edge is a press or release transition of a direction key.
type Edge struct {
	Dir  Direction
	Down bool
}

// Tracker turns terminal key presses into press/release edges. A key is
// held while it keeps being reported (OS key-repeat) and released once it
// has not been seen for the hold window.
type Tracker struct {
	hold time.Duration
	last [numDirections]time.Time
	held [numDirections]bool
}

// NewTracker creates a tracker with the given hold window.
func NewTracker(hold time.Duration) *Tracker {
	return &Tracker{hold: hold}
}

// Update records the presses seen at now and returns the resulting edges,
// press edges first.
func (t *Tracker) Update(presses []Press, now time.Time) []Edge {
	var edges []Edge
	for _, p := range presses {
		d, ok := p.Direction()
		if !ok {
			continue
		}
		t.last[d] = now
		if !t.held[d] {
			t.held[d] = true
			edges = append(edges, Edge{Dir: d, Down: true})
		}
	}
	for d := Direction(0); d < numDirections; d++ {
		if t.held[d] && now.Sub(t.last[d]) >= t.hold {
			t.held[d] = false
			edges = append(edges, Edge{Dir: d})
		}
	}
	return edges
}

// Held reports whether d is currently held.
func (t *Tracker) Held(d Direction) bool {
	return t.held[d]
}

// Release releases every held key and returns the release edges.
func (t *Tracker) Release() []Edge {
	var edges []Edge
	for d := Direction(0); d < numDirections; d++ {
		if t.held[d] {
			t.held[d] = false
			edges = append(edges, Edge{Dir: d})
		}
	}
	return edges
}
