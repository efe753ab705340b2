package input

import "github.com/tomz197/officeescape/internal/protocol"

// Pipeline keeps the left/right edge flags of the local player and emits the
// complete intent exactly once per real transition.
type Pipeline struct {
	left, right bool
	active      func() bool
	emit        func(protocol.InputIntent)
}

// NewPipeline creates a pipeline. Edges are only processed while active
// returns true; others are dropped, not queued.
func NewPipeline(active func() bool, emit func(protocol.InputIntent)) *Pipeline {
	return &Pipeline{active: active, emit: emit}
}

// KeyDown handles a press of d. Returns true if an intent was emitted.
func (p *Pipeline) KeyDown(d Direction) bool {
	if !p.active() {
		return false
	}
	flag := p.flag(d)
	if *flag {
		return false
	}
	*flag = true
	p.emit(p.Intent())
	return true
}

// KeyUp handles a release of d. Returns true if an intent was emitted.
func (p *Pipeline) KeyUp(d Direction) bool {
	if !p.active() {
		return false
	}
	flag := p.flag(d)
	if !*flag {
		return false
	}
	*flag = false
	p.emit(p.Intent())
	return true
}

// Apply dispatches an edge and returns the number of emitted intents.
func (p *Pipeline) Apply(edges ...Edge) int {
	n := 0
	for _, e := range edges {
		var sent bool
		if e.Down {
			sent = p.KeyDown(e.Dir)
		} else {
			sent = p.KeyUp(e.Dir)
		}
		if sent {
			n++
		}
	}
	return n
}

// Reset clears both flags without emitting. Used when the game stops
// under the player's held keys.
func (p *Pipeline) Reset() {
	p.left, p.right = false, false
}

// Intent returns the current intent.
func (p *Pipeline) Intent() protocol.InputIntent {
	return protocol.InputIntent{MovingLeft: p.left, MovingRight: p.right}
}

func (p *Pipeline) flag(d Direction) *bool {
	if d == DirLeft {
		return &p.left
	}
	return &p.right
}
