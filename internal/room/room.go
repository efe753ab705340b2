// Package room interprets the snapshots of the joined room and decides which
// screen the client shows. The server is the only source of transitions.
package room

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tomz197/officeescape/internal/protocol"
)

// State is the client-side phase of room membership.
type State int

const (
	NotInRoom State = iota
	Lobby
	Playing
	Ended // Terminal for the connection
)

func (s State) String() string {
	switch s {
	case NotInRoom:
		return "NOT_IN_ROOM"
	case Lobby:
		return "LOBBY"
	case Playing:
		return "PLAYING"
	case Ended:
		return "ENDED"
	}
	return "UNKNOWN"
}

func stateOf(gs protocol.GameState) (State, bool) {
	switch gs {
	case protocol.GameStateLobby:
		return Lobby, true
	case protocol.GameStatePlaying:
		return Playing, true
	case protocol.GameStateEnded:
		return Ended, true
	}
	return NotInRoom, false
}

// Transition is a change of state caused by one snapshot.
type Transition struct {
	From, To State
}

// HUD is the local player's health and depth.
type HUD struct {
	HP    int
	Floor int
}

// Member is one roster line of the waiting room.
type Member struct {
	Name  string
	Ready bool
}

// Waiting is what the waiting-room screen shows.
type Waiting struct {
	RoomID    string
	Members   []Member
	ShowStart bool // Always true; the server rejects an invalid start
}

// Result is one line of the results screen.
type Result struct {
	Name  string
	Floor int
	Local bool
}

// Machine tracks the state of one room membership.
type Machine struct {
	state     State
	localName string
	onEnded   func()
	logger    *zap.Logger

	hud          HUD
	hasHUD       bool
	playingSince time.Time
	elapsed      time.Duration
	results      []Result
}

// New creates a machine in NotInRoom. onEnded runs once when the room ends;
// the client disconnects the transport there.
func New(localName string, onEnded func(), logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onEnded == nil {
		onEnded = func() {}
	}
	return &Machine{
		localName: localName,
		onEnded:   onEnded,
		logger:    logger.Named("room"),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// SetLocalName sets the name used to find the local player in the roster.
func (m *Machine) SetLocalName(name string) {
	m.localName = name
}

// LocalName returns the name used to find the local player.
func (m *Machine) LocalName() string {
	return m.localName
}

// Apply interprets a snapshot received at now. It reports the transition it
// caused, if any. Snapshots after Ended and snapshots with an unknown game
// state are ignored.
func (m *Machine) Apply(snap *protocol.RoomSnapshot, now time.Time) (Transition, bool) {
	if snap == nil || m.state == Ended {
		return Transition{}, false
	}
	next, ok := stateOf(snap.GameState)
	if !ok {
		m.logger.Warn("unknown game state", zap.String("room_id", snap.RoomID), zap.String("state", string(snap.GameState)))
		return Transition{}, false
	}

	if next == Playing {
		m.refreshHUD(snap)
	}
	if next == m.state {
		return Transition{}, false
	}

	t := Transition{From: m.state, To: next}
	m.state = next
	switch next {
	case Playing:
		m.playingSince = now
	case Ended:
		if !m.playingSince.IsZero() {
			m.elapsed = now.Sub(m.playingSince)
		}
		m.results = Results(snap.Players, m.localName)
		m.onEnded()
	}
	m.logger.Info("room state changed",
		zap.String("room_id", snap.RoomID),
		zap.Stringer("from", t.From),
		zap.Stringer("to", t.To))
	return t, true
}

// refreshHUD copies the local player's health and floor. When the player is
// missing from the roster the previous values stay.
func (m *Machine) refreshHUD(snap *protocol.RoomSnapshot) {
	p, ok := snap.Players.FindByName(m.localName)
	if !ok {
		return
	}
	m.hud = HUD{HP: p.HP, Floor: p.Floor}
	m.hasHUD = true
}

// HUD returns the last extracted HUD values.
func (m *Machine) HUD() (HUD, bool) {
	return m.hud, m.hasHUD
}

// Results returns the final standings. Empty before Ended.
func (m *Machine) Results() []Result {
	return m.results
}

// Elapsed returns how long the match ran as observed by this client.
func (m *Machine) Elapsed() time.Duration {
	return m.elapsed
}

// LocalResult returns the local player's line of the results.
func (m *Machine) LocalResult() (Result, bool) {
	for _, r := range m.results {
		if r.Local {
			return r, true
		}
	}
	return Result{}, false
}

// WaitingView builds the waiting-room view of a snapshot.
func WaitingView(snap *protocol.RoomSnapshot) Waiting {
	w := Waiting{RoomID: snap.RoomID, ShowStart: true}
	for _, p := range snap.Players.Players() {
		w.Members = append(w.Members, Member{Name: p.Name, Ready: p.Ready})
	}
	return w
}

// Results orders players by floor, deepest first. Players on the same floor
// keep roster order.
func Results(players protocol.Roster, localName string) []Result {
	out := make([]Result, 0, len(players))
	for _, e := range players {
		out = append(out, Result{Name: e.Player.Name, Floor: e.Player.Floor, Local: e.Player.Name == localName})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Floor > out[j].Floor
	})
	return out
}
