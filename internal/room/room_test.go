package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomz197/officeescape/internal/protocol"
)

func snapshot(state protocol.GameState, players ...protocol.PlayerView) *protocol.RoomSnapshot {
	s := &protocol.RoomSnapshot{RoomID: "R1", GameState: state}
	for i, p := range players {
		s.Players = append(s.Players, protocol.RosterEntry{ID: string(rune('a' + i)), Player: p})
	}
	return s
}

func TestTransitionsFollowSnapshots(t *testing.T) {
	ended := 0
	m := New("neo", func() { ended++ }, nil)
	assert.Equal(t, NotInRoom, m.State())

	start := time.Unix(100, 0)
	tr, ok := m.Apply(snapshot(protocol.GameStateLobby), start)
	require.True(t, ok)
	assert.Equal(t, Transition{From: NotInRoom, To: Lobby}, tr)

	// Same state again is not a transition.
	_, ok = m.Apply(snapshot(protocol.GameStateLobby), start)
	assert.False(t, ok)

	tr, ok = m.Apply(snapshot(protocol.GameStatePlaying, protocol.PlayerView{Name: "neo", HP: 3}), start)
	require.True(t, ok)
	assert.Equal(t, Playing, tr.To)

	tr, ok = m.Apply(snapshot(protocol.GameStateEnded), start.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, Ended, tr.To)
	assert.Equal(t, 1, ended)
	assert.Equal(t, 90*time.Second, m.Elapsed())
}

func TestEndedIsTerminal(t *testing.T) {
	ended := 0
	m := New("neo", func() { ended++ }, nil)
	m.Apply(snapshot(protocol.GameStateEnded), time.Now())

	_, ok := m.Apply(snapshot(protocol.GameStateLobby), time.Now())
	assert.False(t, ok)
	_, ok = m.Apply(snapshot(protocol.GameStateEnded), time.Now())
	assert.False(t, ok)
	assert.Equal(t, Ended, m.State())
	assert.Equal(t, 1, ended)
	assert.Zero(t, m.Elapsed())
}

func TestUnknownGameStateIgnored(t *testing.T) {
	m := New("neo", nil, nil)
	m.Apply(snapshot(protocol.GameStateLobby), time.Now())
	_, ok := m.Apply(snapshot("PAUSED"), time.Now())
	assert.False(t, ok)
	assert.Equal(t, Lobby, m.State())

	_, ok = m.Apply(nil, time.Now())
	assert.False(t, ok)
}

func TestHUDFromLocalPlayer(t *testing.T) {
	m := New("neo", nil, nil)
	_, ok := m.HUD()
	assert.False(t, ok)

	m.Apply(snapshot(protocol.GameStatePlaying,
		protocol.PlayerView{Name: "trinity", HP: 1, Floor: 9},
		protocol.PlayerView{Name: "neo", HP: 3, Floor: 4},
	), time.Now())
	hud, ok := m.HUD()
	require.True(t, ok)
	assert.Equal(t, HUD{HP: 3, Floor: 4}, hud)

	m.Apply(snapshot(protocol.GameStatePlaying, protocol.PlayerView{Name: "neo", HP: 2, Floor: 6}), time.Now())
	hud, _ = m.HUD()
	assert.Equal(t, HUD{HP: 2, Floor: 6}, hud)

	// Local player missing: the update is skipped.
	m.Apply(snapshot(protocol.GameStatePlaying, protocol.PlayerView{Name: "trinity"}), time.Now())
	hud, ok = m.HUD()
	assert.True(t, ok)
	assert.Equal(t, HUD{HP: 2, Floor: 6}, hud)
}

func TestResultsSortedByFloorStable(t *testing.T) {
	m := New("A", nil, nil)
	m.Apply(snapshot(protocol.GameStatePlaying), time.Now())
	m.Apply(snapshot(protocol.GameStateEnded,
		protocol.PlayerView{Name: "A", Floor: 3},
		protocol.PlayerView{Name: "B", Floor: 5},
		protocol.PlayerView{Name: "C", Floor: 3},
	), time.Now())

	var names []string
	for _, r := range m.Results() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"B", "A", "C"}, names)

	local, ok := m.LocalResult()
	require.True(t, ok)
	assert.Equal(t, Result{Name: "A", Floor: 3, Local: true}, local)
}

func TestWaitingView(t *testing.T) {
	w := WaitingView(snapshot(protocol.GameStateLobby,
		protocol.PlayerView{Name: "neo", Ready: true},
		protocol.PlayerView{Name: "trinity"},
	))
	assert.Equal(t, "R1", w.RoomID)
	assert.True(t, w.ShowStart)
	assert.Equal(t, []Member{{Name: "neo", Ready: true}, {Name: "trinity"}}, w.Members)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NOT_IN_ROOM", NotInRoom.String())
	assert.Equal(t, "ENDED", Ended.String())
}
