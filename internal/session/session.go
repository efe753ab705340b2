// Package session holds the state owned by one client session: who the
// player is, which room it is in and the last snapshot the server pushed.
package session

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tomz197/officeescape/internal/protocol"
)

var (
	// ErrEmptyName is returned when an action needs a player name and none was entered.
	ErrEmptyName = errors.New("enter name")
	// ErrEmptyRoomCode is returned when joining without a room code.
	ErrEmptyRoomCode = errors.New("enter name and room code")
)

// Identity is the stable identity of a session.
type Identity struct {
	ClientID string // Opaque, generated once per session
}

// NewIdentity generates a fresh client id.
func NewIdentity() Identity {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Identity{ClientID: "client-" + id[:9]}
}

// ConnStatus is the state of the transport connection as seen by the session.
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
	Closed // Explicitly disconnected; terminal for this session
)

func (s ConnStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session is the explicit context object shared by the client components.
// All fields except the snapshot are owned by the client loop goroutine; the
// snapshot is swapped atomically so readers never see a torn value.
type Session struct {
	Identity   Identity
	PlayerName string // Name used for the last create/join; set before publishing
	RoomID     string
	Status     ConnStatus

	Rooms       []protocol.RoomSummary      // Last lobby broadcast, replaced wholesale
	Leaderboard []protocol.LeaderboardEntry // Last leaderboard read

	snapshot atomic.Pointer[protocol.RoomSnapshot]
}

// New creates a session with a fresh identity.
func New() *Session {
	return &Session{Identity: NewIdentity()}
}

// Snapshot returns the current room snapshot, or nil before the first one.
func (s *Session) Snapshot() *protocol.RoomSnapshot {
	return s.snapshot.Load()
}

// SetSnapshot replaces the current snapshot.
func (s *Session) SetSnapshot(snap *protocol.RoomSnapshot) {
	s.snapshot.Store(snap)
}

// ClearRoom forgets the room membership and its snapshot.
func (s *Session) ClearRoom() {
	s.RoomID = ""
	s.snapshot.Store(nil)
}

// PrepareCreate validates and records the name for a create request.
func (s *Session) PrepareCreate(name string) (protocol.CreateRequest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return protocol.CreateRequest{}, ErrEmptyName
	}
	s.PlayerName = name
	return protocol.CreateRequest{PlayerName: name, ClientID: s.Identity.ClientID}, nil
}

// PrepareJoin validates and records name and room for a join request.
func (s *Session) PrepareJoin(name, roomID string) (protocol.JoinRequest, error) {
	name = strings.TrimSpace(name)
	roomID = strings.TrimSpace(roomID)
	if name == "" || roomID == "" {
		return protocol.JoinRequest{}, ErrEmptyRoomCode
	}
	s.PlayerName = name
	s.RoomID = roomID
	return protocol.JoinRequest{PlayerName: name, RoomID: roomID}, nil
}
