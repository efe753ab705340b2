// Package protocol defines the messages exchanged with the game server.
package protocol

import (
	"strings"
)

// Application destinations the client publishes to.
const (
	DestCreate = "/app/create"
	DestJoin   = "/app/join"
	DestReady  = "/app/ready"
	DestStart  = "/app/start"
	DestMove   = "/app/move"
	DestLobby  = "/app/lobby" // Subscribe-once pull of the current room list
)

// Broadcast and per-client channels the client subscribes to.
const (
	TopicLobby         = "/topic/lobby"
	topicPrivatePrefix = "/topic/private/"
	topicRoomPrefix    = "/topic/room/"
)

// PrivateTopic returns the inbox destination for a client id.
func PrivateTopic(clientID string) string {
	return topicPrivatePrefix + clientID
}

// RoomTopic returns the snapshot channel for a room.
func RoomTopic(roomID string) string {
	return topicRoomPrefix + roomID
}

// GameState is the lifecycle phase of a room as reported by the server.
type GameState string

const (
	GameStateLobby   GameState = "LOBBY"
	GameStatePlaying GameState = "PLAYING"
	GameStateEnded   GameState = "ENDED"
)

// Known reports whether s is one of the phases the client understands.
func (s GameState) Known() bool {
	switch s {
	case GameStateLobby, GameStatePlaying, GameStateEnded:
		return true
	}
	return false
}

// ObstacleType is the variant of a stair. Unknown values are allowed and
// rendered with a generic style.
type ObstacleType string

const (
	ObstacleNormal        ObstacleType = "NORMAL"
	ObstacleSpike         ObstacleType = "SPIKE"
	ObstacleConveyorLeft  ObstacleType = "CONVEYOR_LEFT"
	ObstacleConveyorRight ObstacleType = "CONVEYOR_RIGHT"
)

// IsConveyor reports whether the stair moves players sideways.
func (t ObstacleType) IsConveyor() bool {
	return strings.Contains(string(t), "CONVEYOR")
}

// PlayerView is one player's state inside a room.
type PlayerView struct {
	Name        string  `json:"name"`
	HP          int     `json:"hp"`
	Floor       int     `json:"floor"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Ready       bool    `json:"ready"`
	Dead        bool    `json:"dead"`
	MovingLeft  bool    `json:"movingLeft"`
	MovingRight bool    `json:"movingRight"`
}

// Obstacle is a stair segment in world space.
type Obstacle struct {
	X     float64      `json:"x"`
	Y     float64      `json:"y"`
	Width float64      `json:"width"`
	Type  ObstacleType `json:"type"`
}

// Item is a pickup placed by the server. Purely cosmetic on the client.
type Item struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Type   string  `json:"type"`
}

// RoomSummary is a room as listed in the lobby browser.
type RoomSummary struct {
	RoomID    string    `json:"roomId"`
	GameState GameState `json:"gameState"`
	Players   Roster    `json:"players"`
}

// RoomSnapshot is the full authoritative state of the joined room.
// A new snapshot always replaces the previous one.
type RoomSnapshot struct {
	RoomID       string     `json:"roomId"`
	GameState    GameState  `json:"gameState"`
	Players      Roster     `json:"players"`
	ScrollOffset float64    `json:"scrollOffset"`
	Stairs       []Obstacle `json:"stairs"`
	Items        []Item     `json:"items,omitempty"`
}

// Summary returns the lobby-listing view of the snapshot.
func (s *RoomSnapshot) Summary() RoomSummary {
	return RoomSummary{RoomID: s.RoomID, GameState: s.GameState, Players: s.Players}
}

// InputIntent is the complete current movement intent of the local player.
// The server reads the keys "left" and "right".
type InputIntent struct {
	MovingLeft  bool `json:"left"`
	MovingRight bool `json:"right"`
}

// LeaderboardEntry is one ranked record of the leaderboard API.
type LeaderboardEntry struct {
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
}

// CreateRequest is the payload of DestCreate.
type CreateRequest struct {
	PlayerName string `json:"playerName"`
	ClientID   string `json:"clientId"`
}

// JoinRequest is the payload of DestJoin.
type JoinRequest struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId"`
}

// Empty is the payload of DestReady and DestStart.
type Empty struct{}

// EnvelopeRoomCreated tags the private reply to DestCreate.
const EnvelopeRoomCreated = "ROOM_CREATED"

// PrivateEnvelope is a tagged message on the per-client inbox.
type PrivateEnvelope struct {
	Type string       `json:"type"`
	Room *RoomSummary `json:"room,omitempty"`
}
