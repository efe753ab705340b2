package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/iancoleman/orderedmap"
)

// RosterEntry is a player keyed by the server-side identity of its connection.
type RosterEntry struct {
	ID     string
	Player PlayerView
}

// Roster is the players of a room in the order the server serialized them.
// The server sends an object keyed by player identity; the key order is kept
// because result ties are broken by it.
type Roster []RosterEntry

// UnmarshalJSON decodes a JSON object while keeping its key order.
func (r *Roster) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}

	order := orderedmap.New()
	if err := json.Unmarshal(data, order); err != nil {
		return fmt.Errorf("decode roster keys: %w", err)
	}

	var byID map[string]PlayerView
	if err := json.Unmarshal(data, &byID); err != nil {
		return fmt.Errorf("decode roster players: %w", err)
	}

	keys := order.Keys()
	out := make(Roster, 0, len(keys))
	for _, id := range keys {
		out = append(out, RosterEntry{ID: id, Player: byID[id]})
	}
	*r = out
	return nil
}

// MarshalJSON encodes the roster as a JSON object in roster order.
func (r Roster) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Player)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Players returns the player views in roster order.
func (r Roster) Players() []PlayerView {
	out := make([]PlayerView, len(r))
	for i, e := range r {
		out[i] = e.Player
	}
	return out
}

// FindByName returns the first player with the given display name.
// Names are not unique across clients; the first match wins.
func (r Roster) FindByName(name string) (PlayerView, bool) {
	for _, e := range r {
		if e.Player.Name == name {
			return e.Player, true
		}
	}
	return PlayerView{}, false
}
