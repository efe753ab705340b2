// Package lobby reads the leaderboard and builds the lobby browser lists.
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/tomz197/officeescape/internal/protocol"
)

// MaxPlayers is the room capacity shown next to each listed room.
const MaxPlayers = 4

// Placeholders shown for empty lists.
const (
	NoRecords = "No records yet"
	NoRooms   = "No active rooms"
)

var medals = []string{"🥇", "🥈", "🥉"}

const otherMarker = "👏"

// Fetcher reads the leaderboard API.
type Fetcher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher for the leaderboard at url.
func NewFetcher(url string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("lobby"),
	}
}

// Fetch reads the ranked entries, best first.
func (f *Fetcher) Fetch(ctx context.Context) ([]protocol.LeaderboardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("leaderboard request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leaderboard: unexpected status %s", resp.Status)
	}
	var entries []protocol.LeaderboardEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("leaderboard decode: %w", err)
	}
	return entries, nil
}

// Load is Fetch for the UI: a failure is logged and reported as !ok so the
// caller keeps whatever it showed before.
func (f *Fetcher) Load(ctx context.Context) ([]protocol.LeaderboardEntry, bool) {
	entries, err := f.Fetch(ctx)
	if err != nil {
		f.logger.Warn("leaderboard unavailable", zap.String("url", f.url), zap.Error(err))
		return nil, false
	}
	f.logger.Debug("leaderboard loaded", zap.Int("entries", len(entries)))
	return entries, true
}

// Marker returns the rank marker for a 0-based position.
func Marker(rank int) string {
	if rank >= 0 && rank < len(medals) {
		return medals[rank]
	}
	return otherMarker
}

// LeaderboardLines formats entries for display. An empty leaderboard yields
// exactly one placeholder line.
func LeaderboardLines(entries []protocol.LeaderboardEntry) []string {
	if len(entries) == 0 {
		return []string{NoRecords}
	}
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s %sF", Marker(i), e.PlayerName, humanize.Comma(int64(e.Score))))
	}
	return lines
}

// RoomLine is one joinable entry of the room browser.
type RoomLine struct {
	RoomID  string
	Players int
	Playing bool
}

// Count returns the occupancy, e.g. "(2/4)".
func (l RoomLine) Count() string {
	return "(" + strconv.Itoa(l.Players) + "/" + strconv.Itoa(MaxPlayers) + ")"
}

func (l RoomLine) String() string {
	s := l.RoomID + " " + l.Count()
	if l.Playing {
		s += " PLAYING"
	}
	return s
}

// RoomList builds the browser entries in broadcast order. Ended rooms are
// left out.
func RoomList(rooms []protocol.RoomSummary) []RoomLine {
	var out []RoomLine
	for _, r := range rooms {
		if r.GameState == protocol.GameStateEnded {
			continue
		}
		out = append(out, RoomLine{
			RoomID:  r.RoomID,
			Players: len(r.Players),
			Playing: r.GameState == protocol.GameStatePlaying,
		})
	}
	return out
}
