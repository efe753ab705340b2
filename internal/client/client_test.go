package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tomz197/officeescape/internal/config"
	"github.com/tomz197/officeescape/internal/input"
	"github.com/tomz197/officeescape/internal/protocol"
	"github.com/tomz197/officeescape/internal/render"
	"github.com/tomz197/officeescape/internal/room"
	"github.com/tomz197/officeescape/internal/session"
	"github.com/tomz197/officeescape/internal/transport"
)

type fakeSub struct {
	ch    chan transport.Message
	once  sync.Once
	delay time.Duration // receipt round trip
}

func (s *fakeSub) Messages() <-chan transport.Message { return s.ch }

func (s *fakeSub) Unsubscribe() error {
	time.Sleep(s.delay)
	s.once.Do(func() { close(s.ch) })
	return nil
}

type sentMessage struct {
	dest string
	body string
}

type fakeBroker struct {
	mu           sync.Mutex
	subs         map[string]*fakeSub
	sent         []sentMessage
	disconnected bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string]*fakeSub)}
}

func (b *fakeBroker) Subscribe(dest string) (transport.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSub{ch: make(chan transport.Message, 8)}
	b.subs[dest] = s
	return s, nil
}

func (b *fakeBroker) Send(dest string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{dest: dest, body: string(body)})
	return nil
}

func (b *fakeBroker) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
	return nil
}

func (b *fakeBroker) subscribed(dest string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[dest]
	return ok
}

func (b *fakeBroker) sentTo(dest string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.sent {
		if m.dest == dest {
			out = append(out, m.body)
		}
	}
	return out
}

// slowReceipts makes every unsubscribe wait for d.
func (b *fakeBroker) slowReceipts(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.delay = d
	}
}

func (b *fakeBroker) isDisconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnected
}

type fakeDialer struct {
	mu       sync.Mutex
	broker   *fakeBroker
	failures int // Dials that fail before one succeeds
	calls    int
}

func (d *fakeDialer) Dial(ctx context.Context) (transport.Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	return d.broker, nil
}

type staticBoard []protocol.LeaderboardEntry

func (b staticBoard) Load(context.Context) ([]protocol.LeaderboardEntry, bool) {
	return b, true
}

// syncBuffer is the terminal the client draws to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type harness struct {
	t      *testing.T
	c      *Client
	broker *fakeBroker
	dialer *fakeDialer
	keys   *io.PipeWriter
	out    *syncBuffer
	now    time.Time
}

func newHarness(t *testing.T, failures int) *harness {
	t.Helper()
	pr, pw := io.Pipe()
	broker := newFakeBroker()
	dialer := &fakeDialer{broker: broker, failures: failures}
	out := &syncBuffer{}

	c := New(bufio.NewReader(pr), out, Options{
		Config:       config.Config{KeyHold: 50 * time.Millisecond, FPS: 60},
		TermSizeFunc: func() (int, int, error) { return 120, 40, nil },
		Profile:      termenv.Ascii,
		Dialer:       dialer,
		Leaderboard:  staticBoard{{PlayerName: "neo", Score: 12}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	c.ctx, c.group = gctx, g
	t.Cleanup(func() {
		cancel()
		_ = pw.Close()
		c.adapter.Disconnect()
		_ = g.Wait()
		c.adapter.Wait()
	})
	return &harness{t: t, c: c, broker: broker, dialer: dialer, keys: pw, out: out, now: time.Unix(1000, 0)}
}

func (h *harness) press(keys string) {
	h.t.Helper()
	_, err := h.keys.Write([]byte(keys))
	require.NoError(h.t, err)
	// Let the reader hand every byte over so escape sequences arrive whole.
	time.Sleep(10 * time.Millisecond)
}

// stepUntil runs frames, 16ms apart on the frame clock, until cond holds.
func (h *harness) stepUntil(msg string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", msg)
		}
		h.now = h.now.Add(16 * time.Millisecond)
		require.NoError(h.t, h.c.frame(h.now))
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) steps(n int) {
	h.t.Helper()
	for range n {
		h.now = h.now.Add(16 * time.Millisecond)
		require.NoError(h.t, h.c.frame(h.now))
	}
}

func (h *harness) push(dest, body string) {
	h.t.Helper()
	h.broker.mu.Lock()
	s, ok := h.broker.subs[dest]
	h.broker.mu.Unlock()
	require.True(h.t, ok, "no subscription for %s", dest)
	s.ch <- transport.Message{Body: []byte(body)}
}

// breakConnection reports a transport error on the lobby subscription.
func (h *harness) breakConnection() {
	h.t.Helper()
	h.broker.mu.Lock()
	s, ok := h.broker.subs[protocol.TopicLobby]
	h.broker.mu.Unlock()
	require.True(h.t, ok)
	s.ch <- transport.Message{Err: errors.New("connection reset")}
}

// createRoom creates room R1 and waits in it.
func (h *harness) createRoom() {
	h.t.Helper()
	h.press("neo\r")
	h.stepUntil("create", func() bool { return len(h.broker.sentTo(protocol.DestCreate)) == 1 })
	h.push(protocol.PrivateTopic(h.c.session.Identity.ClientID),
		`{"type":"ROOM_CREATED","room":{"roomId":"R1","gameState":"LOBBY","players":{"s1":{"name":"neo"}}}}`)
	h.stepUntil("waiting room", func() bool { return h.c.view == ViewWaiting })
}

func (h *harness) connect() {
	h.t.Helper()
	h.c.connect(h.c.fetchLeaderboard)
	h.stepUntil("connected", func() bool {
		return h.c.session.Status == session.Connected && len(h.c.session.Leaderboard) == 1
	})
}

func TestClampTermSize(t *testing.T) {
	tests := []struct {
		name           string
		w, h           int
		rw, rh, ox, oy int
	}{
		{"wide terminal", 120, 40, 106, 40, 7, 0},
		{"huge terminal", 300, 100, 240, 90, 30, 5},
		{"tall terminal", 80, 60, 80, 30, 0, 15},
		{"no size", 0, 0, 1, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw, rh, ox, oy := clampTermSize(tt.w, tt.h)
			assert.Equal(t, []int{tt.rw, tt.rh, tt.ox, tt.oy}, []int{rw, rh, ox, oy})
		})
	}
}

func TestCreatePlayAndFinish(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()
	h.steps(1)
	assert.Equal(t, ViewBrowser, h.c.view)
	assert.Contains(t, h.out.String(), "🥇 neo 12F")

	clientID := h.c.session.Identity.ClientID
	h.press("neo\r")
	h.stepUntil("create", func() bool { return len(h.broker.sentTo(protocol.DestCreate)) == 1 })
	assert.JSONEq(t, `{"playerName":"neo","clientId":"`+clientID+`"}`, h.broker.sentTo(protocol.DestCreate)[0])
	h.steps(1)
	assert.Equal(t, ViewJoining, h.c.view)

	h.push(protocol.PrivateTopic(clientID),
		`{"type":"ROOM_CREATED","room":{"roomId":"R1","gameState":"LOBBY","players":{"s1":{"name":"neo"}}}}`)
	h.stepUntil("waiting room", func() bool { return h.c.view == ViewWaiting })
	assert.True(t, h.broker.subscribed(protocol.RoomTopic("R1")))
	assert.Contains(t, h.out.String(), "Room: R1")

	// Ready does not change local state; the server's snapshot does.
	h.press("r")
	h.stepUntil("ready", func() bool { return len(h.broker.sentTo(protocol.DestReady)) == 1 })
	assert.Equal(t, room.Lobby, h.c.machine.State())

	// Movement keys do nothing outside the game.
	h.press("\x1b[D")
	h.steps(5)
	assert.Empty(t, h.broker.sentTo(protocol.DestMove))

	h.push(protocol.RoomTopic("R1"),
		`{"roomId":"R1","gameState":"PLAYING","scrollOffset":0,"players":{"s1":{"name":"neo","hp":100,"floor":2,"x":100,"y":300}},"stairs":[{"x":50,"y":400,"width":200,"type":"NORMAL"}]}`)
	h.stepUntil("playing", func() bool { return h.c.view == ViewPlaying })
	hud, ok := h.c.machine.HUD()
	require.True(t, ok)
	assert.Equal(t, room.HUD{HP: 100, Floor: 2}, hud)

	h.press("\x1b[D")
	h.stepUntil("move", func() bool { return len(h.broker.sentTo(protocol.DestMove)) == 1 })
	assert.JSONEq(t, `{"left":true,"right":false}`, h.broker.sentTo(protocol.DestMove)[0])

	// No further key reports: the hold window runs out and the key is released.
	h.stepUntil("release", func() bool { return len(h.broker.sentTo(protocol.DestMove)) == 2 })
	assert.JSONEq(t, `{"left":false,"right":false}`, h.broker.sentTo(protocol.DestMove)[1])

	h.push(protocol.RoomTopic("R1"),
		`{"roomId":"R1","gameState":"ENDED","players":{"s2":{"name":"A","floor":3},"s3":{"name":"B","floor":5},"s1":{"name":"neo","floor":3}}}`)
	h.stepUntil("results", func() bool { return h.c.view == ViewResults })
	assert.Eventually(t, h.broker.isDisconnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Closed, h.c.session.Status)
	assert.Equal(t, []room.Result{
		{Name: "B", Floor: 5},
		{Name: "A", Floor: 3},
		{Name: "neo", Floor: 3, Local: true},
	}, h.c.machine.Results())
	assert.Contains(t, h.out.String(), "GAME OVER")

	// Enter starts over with a fresh identity and transport.
	h.press("\r")
	h.stepUntil("new session", func() bool { return h.c.view == ViewBrowser })
	assert.NotEqual(t, clientID, h.c.session.Identity.ClientID)
	assert.Equal(t, "neo", h.c.form.Name)
	h.stepUntil("reconnected", func() bool { return h.c.session.Status == session.Connected })
}

func TestEmptyNameShowsAlert(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()

	h.press("\r")
	h.stepUntil("alert", func() bool { return h.c.alert != "" })
	h.steps(1)
	assert.Equal(t, session.ErrEmptyName.Error(), h.c.alert)
	assert.Contains(t, h.out.String(), "press any key")
	assert.Empty(t, h.broker.sentTo(protocol.DestCreate))

	// The dismissing key is not typed into the form.
	h.press("x")
	h.stepUntil("dismissed", func() bool { return h.c.alert == "" })
	assert.Empty(t, h.c.form.Name)

	h.press("\tR1\r")
	h.stepUntil("join alert", func() bool { return h.c.alert != "" })
	assert.Equal(t, session.ErrEmptyRoomCode.Error(), h.c.alert)
	assert.Empty(t, h.broker.sentTo(protocol.DestJoin))
}

func TestJoinFromRoomList(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()

	h.push(protocol.TopicLobby,
		`[{"roomId":"OLD","gameState":"ENDED","players":{}},{"roomId":"R9","gameState":"LOBBY","players":{"s1":{"name":"a"}}}]`)
	h.stepUntil("rooms", func() bool { return len(h.c.form.Rooms()) == 1 })
	h.steps(1)
	assert.Contains(t, h.out.String(), "R9 (1/4)")
	assert.NotContains(t, h.out.String(), "OLD")

	h.press("neo\t\t\r")
	h.stepUntil("join", func() bool { return len(h.broker.sentTo(protocol.DestJoin)) == 1 })
	assert.JSONEq(t, `{"playerName":"neo","roomId":"R9"}`, h.broker.sentTo(protocol.DestJoin)[0])
	assert.True(t, h.broker.subscribed(protocol.RoomTopic("R9")))

	h.push(protocol.RoomTopic("R9"), `{"roomId":"R9","gameState":"LOBBY","players":{"s1":{"name":"a"},"s2":{"name":"neo"}}}`)
	h.stepUntil("waiting", func() bool { return h.c.view == ViewWaiting })
	h.steps(1)
	assert.Contains(t, h.out.String(), "neo  not ready")

	h.press("s")
	h.stepUntil("start", func() bool { return len(h.broker.sentTo(protocol.DestStart)) == 1 })
}

func TestUnansweredJoinCanBeAbandoned(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()

	h.press("neo\tNOPE\r")
	h.stepUntil("join", func() bool { return len(h.broker.sentTo(protocol.DestJoin)) == 1 })
	// The server stays silent about a room it cannot join.
	h.steps(200)
	assert.Equal(t, ViewJoining, h.c.view)
	assert.Contains(t, h.out.String(), "esc to go back")

	h.press("\x1b")
	h.stepUntil("lobby", func() bool { return h.c.view == ViewBrowser })
	assert.True(t, h.c.running)
	assert.Empty(t, h.c.session.RoomID)

	h.push(protocol.RoomTopic("NOPE"), `{"roomId":"NOPE","gameState":"LOBBY","players":{"s1":{"name":"neo"}}}`)
	h.steps(5)
	assert.Equal(t, ViewBrowser, h.c.view)
	assert.Nil(t, h.c.session.Snapshot())

	// The code field still has focus; correct it and try again.
	h.press("\x7f\x7f\x7f\x7fR1\r")
	h.stepUntil("second join", func() bool { return len(h.broker.sentTo(protocol.DestJoin)) == 2 })
	assert.JSONEq(t, `{"playerName":"neo","roomId":"R1"}`, h.broker.sentTo(protocol.DestJoin)[1])
	assert.Equal(t, "R1", h.c.session.RoomID)
}

func TestTabLeavesJoiningAndKeepsTyping(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()

	h.press("neo\tNOPE\r")
	h.stepUntil("join", func() bool { return len(h.broker.sentTo(protocol.DestJoin)) == 1 })
	h.steps(1)
	require.Equal(t, ViewJoining, h.c.view)

	// Keys after the one that abandons the join reach the lobby browser:
	// focus moves code → rooms → name, and Enter creates.
	h.press("\t\t\t\r")
	h.stepUntil("create", func() bool { return len(h.broker.sentTo(protocol.DestCreate)) == 1 })
	assert.Len(t, h.broker.sentTo(protocol.DestJoin), 1)
}

func TestLostConnectionAbandonsJoin(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()

	h.press("neo\tNOPE\r")
	h.stepUntil("join", func() bool { return len(h.broker.sentTo(protocol.DestJoin)) == 1 })
	h.steps(1)
	require.Equal(t, ViewJoining, h.c.view)

	h.breakConnection()
	h.stepUntil("lobby", func() bool { return h.c.view == ViewBrowser })
	assert.Equal(t, session.Disconnected, h.c.session.Status)
	assert.Empty(t, h.c.session.RoomID)
	assert.True(t, h.c.running)
}

func TestEndedDoesNotStallFrames(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()
	h.createRoom()

	h.broker.slowReceipts(250 * time.Millisecond)
	h.push(protocol.RoomTopic("R1"), `{"roomId":"R1","gameState":"ENDED","players":{"s1":{"name":"neo","floor":1}}}`)

	var slowest time.Duration
	deadline := time.Now().Add(2 * time.Second)
	for h.c.view != ViewResults {
		require.True(t, time.Now().Before(deadline), "no results screen")
		h.now = h.now.Add(16 * time.Millisecond)
		start := time.Now()
		require.NoError(t, h.c.frame(h.now))
		slowest = max(slowest, time.Since(start))
		time.Sleep(time.Millisecond)
	}
	assert.Less(t, slowest, 100*time.Millisecond)
	assert.Equal(t, session.Closed, h.c.session.Status)
	assert.Eventually(t, h.broker.isDisconnected, 3*time.Second, 10*time.Millisecond)
}

func TestHeldKeyForgottenWhenPlayStops(t *testing.T) {
	h := newHarness(t, 0)
	h.connect()
	h.createRoom()

	playing := `{"roomId":"R1","gameState":"PLAYING","players":{"s1":{"name":"neo","hp":100,"x":100,"y":300}}}`
	h.push(protocol.RoomTopic("R1"), playing)
	h.stepUntil("playing", func() bool { return h.c.view == ViewPlaying })

	// Left goes down, then the server stops the game before any release.
	require.Equal(t, 1, h.c.pipeline.Apply(input.Edge{Dir: input.DirLeft, Down: true}))
	h.push(protocol.RoomTopic("R1"), `{"roomId":"R1","gameState":"LOBBY","players":{"s1":{"name":"neo"}}}`)
	h.stepUntil("back in lobby", func() bool { return h.c.view == ViewWaiting })
	assert.Equal(t, protocol.InputIntent{}, h.c.pipeline.Intent())

	h.push(protocol.RoomTopic("R1"), playing)
	h.stepUntil("playing again", func() bool { return h.c.view == ViewPlaying })
	h.press("\x1b[D")
	h.stepUntil("move", func() bool { return len(h.broker.sentTo(protocol.DestMove)) == 2 })
	assert.JSONEq(t, `{"left":true,"right":false}`, h.broker.sentTo(protocol.DestMove)[1])
}

func TestConnectOnDemandAfterFailure(t *testing.T) {
	h := newHarness(t, 1)

	h.c.connect(h.c.fetchLeaderboard)
	require.Equal(t, session.Connecting, h.c.session.Status)
	h.stepUntil("connect failure", func() bool { return h.c.session.Status == session.Disconnected })
	assert.Empty(t, h.c.session.Leaderboard)

	// Creating a room connects again and publishes once connected.
	h.press("neo\r")
	h.stepUntil("create", func() bool { return len(h.broker.sentTo(protocol.DestCreate)) == 1 })
	assert.Equal(t, session.Connected, h.c.session.Status)

	h.dialer.mu.Lock()
	defer h.dialer.mu.Unlock()
	assert.Equal(t, 2, h.dialer.calls)
}

func TestQuitKeys(t *testing.T) {
	tests := []struct {
		name string
		keys string
	}{
		{"escape", "\x1b"},
		{"ctrl-c", "\x03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			h.press(tt.keys)

			deadline := time.Now().Add(2 * time.Second)
			for {
				h.now = h.now.Add(16 * time.Millisecond)
				err := h.c.frame(h.now)
				if errors.Is(err, render.ErrStop) {
					return
				}
				require.NoError(t, err)
				require.True(t, time.Now().Before(deadline), "client did not quit")
				time.Sleep(time.Millisecond)
			}
		})
	}
}

func TestRunEndsWhenInputCloses(t *testing.T) {
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	c := New(bufio.NewReader(pr), out, Options{
		Config:       config.Config{KeyHold: 50 * time.Millisecond, FPS: 120},
		TermSizeFunc: func() (int, int, error) { return 80, 24, nil },
		Profile:      termenv.Ascii,
		Dialer:       &fakeDialer{broker: newFakeBroker()},
		Leaderboard:  staticBoard{},
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, pw.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	s := out.String()
	assert.True(t, strings.HasPrefix(s, "\033[?25l"))
	assert.True(t, strings.HasSuffix(s, "\033[?25h"))
	assert.Contains(t, s, "OFFICE ESCAPE")
}
