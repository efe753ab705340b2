// Package client runs one player's session: it drains key presses and
// server events, drives the room state machine and paints either the game
// canvas or a text screen every frame.
package client

import (
	"bufio"
	"context"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tomz197/officeescape/internal/config"
	"github.com/tomz197/officeescape/internal/draw"
	"github.com/tomz197/officeescape/internal/input"
	"github.com/tomz197/officeescape/internal/lobby"
	"github.com/tomz197/officeescape/internal/protocol"
	"github.com/tomz197/officeescape/internal/render"
	"github.com/tomz197/officeescape/internal/room"
	"github.com/tomz197/officeescape/internal/screen"
	"github.com/tomz197/officeescape/internal/session"
	"github.com/tomz197/officeescape/internal/transport"
)

// Leaderboard loads the ranked entries shown in the lobby browser.
// A failed load reports !ok and is otherwise ignored.
type Leaderboard interface {
	Load(ctx context.Context) ([]protocol.LeaderboardEntry, bool)
}

// Options configures the client.
type Options struct {
	Config       config.Config
	TermSizeFunc draw.TermSizeFunc
	Profile      draw.Profile
	Logger       *zap.Logger
	Dialer       transport.Dialer // Defaults to STOMP at Config.WebSocketURL
	Leaderboard  Leaderboard      // Defaults to the HTTP API at Config.LeaderboardURL
}

// Client handles rendering, input and server traffic for a single player.
type Client struct {
	cfg          config.Config
	logger       *zap.Logger
	dialer       transport.Dialer
	board        Leaderboard
	termSizeFunc draw.TermSizeFunc

	// Per-session components, rebuilt by newSessionState.
	session  *session.Session
	adapter  *transport.Adapter
	machine  *room.Machine
	tracker  *input.Tracker
	pipeline *input.Pipeline
	pending  []func() // Run once the connection is ready

	form    screen.Form
	theme   *screen.Theme
	painter screen.Painter
	engine  *render.Engine
	canvas  *draw.Canvas
	cw      *draw.ChunkWriter
	writer  io.Writer
	stream  *input.Stream
	boards  chan []protocol.LeaderboardEntry

	termWidth, termHeight int
	view, prevView        View
	joining               bool   // Create or join sent, waiting for the room
	alert                 string // Blocking message, dismissed by any key
	running               bool
	lastFrame             time.Time

	ctx   context.Context
	group *errgroup.Group
}

// New creates a client reading keys from r and drawing to w.
func New(r *bufio.Reader, w io.Writer, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	termSizeFunc := opts.TermSizeFunc
	if termSizeFunc == nil {
		termSizeFunc = draw.DefaultTermSizeFunc
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = transport.StompDialer{URL: opts.Config.WebSocketURL(), Logger: logger}
	}
	board := opts.Leaderboard
	if board == nil {
		board = lobby.NewFetcher(opts.Config.LeaderboardURL(), opts.Config.HTTPTimeout, logger)
	}

	// Create canvas with clamped dimensions for max render resolution
	termWidth, termHeight, err := termSizeFunc.Size()
	if err != nil {
		termWidth, termHeight = defaultTermWidth, defaultTermHeight
	}
	renderWidth, renderHeight, offsetCol, offsetRow := clampTermSize(termWidth, termHeight)
	canvas := draw.NewScaledCanvas(renderWidth, renderHeight, render.GameWidth, render.GameHeight, draw.NewEncoder(opts.Profile))
	canvas.SetOffset(offsetCol, offsetRow)

	c := &Client{
		cfg:          opts.Config,
		logger:       logger.Named("client"),
		dialer:       dialer,
		board:        board,
		termSizeFunc: termSizeFunc,
		theme:        screen.NewTheme(opts.Profile),
		engine:       render.NewEngine(canvas, logger),
		canvas:       canvas,
		cw:           draw.NewChunkWriter(w, 0, 0),
		writer:       w,
		stream:       input.StartStream(r),
		boards:       make(chan []protocol.LeaderboardEntry, 4),
		termWidth:    termWidth,
		termHeight:   termHeight,
		prevView:     -1,
		running:      true,
	}
	c.newSessionState()
	return c
}

// Run starts the client loop. Blocks until the player quits, the input
// closes or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	draw.HideCursor(c.writer)
	defer draw.ShowCursor(c.writer)
	draw.ClearScreen(c.writer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	c.ctx, c.group = gctx, g

	c.connect(c.fetchLeaderboard)
	g.Go(func() error {
		defer cancel()
		return render.RunFrames(gctx, c.cfg.FrameTime(), c.frame, c.logger)
	})
	err := g.Wait()

	c.adapter.Disconnect()
	c.adapter.Wait()
	draw.ClearScreen(c.writer)
	return err
}

// frame runs one iteration of the loop.
func (c *Client) frame(now time.Time) error {
	c.lastFrame = now
	c.processInput(now)
	c.processEvents(now)
	if !c.running {
		return render.ErrStop
	}
	c.updateScreen()
	c.view = c.currentView()
	if c.view == ViewBrowser && c.prevView != ViewBrowser && c.prevView >= 0 {
		// Lobby re-entered.
		c.fetchLeaderboard()
	}
	return c.drawFrame()
}

// newSessionState builds a fresh session: new client id, new transport and
// state machine. The lobby form keeps the entered name.
func (c *Client) newSessionState() {
	c.session = session.New()
	c.adapter = transport.NewAdapter(c.dialer, c.session.Identity.ClientID, c.logger)
	c.machine = room.New("", c.onEnded, c.logger)
	c.tracker = input.NewTracker(c.cfg.KeyHold)
	c.pipeline = input.NewPipeline(c.inGame, c.sendIntent)
	c.pending = nil
	c.joining = false
	c.form.Code = ""
	c.form.SetRooms(nil)
	c.logger.Info("session started", zap.String("client_id", c.session.Identity.ClientID))
}

// restart replaces an ended session with a new one.
func (c *Client) restart() {
	old := c.adapter
	old.Disconnect()
	c.group.Go(func() error {
		old.Wait()
		return nil
	})
	c.newSessionState()
	c.connect(nil)
}

func (c *Client) currentView() View {
	switch c.machine.State() {
	case room.Lobby:
		return ViewWaiting
	case room.Playing:
		return ViewPlaying
	case room.Ended:
		return ViewResults
	}
	if c.joining {
		return ViewJoining
	}
	return ViewBrowser
}

func (c *Client) inGame() bool {
	return c.machine.State() == room.Playing
}

// processInput reads key presses and applies them to the current view.
func (c *Client) processInput(now time.Time) {
	presses, closed := c.stream.Read()
	if closed {
		c.running = false
		return
	}

	if c.alert != "" && len(presses) > 0 {
		c.alert = ""
		c.painter.Invalidate()
		presses = presses[1:]
	}

	for _, p := range presses {
		if p.Key == input.KeyInterrupt {
			c.running = false
			return
		}
	}

	if c.view == ViewPlaying {
		for _, p := range presses {
			if quits(p) {
				c.running = false
				return
			}
		}
		c.pipeline.Apply(c.tracker.Update(presses, now)...)
		return
	}

	for _, p := range presses {
		if !c.running || c.alert != "" {
			return
		}
		switch c.view {
		case ViewBrowser:
			c.handleBrowser(p)
		case ViewJoining:
			// The server does not answer a join it rejects.
			switch {
			case p.Key == input.KeyEscape || p.Key == input.KeyTab:
				c.logger.Info("join abandoned", zap.String("room_id", c.session.RoomID))
				c.abortJoin()
				c.view = c.currentView()
			case isRune(p, 'q'):
				c.running = false
			}
		case ViewWaiting:
			switch {
			case quits(p):
				c.running = false
			case isRune(p, 'r'):
				c.publish(protocol.DestReady, protocol.Empty{})
			case isRune(p, 's'):
				c.publish(protocol.DestStart, protocol.Empty{})
			}
		case ViewResults:
			switch {
			case quits(p):
				c.running = false
			case p.Key == input.KeyEnter:
				c.restart()
				return
			}
		}
	}
}

func (c *Client) handleBrowser(p input.Press) {
	switch c.form.Handle(p) {
	case screen.ActionQuit:
		c.running = false
	case screen.ActionCreate:
		c.createRoom()
	case screen.ActionJoin:
		c.joinRoom()
	}
}

func (c *Client) createRoom() {
	c.session.ClearRoom()
	req, err := c.session.PrepareCreate(c.form.Name)
	if err != nil {
		c.showAlert(err)
		return
	}
	c.machine.SetLocalName(req.PlayerName)
	c.joining = true
	c.logger.Info("creating room", zap.String("player", req.PlayerName))
	c.connect(func() {
		c.publish(protocol.DestCreate, req)
	})
}

func (c *Client) joinRoom() {
	req, err := c.session.PrepareJoin(c.form.Name, c.form.Code)
	if err != nil {
		c.showAlert(err)
		return
	}
	c.machine.SetLocalName(req.PlayerName)
	c.joining = true
	c.logger.Info("joining room", zap.String("player", req.PlayerName), zap.String("room_id", req.RoomID))
	c.connect(func() {
		c.enterRoom(req.RoomID)
		c.publish(protocol.DestJoin, req)
	})
}

// connect runs action now if connected, otherwise once the connection is
// ready. A failed connect drops the queued actions; the next action that
// needs the network tries again.
func (c *Client) connect(action func()) {
	if c.adapter.Connected() {
		if action != nil {
			action()
		}
		return
	}
	if action != nil {
		c.pending = append(c.pending, action)
	}
	if c.session.Status == session.Connecting {
		return
	}
	c.session.Status = session.Connecting
	if err := c.adapter.Connect(c.ctx, c.onReady); err != nil {
		c.logger.Warn("connect", zap.Error(err))
		c.session.Status = session.Disconnected
		c.abortJoin()
	}
}

// abortJoin forgets a create or join that never reached the server.
func (c *Client) abortJoin() {
	c.pending = nil
	if c.joining {
		c.joining = false
		c.session.ClearRoom()
	}
}

func (c *Client) onReady() {
	c.session.Status = session.Connected
	pending := c.pending
	c.pending = nil
	for _, action := range pending {
		action()
	}
}

// enterRoom subscribes to the room's snapshots.
func (c *Client) enterRoom(roomID string) {
	c.session.RoomID = roomID
	if err := c.adapter.SubscribeRoom(roomID); err != nil {
		c.logger.Warn("subscribe room", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (c *Client) onEnded() {
	c.adapter.Disconnect()
	c.session.Status = session.Closed
}

// publish sends a message without waiting for or retrying anything.
func (c *Client) publish(dest string, payload any) {
	if err := c.adapter.Publish(dest, payload); err != nil {
		c.logger.Warn("publish failed", zap.String("destination", dest), zap.Error(err))
	}
}

func (c *Client) sendIntent(intent protocol.InputIntent) {
	c.logger.Debug("move", zap.Bool("left", intent.MovingLeft), zap.Bool("right", intent.MovingRight))
	c.publish(protocol.DestMove, intent)
}

func (c *Client) showAlert(err error) {
	c.alert = err.Error()
	c.painter.Invalidate()
	c.logger.Debug("alert", zap.Error(err))
}

// fetchLeaderboard loads the leaderboard in the background. The result is
// picked up by processEvents.
func (c *Client) fetchLeaderboard() {
	ctx := c.ctx
	c.group.Go(func() error {
		entries, ok := c.board.Load(ctx)
		if !ok {
			return nil
		}
		select {
		case c.boards <- entries:
		case <-ctx.Done():
		}
		return nil
	})
}

// processEvents drains server events and leaderboard results.
func (c *Client) processEvents(now time.Time) {
	for {
		select {
		case ev := <-c.adapter.Events():
			c.handleEvent(ev, now)
		case entries := <-c.boards:
			c.session.Leaderboard = entries
		default:
			return
		}
	}
}

func (c *Client) handleEvent(ev transport.Event, now time.Time) {
	if !c.adapter.Current(ev) {
		c.logger.Debug("dropping stale event", zap.Stringer("kind", ev.Kind))
		return
	}
	switch ev.Kind {
	case transport.EventReady:
		if ev.Ready != nil {
			ev.Ready()
		}
	case transport.EventConnectFailed:
		c.session.Status = session.Disconnected
		c.abortJoin()
	case transport.EventLost:
		c.logger.Warn("connection lost", zap.Error(ev.Err))
		c.session.Status = session.Disconnected
		c.abortJoin()
	case transport.EventRooms:
		c.session.Rooms = ev.Rooms
		c.form.SetRooms(lobby.RoomList(ev.Rooms))
	case transport.EventRoomCreated:
		if !c.joining || c.session.RoomID != "" {
			return
		}
		c.enterRoom(ev.Room.RoomID)
		snap := &protocol.RoomSnapshot{RoomID: ev.Room.RoomID, GameState: ev.Room.GameState, Players: ev.Room.Players}
		c.applySnapshot(snap, now)
	case transport.EventSnapshot:
		if c.session.RoomID == "" || ev.Snapshot.RoomID != c.session.RoomID {
			return
		}
		c.applySnapshot(ev.Snapshot, now)
	}
}

func (c *Client) applySnapshot(snap *protocol.RoomSnapshot, now time.Time) {
	if c.machine.State() == room.Ended {
		return
	}
	c.session.SetSnapshot(snap)
	t, changed := c.machine.Apply(snap, now)
	if !changed {
		return
	}
	c.joining = false
	if t.From == room.Playing {
		c.tracker.Release()
		c.pipeline.Reset()
	}
}

// updateScreen handles terminal resize, clamping to max render resolution.
// On actual size changes, clears the terminal to remove residual pixels
// outside the new canvas area.
func (c *Client) updateScreen() {
	termWidth, termHeight, err := c.termSizeFunc.Size()
	if err != nil {
		return
	}
	renderWidth, renderHeight, offsetCol, offsetRow := clampTermSize(termWidth, termHeight)

	if termWidth != c.termWidth || termHeight != c.termHeight {
		c.cw.Clear()
		c.canvas.ForceRedraw()
		c.painter.Invalidate()
	}
	c.termWidth, c.termHeight = termWidth, termHeight
	c.canvas.Resize(renderWidth, renderHeight)
	c.canvas.SetOffset(offsetCol, offsetRow)
}
