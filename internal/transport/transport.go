// Package transport connects the client to the game server's publish/subscribe
// broker and turns inbound messages into typed events for the client loop.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tomz197/officeescape/internal/protocol"
)

var (
	// ErrNotConnected is returned when publishing or subscribing without a connection.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrClosed is returned after Disconnect; a closed adapter never reconnects.
	ErrClosed = errors.New("transport: closed")
)

// Message is one inbound frame body, or the error that ended a subscription.
type Message struct {
	Body []byte
	Err  error
}

// Subscription is a live subscription to one destination.
// Messages is closed when the subscription ends.
type Subscription interface {
	Messages() <-chan Message
	Unsubscribe() error
}

// Broker is an established connection to the message broker.
type Broker interface {
	Subscribe(destination string) (Subscription, error)
	Send(destination string, body []byte) error
	Disconnect() error
}

// Dialer establishes broker connections.
type Dialer interface {
	Dial(ctx context.Context) (Broker, error)
}

// EventKind identifies the type of inbound event.
type EventKind int

const (
	EventReady         EventKind = iota // Connect finished; run Event.Ready on the client loop
	EventConnectFailed                  // Connect failed; no retry is scheduled
	EventRooms                          // Full open-room list (lobby broadcast or initial pull)
	EventRoomCreated                    // Private reply to a create request
	EventSnapshot                       // Snapshot of the joined room
	EventLost                           // The connection dropped without Disconnect
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventConnectFailed:
		return "connect_failed"
	case EventRooms:
		return "rooms"
	case EventRoomCreated:
		return "room_created"
	case EventSnapshot:
		return "snapshot"
	case EventLost:
		return "lost"
	}
	return "unknown"
}

// Event is delivered to the client loop through Adapter.Events.
type Event struct {
	Kind     EventKind
	Gen      uint64 // Connection generation the event belongs to
	Rooms    []protocol.RoomSummary
	Room     *protocol.RoomSummary
	Snapshot *protocol.RoomSnapshot
	Ready    func()
	Err      error
}

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// conn is one established broker connection and its subscriptions.
type conn struct {
	gen    uint64
	broker Broker
	subs   map[string]Subscription
	done   chan struct{}
	lost   sync.Once
}

// Adapter wraps a single broker connection with a per-client inbox.
// Inbound messages are decoded on pump goroutines and handed to the client
// loop through a channel, so all session state stays on one goroutine.
type Adapter struct {
	dialer   Dialer
	clientID string
	logger   *zap.Logger
	events   chan Event

	mu    sync.Mutex
	state connState
	gen   uint64
	conn  *conn
	wg    sync.WaitGroup
}

// NewAdapter creates an adapter for the given client id.
func NewAdapter(d Dialer, clientID string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		dialer:   d,
		clientID: clientID,
		logger:   logger.Named("transport"),
		events:   make(chan Event, 64),
	}
}

// Events returns the inbound event stream.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Connected reports whether a connection is established.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == stateConnected
}

// Current reports whether ev belongs to the live connection. Events of a
// disconnected or replaced connection must be dropped by the caller.
func (a *Adapter) Current(ev Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != stateClosed && ev.Gen == a.gen
}

// Connect establishes the connection in the background. On success it
// subscribes the private inbox, the lobby broadcast and the initial lobby
// pull, then delivers an EventReady carrying onReady. A failure delivers
// EventConnectFailed and leaves the adapter idle; nothing is retried.
// Calling Connect while connecting or connected is a no-op.
func (a *Adapter) Connect(ctx context.Context, onReady func()) error {
	a.mu.Lock()
	switch a.state {
	case stateClosed:
		a.mu.Unlock()
		return ErrClosed
	case stateConnecting, stateConnected:
		a.mu.Unlock()
		return nil
	}
	a.state = stateConnecting
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.establish(ctx, gen, onReady)
	}()
	return nil
}

func (a *Adapter) establish(ctx context.Context, gen uint64, onReady func()) {
	broker, err := a.dialer.Dial(ctx)
	if err != nil {
		a.fail(ctx, gen, fmt.Errorf("connect: %w", err))
		return
	}

	c := &conn{
		gen:    gen,
		broker: broker,
		subs:   make(map[string]Subscription),
		done:   make(chan struct{}),
	}

	a.mu.Lock()
	if a.state != stateConnecting || a.gen != gen {
		// Disconnected while dialing.
		a.mu.Unlock()
		_ = broker.Disconnect()
		return
	}
	a.conn = c
	err = a.subscribeLocked(c, protocol.PrivateTopic(a.clientID), a.decodePrivate)
	if err == nil {
		err = a.subscribeLocked(c, protocol.TopicLobby, decodeRooms)
	}
	if err == nil {
		err = a.subscribeLocked(c, protocol.DestLobby, decodeRooms)
	}
	if err != nil {
		a.detachLocked()
		a.state = stateIdle
		a.mu.Unlock()
		a.closeConn(c)
		a.fail(ctx, gen, err)
		return
	}
	a.state = stateConnected
	a.mu.Unlock()

	a.logger.Info("connected", zap.String("client_id", a.clientID), zap.Uint64("gen", gen))
	a.deliver(c, Event{Kind: EventReady, Ready: onReady})
}

func (a *Adapter) fail(ctx context.Context, gen uint64, err error) {
	a.mu.Lock()
	if a.gen == gen && a.state == stateConnecting {
		a.state = stateIdle
	}
	a.mu.Unlock()

	a.logger.Warn("connect failed", zap.Error(err))
	select {
	case <-ctx.Done():
	case a.events <- Event{Kind: EventConnectFailed, Gen: gen, Err: err}:
	}
}

// Publish sends payload as JSON to an application destination.
// Nothing is acknowledged or retried.
func (a *Adapter) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", destination, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateClosed {
		return ErrClosed
	}
	if a.state != stateConnected {
		return ErrNotConnected
	}
	if err := a.conn.broker.Send(destination, body); err != nil {
		return fmt.Errorf("publish %s: %w", destination, err)
	}
	return nil
}

// SubscribeRoom subscribes to a room's snapshot channel. Subscribing to a
// room that is already subscribed does nothing.
func (a *Adapter) SubscribeRoom(roomID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateClosed {
		return ErrClosed
	}
	if a.state != stateConnected {
		return ErrNotConnected
	}
	return a.subscribeLocked(a.conn, protocol.RoomTopic(roomID), decodeSnapshot)
}

// Subscribed reports whether destination has a live subscription.
func (a *Adapter) Subscribed(destination string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return false
	}
	_, ok := a.conn.subs[destination]
	return ok
}

// Disconnect closes the connection for good. No further inbound message is
// delivered once it returns. Unsubscribing and closing the broker wait on
// server receipts, so they finish in the background; Wait covers them.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return
	}
	a.state = stateClosed
	a.gen++
	c := a.detachLocked()
	a.mu.Unlock()
	a.goClose(c)
	a.logger.Info("disconnected", zap.String("client_id", a.clientID))
}

// Wait blocks until all background goroutines have exited.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

func (a *Adapter) subscribeLocked(c *conn, destination string, decode decodeFunc) error {
	if _, ok := c.subs[destination]; ok {
		return nil
	}
	sub, err := c.broker.Subscribe(destination)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", destination, err)
	}
	c.subs[destination] = sub

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pump(c, destination, sub, decode)
	}()
	return nil
}

// detachLocked forgets the live connection and stops event delivery for it.
func (a *Adapter) detachLocked() *conn {
	c := a.conn
	if c == nil {
		return nil
	}
	a.conn = nil
	close(c.done)
	return c
}

func (a *Adapter) goClose(c *conn) {
	if c == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.closeConn(c)
	}()
}

// closeConn cancels the subscriptions of a detached connection and closes it.
// It must not run under a.mu: subscriptions drain through the pumps.
func (a *Adapter) closeConn(c *conn) {
	if c == nil {
		return
	}
	for dest, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			a.logger.Debug("unsubscribe", zap.String("destination", dest), zap.Error(err))
		}
	}
	if err := c.broker.Disconnect(); err != nil {
		a.logger.Debug("broker disconnect", zap.Error(err))
	}
}

// pump decodes messages of one subscription until its channel closes.
func (a *Adapter) pump(c *conn, destination string, sub Subscription, decode decodeFunc) {
	for msg := range sub.Messages() {
		if msg.Err != nil {
			a.logger.Warn("subscription error", zap.String("destination", destination), zap.Error(msg.Err))
			a.markLost(c, msg.Err)
			continue
		}
		ev, ok, err := decode(msg.Body)
		if err != nil {
			a.logger.Warn("malformed message", zap.String("destination", destination), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		a.deliver(c, ev)
	}
}

func (a *Adapter) markLost(c *conn, err error) {
	c.lost.Do(func() {
		a.mu.Lock()
		live := a.conn == c && a.state == stateConnected
		if live {
			a.detachLocked()
			a.state = stateIdle
		}
		a.mu.Unlock()
		if live {
			a.deliver(c, Event{Kind: EventLost, Err: err})
			a.goClose(c)
		}
	})
}

// deliver hands ev to the client loop unless the connection is gone.
func (a *Adapter) deliver(c *conn, ev Event) {
	ev.Gen = c.gen
	if ev.Kind == EventLost {
		select {
		case a.events <- ev:
		default:
		}
		return
	}
	select {
	case <-c.done:
	case a.events <- ev:
	}
}

type decodeFunc func(body []byte) (Event, bool, error)

func (a *Adapter) decodePrivate(body []byte) (Event, bool, error) {
	var env protocol.PrivateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, false, err
	}
	if env.Type != protocol.EnvelopeRoomCreated || env.Room == nil {
		a.logger.Debug("ignoring private message", zap.String("type", env.Type))
		return Event{}, false, nil
	}
	return Event{Kind: EventRoomCreated, Room: env.Room}, true, nil
}

func decodeRooms(body []byte) (Event, bool, error) {
	var rooms []protocol.RoomSummary
	if err := json.Unmarshal(body, &rooms); err != nil {
		return Event{}, false, err
	}
	return Event{Kind: EventRooms, Rooms: rooms}, true, nil
}

func decodeSnapshot(body []byte) (Event, bool, error) {
	var snap protocol.RoomSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Event{}, false, err
	}
	return Event{Kind: EventSnapshot, Snapshot: &snap}, true, nil
}
