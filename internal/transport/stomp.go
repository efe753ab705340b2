package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

// maxFrameSize bounds a single inbound WebSocket message. Room snapshots with
// a full stair list stay far below it.
const maxFrameSize = 1 << 20

// receiptTimeout bounds the wait for UNSUBSCRIBE and DISCONNECT receipts
// during teardown.
const receiptTimeout = 2 * time.Second

// StompDialer connects to a STOMP broker exposed on a raw WebSocket endpoint.
type StompDialer struct {
	URL    string // ws:// or wss:// endpoint
	Logger *zap.Logger
}

// Dial opens the WebSocket and performs the STOMP handshake. Cancelling ctx
// aborts a pending handshake.
func (d StompDialer) Dial(ctx context.Context) (Broker, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}

	ws, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		Subprotocols: []string{"v12.stomp", "v11.stomp", "v10.stomp"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	ws.SetReadLimit(maxFrameSize)

	// The net.Conn outlives the dial context; Disconnect closes it.
	nc := websocket.NetConn(context.Background(), ws, websocket.MessageText)
	stop := context.AfterFunc(ctx, func() { _ = nc.Close() })
	defer stop()

	sc, err := handshake(nc, u.Hostname(), d.Logger)
	if err != nil {
		_ = nc.Close()
		return nil, fmt.Errorf("stomp handshake: %w", err)
	}
	return &stompBroker{conn: sc}, nil
}

// handshake performs the STOMP CONNECT exchange on an open connection.
// go-stomp logs to stderr unless given a logger, which would draw over the
// game screen, so its output goes through zap.
func handshake(rwc io.ReadWriteCloser, host string, logger *zap.Logger) (*stomp.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return stomp.Connect(rwc,
		stomp.ConnOpt.Host(host),
		stomp.ConnOpt.Logger(stompLogger{logger.Named("stomp").Sugar()}),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(receiptTimeout),
		stomp.ConnOpt.DisconnectReceiptTimeout(receiptTimeout),
	)
}

// stompLogger adapts zap to stomp.Logger.
type stompLogger struct {
	s *zap.SugaredLogger
}

var _ stomp.Logger = stompLogger{}

func (l stompLogger) Debugf(format string, v ...interface{})   { l.s.Debugf(format, v...) }
func (l stompLogger) Infof(format string, v ...interface{})    { l.s.Infof(format, v...) }
func (l stompLogger) Warningf(format string, v ...interface{}) { l.s.Warnf(format, v...) }
func (l stompLogger) Errorf(format string, v ...interface{})   { l.s.Errorf(format, v...) }
func (l stompLogger) Debug(msg string)                         { l.s.Debug(msg) }
func (l stompLogger) Info(msg string)                          { l.s.Info(msg) }
func (l stompLogger) Warning(msg string)                       { l.s.Warn(msg) }
func (l stompLogger) Error(msg string)                         { l.s.Error(msg) }

type stompBroker struct {
	conn *stomp.Conn
}

func (b *stompBroker) Subscribe(destination string) (Subscription, error) {
	sub, err := b.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, err
	}
	s := &stompSubscription{sub: sub, out: make(chan Message, 16)}
	go s.forward()
	return s, nil
}

func (b *stompBroker) Send(destination string, body []byte) error {
	return b.conn.Send(destination, jsonContentType, body)
}

func (b *stompBroker) Disconnect() error {
	return b.conn.Disconnect()
}

type stompSubscription struct {
	sub *stomp.Subscription
	out chan Message
}

func (s *stompSubscription) Messages() <-chan Message {
	return s.out
}

func (s *stompSubscription) Unsubscribe() error {
	if !s.sub.Active() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// forward copies frames until the STOMP subscription channel closes.
func (s *stompSubscription) forward() {
	defer close(s.out)
	for m := range s.sub.C {
		if m == nil {
			continue
		}
		if m.Err != nil {
			s.out <- Message{Err: m.Err}
			continue
		}
		s.out <- Message{Body: m.Body}
	}
}
