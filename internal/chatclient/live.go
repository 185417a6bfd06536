package chatclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"pinchat/backend/internal/config"
	"pinchat/backend/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrLiveClosed is returned by Emit after the live connection is gone.
var ErrLiveClosed = errors.New("live channel closed")

// Handler receives outbound server events.
type Handler func(ev protocol.Outbound)

// LiveConn is the client end of the live channel.
type LiveConn struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers []Handler
	onClose  []func(error)
	closed   bool
	done     chan struct{}
}

// DialLive opens the live channel at baseURL (http or ws scheme) for the
// holder of token.
func DialLive(baseURL, token string, log *zap.Logger) (*LiveConn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	endpoint, err := liveURL(baseURL, token)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout
	conn, resp, err := dialer.Dial(endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live channel: %w", err)
	}

	return &LiveConn{
		conn: conn,
		log:  log,
		done: make(chan struct{}),
	}, nil
}

func liveURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// OnEvent registers h for every outbound event. Register handlers before
// calling Listen.
func (l *LiveConn) OnEvent(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// OnClose registers f to run once when the connection ends.
func (l *LiveConn) OnClose(f func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClose = append(l.onClose, f)
}

// Listen starts the reader goroutine.
func (l *LiveConn) Listen() {
	go l.readLoop()
}

// Done is closed when the reader stops.
func (l *LiveConn) Done() <-chan struct{} {
	return l.done
}

func (l *LiveConn) readLoop() {
	var cause error
	defer func() {
		l.mu.Lock()
		l.closed = true
		callbacks := l.onClose
		l.mu.Unlock()
		l.conn.Close()
		close(l.done)
		for _, f := range callbacks {
			f(cause)
		}
	}()

	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cause = err
			}
			return
		}

		ev, err := protocol.DecodeOutbound(raw)
		if err != nil {
			l.log.Debug("ignoring server frame", zap.Error(err))
			continue
		}

		l.mu.Lock()
		handlers := l.handlers
		l.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

// Emit sends one inbound event. Writes are serialized.
func (l *LiveConn) Emit(ev protocol.Inbound) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLiveClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Kind(), err)
	}
	return nil
}

// Close sends a close frame and waits briefly for the reader to stop.
func (l *LiveConn) Close() error {
	l.writeMu.Lock()
	err := l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(config.WriteWait))
	l.writeMu.Unlock()

	select {
	case <-l.done:
	case <-time.After(time.Second):
		l.conn.Close()
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
