package infra

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send when no socket is open.
var ErrNotConnected = errors.New("transport not connected")

// TransportHandler receives socket lifecycle callbacks. OnMessage and
// OnClose are invoked from the transport's read goroutine, one at a time,
// in arrival order.
type TransportHandler interface {
	OnOpen(ctx context.Context)
	OnMessage(ctx context.Context, msg []byte)
	OnClose(err error)
}

// Transport owns exactly one bidirectional socket. It knows nothing about
// message semantics and carries no retry logic: a closed socket is reported
// through OnClose and the owner decides what happens next.
type Transport interface {
	Open(ctx context.Context) error
	Send(msg []byte) error
	Close()
}

// SocketTransport is the websocket Transport. Writes are serialized under
// writeMu; the connection pointer is guarded by mu so sends racing a close
// observe either a live socket or ErrNotConnected.
type SocketTransport struct {
	url     string
	handler TransportHandler

	mu         sync.RWMutex
	conn       *websocket.Conn
	gen        uint64 // bumps on every Open, stale read loops exit quietly
	pingCancel context.CancelFunc

	writeMu sync.Mutex

	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

// NewSocketTransport creates a transport for the given endpoint.
func NewSocketTransport(url string, handler TransportHandler) *SocketTransport {
	return &SocketTransport{
		url:              url,
		handler:          handler,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Open dials the endpoint and starts the read loop. Calling Open on a
// transport whose previous socket closed is how the owner reconnects.
func (t *SocketTransport) Open(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.HandshakeTimeout}
	header := make(http.Header)
	header.Set("User-Agent", GetUserAgent())

	conn, _, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.conn != nil {
		// A socket is already live; one socket per transport.
		t.mu.Unlock()
		conn.Close()
		return errors.New("transport already open")
	}
	t.conn = conn
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		return nil
	})

	t.handler.OnOpen(ctx)

	if t.PingInterval > 0 {
		pingCtx, cancel := context.WithCancel(ctx)
		t.mu.Lock()
		t.pingCancel = cancel
		t.mu.Unlock()
		go t.pingLoop(pingCtx, conn)
	}

	go t.readLoop(ctx, conn, gen)

	slog.Info("socket connected", "url", t.url)
	return nil
}

func (t *SocketTransport) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			stale := t.gen != gen || t.conn != conn
			var cancel context.CancelFunc
			if !stale {
				t.conn = nil
				cancel, t.pingCancel = t.pingCancel, nil
			}
			t.mu.Unlock()
			if stale {
				return
			}
			if cancel != nil {
				cancel()
			}
			conn.Close()
			t.handler.OnClose(err)
			return
		}
		t.handler.OnMessage(ctx, msg)
	}
}

func (t *SocketTransport) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				slog.Warn("socket ping failed", "url", t.url, "err", err)
				return
			}
		}
	}
}

// Send writes one text frame. Fails with ErrNotConnected when no socket is
// open; callers gate on session state, so a drop here is not an event.
func (t *SocketTransport) Send(msg []byte) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Close tears the socket down. The read loop observes the closed socket and
// reports OnClose like any other closure; owners that initiated the close
// are expected to ignore it.
func (t *SocketTransport) Close() {
	t.mu.Lock()
	conn := t.conn
	cancel := t.pingCancel
	t.pingCancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}
