package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockHandler implements TransportHandler for testing
type mockHandler struct {
	onOpenCalls  int32
	onCloseCalls int32
	messages     chan []byte
	closed       chan error
}

func newMockHandler() *mockHandler {
	return &mockHandler{
		messages: make(chan []byte, 16),
		closed:   make(chan error, 1),
	}
}

func (m *mockHandler) OnOpen(ctx context.Context) {
	atomic.AddInt32(&m.onOpenCalls, 1)
}

func (m *mockHandler) OnMessage(ctx context.Context, msg []byte) {
	m.messages <- append([]byte(nil), msg...)
}

func (m *mockHandler) OnClose(err error) {
	atomic.AddInt32(&m.onCloseCalls, 1)
	select {
	case m.closed <- err:
	default:
	}
}

// createMockWSServer creates a test WebSocket server
func createMockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

// httpToWS converts http:// URL to ws://
func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func TestSocketTransport_OpenAndReceive(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"msg_type":"tick"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	handler := newMockHandler()
	tr := NewSocketTransport(httpToWS(server.URL), handler)
	tr.ReadTimeout = 500 * time.Millisecond

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	select {
	case msg := <-handler.messages:
		if string(msg) != `{"msg_type":"tick"}` {
			t.Errorf("unexpected frame: %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	if atomic.LoadInt32(&handler.onOpenCalls) != 1 {
		t.Error("OnOpen was not called exactly once")
	}
}

func TestSocketTransport_SendBeforeOpen(t *testing.T) {
	handler := newMockHandler()
	tr := NewSocketTransport("ws://127.0.0.1:1/never", handler)

	if err := tr.Send([]byte("hello")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSocketTransport_Send(t *testing.T) {
	received := make(chan []byte, 1)
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	handler := newMockHandler()
	tr := NewSocketTransport(httpToWS(server.URL), handler)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	frame := []byte(`{"ticks":"R_100","subscribe":1}`)
	if err := tr.Send(frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != string(frame) {
			t.Errorf("expected %s, got %s", frame, msg)
		}
	case <-time.After(time.Second):
		t.Error("server did not receive frame")
	}
}

func TestSocketTransport_ServerCloseReported(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		// Close immediately; the transport must report it exactly once.
	})
	defer server.Close()

	handler := newMockHandler()
	tr := NewSocketTransport(httpToWS(server.URL), handler)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	select {
	case <-handler.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not reported")
	}
	if n := atomic.LoadInt32(&handler.onCloseCalls); n != 1 {
		t.Errorf("OnClose calls = %d; want 1", n)
	}

	// The transport can be reopened after a close (session reconnect path).
	server2 := createMockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server2.Close()

	tr2 := NewSocketTransport(httpToWS(server2.URL), handler)
	if err := tr2.Open(context.Background()); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	tr2.Close()
}

func TestSocketTransport_DoubleOpenRejected(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	handler := newMockHandler()
	tr := NewSocketTransport(httpToWS(server.URL), handler)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Open(context.Background()); err == nil {
		t.Error("second Open on a live socket should fail")
	}
}
