// Package testhelpers provides common utilities for testing the relay.
//
// It starts relays on httptest servers, dials WebSocket peers, and offers
// assertions for what a peer did or did not receive.
package testhelpers

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StartRelay starts a relay behind an httptest server. customize may adjust
// the configuration before the relay is built. Both are torn down when the
// test ends.
func StartRelay(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.Logger = DiscardLogger()
	if customize != nil {
		customize(cfg)
	}

	relay := server.New(cfg)
	ts := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		_ = relay.Hub().Shutdown(DefaultTimeout)
		ts.Close()
	})
	return relay, ts
}

// WebSocketURL converts an http:// test server URL to its ws:// form.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/"
}

// ConnectWebSocket dials url with an optional Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ConnectPeers dials n peers against url and waits until the hub has
// registered all of them.
func ConnectPeers(t *testing.T, relay *server.Server, url string, n int) []*websocket.Conn {
	t.Helper()

	base := relay.Hub().Count()
	conns := make([]*websocket.Conn, n)
	for i := range conns {
		conn, err := ConnectWebSocket(url, "")
		if err != nil {
			t.Fatalf("Failed to connect peer %d: %v", i, err)
		}
		conns[i] = conn
		t.Cleanup(func() { _ = conn.Close() })
	}

	WaitForPeers(t, relay.Hub(), base+n)
	return conns
}

// PeerID returns the identity the relay assigns to conn.
func PeerID(conn *websocket.Conn) string {
	return conn.LocalAddr().String()
}

// SendText writes a text frame.
func SendText(conn *websocket.Conn, text string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ReceiveText reads the next frame and fails the test unless it is a text
// frame that arrives within DefaultTimeout.
func ReceiveText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to receive message: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("Expected text frame, got type %d", messageType)
	}
	return string(payload)
}

// ExpectText receives the next message and compares it with want.
func ExpectText(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	if got := ReceiveText(t, conn); got != want {
		t.Errorf("Expected message %q, got %q", want, got)
	}
}

// ExpectNoMessage fails the test if conn receives a data frame within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %q", payload)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// CloseWebSocket sends a normal-closure frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitForPeers polls until hub has exactly want registered peers.
func WaitForPeers(t *testing.T, hub *server.Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d registered peers, have %d", want, hub.Count())
}
