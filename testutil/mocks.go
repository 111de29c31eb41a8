package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// MockRelayServer is a test websocket server that stands in for the LIVE
// event relay. Frames queued with Send are delivered to the next connected
// client in order.
type MockRelayServer struct {
	*httptest.Server
	frames chan []byte
	// RejectAuth makes the server answer 401 instead of upgrading.
	RejectAuth bool
}

// NewMockRelayServer starts a relay stub. Close is registered as a cleanup.
func NewMockRelayServer(t *testing.T) *MockRelayServer {
	t.Helper()
	m := &MockRelayServer{frames: make(chan []byte, 64)}
	upgrader := websocket.Upgrader{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.RejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for frame := range m.frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		// Channel closed: shut the connection down cleanly.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(m.Close)
	return m
}

// URL returns the ws:// endpoint of the stub.
func (m *MockRelayServer) URL() string {
	return "ws" + strings.TrimPrefix(m.Server.URL, "http")
}

// Send queues a frame for delivery to the connected client.
func (m *MockRelayServer) Send(frame []byte) { m.frames <- frame }

// Finish closes the frame queue, ending the relay session.
func (m *MockRelayServer) Finish() { close(m.frames) }
