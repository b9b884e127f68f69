package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/lanchat/internal/registry"
)

const readTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wireFrame is an outbound envelope with its payload left raw.
type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// recorder is a router.Dispatcher that keeps every frame it is handed.
type recorder struct {
	mu     sync.Mutex
	frames map[string][]wireFrame
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[string][]wireFrame)}
}

func (r *recorder) Deliver(connID string, frame []byte) bool {
	var f wireFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[connID] = append(r.frames[connID], f)
	return true
}

func (r *recorder) of(connID string) []wireFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wireFrame(nil), r.frames[connID]...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[string][]wireFrame)
}

func decodeRoster(t *testing.T, f wireFrame) []registry.Identity {
	t.Helper()
	require.Equal(t, "roster-update", f.Type)
	var roster []registry.Identity
	require.NoError(t, json.Unmarshal(f.Payload, &roster))
	return roster
}

func decodeGroup(t *testing.T, f wireFrame) registry.Group {
	t.Helper()
	require.Equal(t, "group-update", f.Type)
	var g registry.Group
	require.NoError(t, json.Unmarshal(f.Payload, &g))
	return g
}

func rosterNames(roster []registry.Identity) []string {
	names := make([]string, 0, len(roster))
	for _, id := range roster {
		names = append(names, id.Name)
	}
	return names
}

// testServer is a running Server behind an httptest listener.
type testServer struct {
	*Server
	base *httptest.Server
}

func newTestServer(t *testing.T, customize func(cfg *Config)) *testServer {
	t.Helper()

	cfg := *NewConfig()
	cfg.UploadDir = t.TempDir()
	if customize != nil {
		customize(&cfg)
	}

	srv, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	srv.StartHub()

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(time.Second)
	})
	return &testServer{Server: srv, base: ts}
}

func (ts *testServer) wsURL(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(ts.base.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

func originHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// dial opens a WebSocket with an allowed origin and consumes the roster
// update announcing the new connection.
func (ts *testServer) dial(t *testing.T) (*websocket.Conn, []registry.Identity) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(t), originHeader("http://localhost:8080"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return conn, decodeRoster(t, readFrame(t, conn))
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(InboundFrame{Type: eventType, Payload: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wireFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readUntil skips frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wireFrame {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if f.Type == eventType {
			return f
		}
	}
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}
