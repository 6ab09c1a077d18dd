package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

const testOrigin = "http://localhost:8080"

// testConfig returns a config with a generous rate limit and short
// keepalive so tests neither get throttled nor hang on teardown.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.RequireAuth = false
	cfg.SendBufferSize = 16
	cfg.RateLimit = RateLimitConfig{Burst: 1000, RefillInterval: time.Millisecond}
	cfg.PersistTimeout = time.Second
	cfg.AllowedOrigins = []string{testOrigin}
	return cfg
}

func newTestConnection(room, user string, cfg Config) *Connection {
	return NewConnection(room, chat.Identity{Name: user}, "test", cfg, zerolog.Nop())
}

// joinedConnection creates a connection joined to room in registry.
func joinedConnection(t *testing.T, registry *Registry, room, user string, cfg Config) *Connection {
	t.Helper()
	c := newTestConnection(room, user, cfg)
	require.NoError(t, registry.Join(room, c))
	require.True(t, c.markJoined())
	return c
}

// drain returns every payload currently queued on c without blocking.
func drain(c *Connection) []string {
	var out []string
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, string(payload))
		default:
			return out
		}
	}
}

type testServer struct {
	*httptest.Server
	supervisor *Supervisor
}

// startTestServer runs the full HTTP surface against the given collaborators.
func startTestServer(t *testing.T, cfg Config, auth chat.Authenticator, persister chat.Persister, rooms chat.RoomBook) *testServer {
	t.Helper()

	log := zerolog.Nop()
	registry := NewRegistry(log)
	sup := NewSupervisor(cfg, registry, auth, persister, rooms, log)
	srv := NewServer(cfg, sup, auth, log)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
		ts.Close()
	})
	return &testServer{Server: ts, supervisor: sup}
}

// wsURL maps path, which may carry a query string, onto the test server.
func (ts *testServer) wsURL(t *testing.T, path string) string {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path, u.RawQuery, _ = strings.Cut(path, "?")
	return u.String()
}

// dial opens a WebSocket to path with an allowed Origin header.
func (ts *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ws, resp, err := ts.dialWithOrigin(t, path, testOrigin)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (ts *testServer) dialWithOrigin(t *testing.T, path, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(ts.wsURL(t, path), headers)
}

func sendJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// readJSON reads one frame and decodes it as an object.
func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "frame %q", raw)
	return out
}

// expectNoMessage fails if a frame arrives on ws within d.
func expectNoMessage(t *testing.T, ws *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(d)))
	_, raw, err := ws.ReadMessage()
	require.Error(t, err, "unexpected frame %q", raw)
}

// waitForMembers blocks until room has n members.
func waitForMembers(t *testing.T, registry *Registry, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(registry.Members(room)) == n
	}, 2*time.Second, 10*time.Millisecond)
}
