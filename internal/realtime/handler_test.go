package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/appointment-notifications/internal/auth"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	registry := NewRegistry()
	h := NewHandler(auth.NewJWTVerifier(testSecret), registry, HandlerConfig{
		SendBuffer:     4,
		PingInterval:   time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, zap.NewNop()) // handler goroutines can outlive the test after the client hangs up

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, registry
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func token(t *testing.T, p auth.Principal) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, p, time.Hour)
	require.NoError(t, err)
	return tok
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandler_RejectsBeforeRegistering(t *testing.T) {
	srv, registry := newTestServer(t)

	tests := []struct {
		name   string
		header http.Header
	}{
		{"no credential", nil},
		{"garbage", http.Header{"Authorization": {"Bearer not-a-jwt"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), tt.header)
			if conn != nil {
				conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			users, channels := registry.Stats()
			assert.Zero(t, users)
			assert.Zero(t, channels)
		})
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	srv, registry := newTestServer(t)

	header := http.Header{
		"Authorization": {"Bearer " + token(t, auth.Principal{ID: 3, Role: auth.RolePatient})},
		"Origin":        {"http://evil.example"},
	}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	users, _ := registry.Stats()
	assert.Zero(t, users)
}

func TestHandler_JoinDeliverLeave(t *testing.T) {
	srv, registry := newTestServer(t)
	patient := auth.Principal{ID: 3, Role: auth.RolePatient}

	header := http.Header{"Authorization": {"Bearer " + token(t, patient)}}
	tab1, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer tab1.Close()

	// browsers pass the credential in the query string
	tab2, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token(t, patient), nil)
	require.NoError(t, err)
	defer tab2.Close()

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		frame := readFrame(t, conn)
		assert.JSONEq(t, `"ready"`, string(frame["type"]))
		assert.JSONEq(t, `{"id":3,"role":"patient"}`, string(frame["data"]))
	}

	require.Eventually(t, func() bool { return len(registry.ChannelsFor(3)) == 2 }, time.Second, 5*time.Millisecond)

	NewDispatcher(registry, zaptest.NewLogger(t)).Deliver(sampleNotification(3))

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		frame := readFrame(t, conn)
		assert.JSONEq(t, `"notification"`, string(frame["type"]))
		assert.Contains(t, string(frame["data"]), "approved")
	}

	require.NoError(t, tab1.Close())
	assert.Eventually(t, func() bool { return len(registry.ChannelsFor(3)) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tab2.Close())
	assert.Eventually(t, func() bool {
		users, _ := registry.Stats()
		return users == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_ReadyIsAlwaysFirstFrame(t *testing.T) {
	srv, registry := newTestServer(t)
	patient := auth.Principal{ID: 3, Role: auth.RolePatient}
	dispatcher := NewDispatcher(registry, zaptest.NewLogger(t))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				dispatcher.Deliver(sampleNotification(3))
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	header := http.Header{"Authorization": {"Bearer " + token(t, patient)}}
	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
		require.NoError(t, err)

		frame := readFrame(t, conn)
		assert.JSONEq(t, `"ready"`, string(frame["type"]), "handshake %d", i)
		require.NoError(t, conn.Close())
	}

	assert.Eventually(t, func() bool {
		users, _ := registry.Stats()
		return users == 0
	}, 2*time.Second, 10*time.Millisecond)
}
