// AngelaMos | 2026
// realtime_test.go

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/rti-cashflowops/internal/alert"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/event"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

type stubVerifier struct{}

func (stubVerifier) Authenticate(_ context.Context, token string) (*middleware.Principal, error) {
	if token != "good" {
		return nil, core.ErrTokenInvalid
	}
	return &middleware.Principal{AccountID: "acc-1", Role: "user"}, nil
}

func startServer(t *testing.T) (*httptest.Server, *Hub, *event.InMemoryBus) {
	t.Helper()

	bus := event.NewInMemoryBus()
	hub := NewHub(bus)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := chi.NewRouter()
	NewHandler(hub, stubVerifier{}, []string{"https://app.example.com"}).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, bus
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestBroadcastReachesAuthenticatedClient(t *testing.T) {
	srv, hub, bus := startServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(),
		event.New(event.TypeAlertCreated, "admin-1", map[string]string{"title": "SPY"})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type    string            `json:"type"`
		ActorID string            `json:"actor_id"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "alert.created", got.Type)
	assert.Equal(t, "admin-1", got.ActorID)
	assert.Equal(t, "SPY", got.Payload["title"])

	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	srv, hub, _ := startServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=bad"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, hub.ClientCount())
}

func TestHandshakeAcceptsBearerHeader(t *testing.T) {
	srv, _, _ := startServer(t)

	header := http.Header{"Authorization": []string{"Bearer good"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHandshakeChecksOrigin(t *testing.T) {
	srv, _, _ := startServer(t)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestSlowClientIsDropped(t *testing.T) {
	bus := event.NewInMemoryBus()
	hub := NewHub(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := &Client{hub: hub, send: make(chan []byte, 1), accountID: "slow"}
	fast := &Client{hub: hub, send: make(chan []byte, 8), accountID: "fast"}
	require.True(t, hub.Register(slow))
	require.True(t, hub.Register(fast))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	for range 2 {
		require.NoError(t, bus.Publish(ctx, event.New(event.TypeAlertDeleted, "admin", nil)))
	}

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "slow client channel is closed")
	assert.Len(t, fast.send, 2)
}

func TestRegisterAfterStop(t *testing.T) {
	hub := NewHub(event.NewInMemoryBus())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, hub.Register(&Client{hub: hub, send: make(chan []byte, 1)}))
}

func TestPremiumAlertBodyStaysOffTheSocket(t *testing.T) {
	srv, hub, bus := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	alerts := alert.NewService(alert.NewMemoryRepository(), bus)
	premium, err := alerts.Create(context.Background(), "admin-1", alert.CreateRequest{
		Title:   "PREMIUM",
		Body:    "secret premium body",
		Premium: true,
	})
	require.NoError(t, err)
	_, err = alerts.Create(context.Background(), "admin-1", alert.CreateRequest{
		Title: "Open",
		Body:  "market opens flat",
	})
	require.NoError(t, err)

	read := func() string {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		return string(msg)
	}

	first := read()
	assert.Contains(t, first, premium.ID)
	assert.Contains(t, first, `"premium":true`)
	assert.NotContains(t, first, "secret premium body")
	assert.NotContains(t, first, "PREMIUM")

	assert.Contains(t, read(), "market opens flat")
}
