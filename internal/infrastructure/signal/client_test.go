package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"screenlink/internal/core/domain"
	"screenlink/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{}

// testServer is a minimal rendezvous stand-in: it upgrades, verifies the
// auth frame, acks, and exposes the live connection to the test.
type testServer struct {
	*httptest.Server
	auths chan Auth
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T, ackEvent string) *testServer {
	t.Helper()
	ts := &testServer{
		auths: make(chan Auth, 4),
		conns: make(chan *websocket.Conn, 4),
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var env envelope
		if err := conn.ReadJSON(&env); err != nil || env.Event != eventAuth {
			conn.Close()
			return
		}
		var auth Auth
		if err := json.Unmarshal(env.Data, &auth); err != nil {
			conn.Close()
			return
		}
		ts.auths <- auth

		ack, _ := newEnvelope(ackEvent, nil)
		if err := conn.WriteJSON(ack); err != nil {
			conn.Close()
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client := NewClient(Options{
		URL: url,
		Auth: Auth{
			Token:  "tok-123",
			PCID:   "pc-1",
			PCName: "Office PC",
			UserID: "user-9",
		},
		ConnectTimeout:    time.Second,
		ReconnectInterval: 20 * time.Millisecond,
	}, monitoring.NewPrometheusCollector(prometheus.NewRegistry()), zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func TestConnect_SendsAuthAndAwaitsAck(t *testing.T) {
	server := newTestServer(t, eventConnected)
	client := newTestClient(t, server.wsURL())

	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.IsConnected())

	auth := <-server.auths
	assert.Equal(t, "tok-123", auth.Token)
	assert.Equal(t, peerTypeAgent, auth.Type)
	assert.Equal(t, "pc-1", auth.PCID)
	assert.Equal(t, "Office PC", auth.PCName)
	assert.Equal(t, "user-9", auth.UserID)
}

func TestConnect_WrongAckFails(t *testing.T) {
	server := newTestServer(t, "rejected")
	client := newTestClient(t, server.wsURL())

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
	assert.False(t, client.IsConnected())
}

func TestDispatch_RoutesEventsToHandlers(t *testing.T) {
	server := newTestServer(t, eventConnected)
	client := newTestClient(t, server.wsURL())

	received := make(chan json.RawMessage, 1)
	client.On(domain.EventCreateOffer, func(ctx context.Context, payload json.RawMessage) error {
		received <- payload
		return nil
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := <-server.conns

	env, err := newEnvelope(domain.EventCreateOffer, map[string]string{"viewerId": "v1", "quality": "low"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	select {
	case payload := <-received:
		var msg domain.CreateOfferMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, domain.ViewerID("v1"), msg.ViewerID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestEmitOffer(t *testing.T) {
	server := newTestServer(t, eventConnected)
	client := newTestClient(t, server.wsURL())

	require.NoError(t, client.Connect(context.Background()))
	conn := <-server.conns

	err := client.EmitOffer("v1", domain.SessionDescription{Type: "offer", SDP: "v=0"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, domain.EventOffer, env.Event)

	var payload offerPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, domain.ViewerID("v1"), payload.ViewerID)
	assert.Equal(t, "v=0", payload.SDP.SDP)
}

func TestEmit_WhenDisconnected(t *testing.T) {
	client := newTestClient(t, "ws://127.0.0.1:1/ws")

	err := client.EmitOffer("v1", domain.SessionDescription{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestReconnect_AfterServerDrop(t *testing.T) {
	server := newTestServer(t, eventConnected)
	client := newTestClient(t, server.wsURL())

	require.NoError(t, client.Connect(context.Background()))
	first := <-server.conns

	// Drop the connection server-side; the client must come back on its own.
	first.Close()

	select {
	case <-server.conns:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not reconnect")
	}
	<-server.auths // initial auth
	assert.Eventually(t, client.IsConnected, 2*time.Second, 10*time.Millisecond)
}

func TestWaitUntilDisconnected(t *testing.T) {
	server := newTestServer(t, eventConnected)
	client := newTestClient(t, server.wsURL())
	require.NoError(t, client.Connect(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- client.WaitUntilDisconnected(context.Background())
	}()

	require.NoError(t, client.Disconnect())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntilDisconnected did not return after Disconnect")
	}
}
