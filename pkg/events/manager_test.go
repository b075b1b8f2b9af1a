package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) (*Publisher, *ConnectionManager, *httptest.Server) {
	t.Helper()

	publisher := NewPublisher(8)
	manager := NewConnectionManager(publisher)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() { server.Close() })
	return publisher, manager, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestConnectionManager_ConnectionEstablished(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestConnectionManager_SubscribeAndBroadcast(t *testing.T) {
	publisher, manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: RunsChannel})
	msg := readJSON(t, conn)
	assert.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, RunsChannel, msg["channel"])

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(RunsChannel) == 1
	}, time.Second, 10*time.Millisecond)

	publisher.PublishRunStarted(RunStartedPayload{RunID: "abc12345", RouteName: "peon", BotCount: 2})

	msg = readJSON(t, conn)
	assert.Equal(t, EventTypeRunStarted, msg["type"])
	assert.Equal(t, "abc12345", msg["run_id"])
}

func TestConnectionManager_UnsubscribeStopsDelivery(t *testing.T) {
	publisher, manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: RunsChannel})
	readJSON(t, conn) // subscription.confirmed

	writeJSON(t, conn, ClientMessage{Action: "unsubscribe", Channel: RunsChannel})
	msg := readJSON(t, conn)
	assert.Equal(t, "unsubscription.confirmed", msg["type"])

	require.Eventually(t, func() bool {
		return manager.SubscriberCount(RunsChannel) == 0
	}, time.Second, 10*time.Millisecond)

	publisher.PublishRunStarted(RunStartedPayload{RunID: "abc12345"})

	// A ping round trip proves no run event was queued in between.
	writeJSON(t, conn, ClientMessage{Action: "ping"})
	msg = readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_SubscribeReplaysBufferedEvents(t *testing.T) {
	publisher, _, server := setupTestManager(t)

	publisher.PublishRunStatus(RunStatusPayload{RunID: "r1", Status: "running", BotsTotal: 2})
	publisher.PublishRunStatus(RunStatusPayload{RunID: "r1", Status: "completed", BotsTotal: 2})

	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: RunsChannel})
	readJSON(t, conn) // subscription.confirmed

	first := readJSON(t, conn)
	second := readJSON(t, conn)
	assert.Equal(t, "running", first["status"])
	assert.Equal(t, "completed", second["status"])
}

func TestConnectionManager_CatchupOverflow(t *testing.T) {
	publisher, _, server := setupTestManager(t)

	// Buffer size is 8; publish enough to evict the earliest events.
	for i := 0; i < 20; i++ {
		publisher.PublishRunStatus(RunStatusPayload{RunID: "r1", Status: "running"})
	}

	conn := connectWS(t, server)
	readJSON(t, conn)

	since := int64(1)
	writeJSON(t, conn, ClientMessage{Action: "catchup", Channel: RunsChannel, LastEventID: &since})
	msg := readJSON(t, conn)
	assert.Equal(t, "catchup.overflow", msg["type"])
	assert.Equal(t, RunsChannel, msg["channel"])
}

func TestConnectionManager_InvalidMessages(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe"})
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])

	writeJSON(t, conn, ClientMessage{Action: "warp"})
	msg = readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "unknown action")
}

type countingGauge struct {
	opened atomic.Int64
	closed atomic.Int64
}

func (g *countingGauge) WSConnectionOpened() { g.opened.Add(1) }
func (g *countingGauge) WSConnectionClosed() { g.closed.Add(1) }

func TestConnectionManager_GaugeTracksConnects(t *testing.T) {
	_, manager, server := setupTestManager(t)
	gauge := &countingGauge{}
	manager.SetConnectionGauge(gauge)

	conn := connectWS(t, server)
	readJSON(t, conn)

	require.Eventually(t, func() bool {
		return gauge.opened.Load() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return gauge.closed.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConnectionManager_DisconnectCleansUp(t *testing.T) {
	_, manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: SuitesChannel})
	readJSON(t, conn)

	require.Eventually(t, func() bool {
		return manager.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return manager.ConnectionCount() == 0 && manager.SubscriberCount(SuitesChannel) == 0
	}, time.Second, 10*time.Millisecond)
}
