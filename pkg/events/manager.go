package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// connection tracks one WebSocket client and its subscriptions.
type connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]bool
	mu            sync.Mutex // serializes writes to conn
}

// ConnectionGauge tracks the live WebSocket client count. Implemented by the
// metrics collector; a nil gauge tracks nothing.
type ConnectionGauge interface {
	WSConnectionOpened()
	WSConnectionClosed()
}

// ConnectionManager owns all dashboard WebSocket connections and fans
// published events out to channel subscribers. It implements Broadcaster.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*connection
	channels    map[string]map[string]bool // channel -> set of connection ids
	publisher   *Publisher
	gauge       ConnectionGauge
	logger      *slog.Logger
}

// NewConnectionManager creates the manager and wires it as the publisher's
// broadcaster.
func NewConnectionManager(publisher *Publisher) *ConnectionManager {
	m := &ConnectionManager{
		connections: make(map[string]*connection),
		channels:    make(map[string]map[string]bool),
		publisher:   publisher,
		logger:      slog.Default().With("component", "connection_manager"),
	}
	if publisher != nil {
		publisher.SetBroadcaster(m)
	}
	return m
}

// SetConnectionGauge attaches a gauge updated on connect and disconnect.
func (m *ConnectionManager) SetConnectionGauge(g ConnectionGauge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauge = g
}

// HandleConnection runs the read loop for an accepted WebSocket until the
// client disconnects or ctx is cancelled.
func (m *ConnectionManager) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	c := &connection{
		id:            uuid.NewString(),
		conn:          conn,
		subscriptions: make(map[string]bool),
	}
	m.register(c)
	defer m.unregister(c)

	m.logger.Info("WebSocket client connected", "connection_id", c.id)
	m.sendJSON(ctx, c, map[string]any{
		"type":          "connection.established",
		"connection_id": c.id,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				m.logger.Info("WebSocket client disconnected", "connection_id", c.id)
			} else {
				m.logger.Warn("WebSocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.sendError(ctx, c, fmt.Sprintf("invalid message: %v", err))
			continue
		}
		m.handleClientMessage(ctx, c, msg)
	}
}

// Broadcast sends an event to every subscriber of a channel. Part of the
// Broadcaster interface.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.mu.RLock()
	var targets []*connection
	for id := range m.channels[channel] {
		if c, ok := m.connections[id]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	ctx := context.Background()
	for _, c := range targets {
		if err := m.sendRaw(ctx, c, event); err != nil {
			m.logger.Warn("Failed to deliver event", "connection_id", c.id, "channel", channel, "error", err)
		}
	}
}

// ConnectionCount returns the number of live connections.
func (m *ConnectionManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SubscriberCount returns the number of connections subscribed to a channel.
func (m *ConnectionManager) SubscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[channel])
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *connection, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendError(ctx, c, "subscribe requires a channel")
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(ctx, c, map[string]any{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Replay anything the client missed before subscribing.
		since := int64(0)
		if msg.LastEventID != nil {
			since = *msg.LastEventID
		}
		m.sendCatchup(ctx, c, msg.Channel, since)

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendError(ctx, c, "unsubscribe requires a channel")
			return
		}
		m.unsubscribe(c, msg.Channel)
		m.sendJSON(ctx, c, map[string]any{
			"type":    "unsubscription.confirmed",
			"channel": msg.Channel,
		})

	case "catchup":
		if msg.Channel == "" || msg.LastEventID == nil {
			m.sendError(ctx, c, "catchup requires a channel and last_event_id")
			return
		}
		m.sendCatchup(ctx, c, msg.Channel, *msg.LastEventID)

	case "ping":
		m.sendJSON(ctx, c, map[string]any{"type": "pong"})

	default:
		m.sendError(ctx, c, fmt.Sprintf("unknown action %q", msg.Action))
	}
}

// sendCatchup replays buffered events after sinceID. When the buffer no
// longer covers the requested range the client gets a catchup.overflow and
// should refetch current state over REST.
func (m *ConnectionManager) sendCatchup(ctx context.Context, c *connection, channel string, sinceID int64) {
	if m.publisher == nil {
		return
	}
	evs, overflow := m.publisher.CatchupEvents(channel, sinceID)
	if overflow {
		m.sendJSON(ctx, c, map[string]any{
			"type":    "catchup.overflow",
			"channel": channel,
		})
		return
	}
	for _, ev := range evs {
		if err := m.sendRaw(ctx, c, ev.Payload); err != nil {
			m.logger.Warn("Catchup delivery failed", "connection_id", c.id, "channel", channel, "error", err)
			return
		}
	}
}

func (m *ConnectionManager) register(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.id] = c
	if m.gauge != nil {
		m.gauge.WSConnectionOpened()
	}
}

func (m *ConnectionManager) unregister(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, c.id)
	if m.gauge != nil {
		m.gauge.WSConnectionClosed()
	}
	for channel := range c.subscriptions {
		delete(m.channels[channel], c.id)
		if len(m.channels[channel]) == 0 {
			delete(m.channels, channel)
		}
	}
}

func (m *ConnectionManager) subscribe(c *connection, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.subscriptions[channel] = true
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][c.id] = true
}

func (m *ConnectionManager) unsubscribe(c *connection, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(c.subscriptions, channel)
	delete(m.channels[channel], c.id)
	if len(m.channels[channel]) == 0 {
		delete(m.channels, channel)
	}
}

func (m *ConnectionManager) sendJSON(ctx context.Context, c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("Failed to marshal control message", "error", err)
		return
	}
	if err := m.sendRaw(ctx, c, data); err != nil {
		m.logger.Warn("Failed to send control message", "connection_id", c.id, "error", err)
	}
}

func (m *ConnectionManager) sendError(ctx context.Context, c *connection, message string) {
	m.sendJSON(ctx, c, map[string]any{"type": "error", "message": message})
}

func (m *ConnectionManager) sendRaw(ctx context.Context, c *connection, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
