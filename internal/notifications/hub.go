package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Hub tracks open websocket connections grouped by per-user room.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*client]struct{}
	metrics *metrics.NotificationMetrics
	logg    *logger.Logger
}

type client struct {
	conn *websocket.Conn
	room string
	send chan []byte
	once sync.Once
}

func NewHub(m *metrics.NotificationMetrics, logg *logger.Logger) *Hub {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Hub{
		rooms:   make(map[string]map[*client]struct{}),
		metrics: m,
		logg:    logg,
	}
}

// Serve joins conn to the user's room and blocks until the peer goes away or ctx ends.
func (h *Hub) Serve(ctx context.Context, userID uuid.UUID, conn *websocket.Conn) {
	c := &client{conn: conn, room: RoomFor(userID), send: make(chan []byte, sendBuffer)}
	h.add(c)
	defer h.remove(c)

	ctx = h.logg.WithFields(ctx, map[string]any{"room": c.room})
	h.logg.Info(ctx, "notifications.ws_connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, c)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-readErr:
	case <-done:
	}
	h.logg.Info(ctx, "notifications.ws_disconnected")
}

// Deliver writes the envelope to every connection in its room and returns how many
// connections accepted it.
func (h *Hub) Deliver(env Envelope) int {
	frame, err := json.Marshal(Frame{Event: env.Event, Payload: env.Payload})
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[env.Room] {
		select {
		case c.send <- frame:
			delivered++
			h.metrics.IncDelivered(string(env.Event))
		default:
			// slow consumer; drop rather than block the broker
		}
	}
	return delivered
}

// Close drops every open connection. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for room, members := range h.rooms {
		for c := range members {
			all = append(all, c)
			h.metrics.ConnectionClosed()
		}
		delete(h.rooms, room)
	}
	h.mu.Unlock()
	for _, c := range all {
		c.close()
	}
}

// Connections reports the number of open connections in a room.
func (h *Hub) Connections(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[c.room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[c.room] = members
	}
	members[c] = struct{}{}
	h.metrics.ConnectionOpened()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if members, ok := h.rooms[c.room]; ok {
		if _, present := members[c]; present {
			delete(members, c)
			h.metrics.ConnectionClosed()
		}
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// writeLoop is the only goroutine writing to the connection.
func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "notifications.ws_write_failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
