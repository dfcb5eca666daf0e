// Package hub implements the three connection hubs (agent, service, client)
// that terminate the orchestrator's wire protocol. Each hub runs an
// independent gorilla/websocket upgrade endpoint; every connection gets its
// own read/write pump goroutine pair so one slow peer never blocks another.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/pkg/wire"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

// Router receives inbound envelopes classified by the origin hub's Kind.
// The kernel implements this interface; hubs never interpret message
// content themselves.
type Router interface {
	Route(ctx context.Context, kind wire.OriginKind, connectionID string, msg *wire.Message)
	// Disconnected notifies the router that connectionID's channel closed.
	Disconnected(kind wire.OriginKind, connectionID string)
}

// Client is a single connection terminated by a hub.
type Client struct {
	ID     string
	kind   wire.OriginKind
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	mu     sync.Mutex
	closed bool
	logger *logger.Logger
}

func newClient(id string, kind wire.OriginKind, conn *websocket.Conn, h *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:     id,
		kind:   kind,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, sendBufferSize),
		logger: log.WithConnectionID(id),
	}
}

// ReadPump reads frames off the connection, parses them as wire envelopes,
// and hands each to the router concurrently so a blocking handler never
// stalls the read loop. Malformed frames get an error reply; the channel
// stays open (resilience over strictness).
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}

		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed envelope", zap.Error(err))
			c.Send(wire.NewError("", "", "malformed envelope: "+err.Error()))
			continue
		}
		msg.Type = wire.Canonicalize(msg.Type)

		go c.hub.router.Route(ctx, c.kind, c.ID, &msg)
	}
}

// Send enqueues msg for delivery, dropping it if the send buffer is full.
func (c *Client) Send(msg *wire.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal outbound message", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the send channel to the connection and keeps it alive
// with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				_ = w.Close()
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				if _, err := w.Write([]byte{'\n'}); err != nil {
					_ = w.Close()
					return
				}
				if _, err := w.Write(<-c.send); err != nil {
					_ = w.Close()
					return
				}
			}

			if err := w.Close(); err != nil {
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
