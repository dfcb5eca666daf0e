package hub

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/pkg/wire"
	"go.uber.org/zap"
)

// Hub owns every connection terminated on one logical endpoint (agent,
// service, or client). It assigns connection ids, tracks live clients, and
// hands inbound envelopes to a Router. State mutation is serialized through
// the register/unregister channels so Run is the single writer of clients.
type Hub struct {
	kind wire.OriginKind

	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client

	router Router

	mu     sync.RWMutex
	logger *logger.Logger
}

// New creates a Hub for the given origin kind, routing inbound envelopes to router.
func New(kind wire.OriginKind, router Router, log *logger.Logger) *Hub {
	return &Hub{
		kind:       kind,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		router:     router,
		logger:     log.With(zap.String("hub", string(kind))),
	}
}

// Run is the hub's serialization loop. It must run in its own goroutine for
// the lifetime of the process; it returns when ctx is cancelled, after
// closing every connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("hub started")
	defer h.logger.Info("hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("connection_id", c.ID))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				delete(h.clients, c.ID)
				c.closeSend()
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("connection_id", c.ID))
			h.router.Disconnected(h.kind, c.ID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.closeSend()
		delete(h.clients, id)
	}
}

// Accept wraps a freshly upgraded websocket connection as a hub Client,
// registers it, starts its write pump, and sends the orchestrator.welcome
// envelope. The caller is responsible for running c.ReadPump(ctx)
// (typically blocking for the lifetime of the HTTP handler goroutine).
func (h *Hub) Accept(conn *websocket.Conn) *Client {
	connectionID := ids.NewPrefixed("conn")
	c := newClient(connectionID, h.kind, conn, h, h.logger)

	h.register <- c
	go c.WritePump()

	welcome, _ := wire.New(ids.New(), wire.TypeOrchestratorWelcome, map[string]string{
		"connectionId":       connectionID,
		"orchestratorVersion": orchestratorVersion,
	})
	c.Send(welcome)

	return c
}

// Send delivers msg to the connection with the given id, if still attached.
// Safe for concurrent callers; this is the hub-provided send(connectionId,
// msg) the kernel routes replies and notifications through.
func (h *Hub) Send(connectionID string, msg *wire.Message) bool {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	c.Send(msg)
	return true
}

// Count returns the number of live connections on this hub.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

const orchestratorVersion = "1.0.0"
