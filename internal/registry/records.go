// Package registry is the source of truth for peer identity, connection
// binding, capability, and status — for agents, services, and clients — plus
// the connection registry that tracks pending vs. bound channels.
package registry

import "time"

// Status is the lifecycle status of an Agent or Service record.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
)

// ToolDescriptor describes one tool exposed by a service or tool server.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
}

// Agent is the identity record for one agent peer.
type Agent struct {
	ID             string
	Name           string
	Capabilities   []string
	Manifest       map[string]interface{}
	Status         Status
	ConnectionID   string
	StatusDetails  string
	RegisteredAt   time.Time
	DisconnectedAt time.Time
}

// Service is the identity record for one service peer. Shape parallel to
// Agent, plus its tool catalogue — services are agents with a narrower,
// function-call-shaped contract.
type Service struct {
	ID             string
	Name           string
	Capabilities   []string
	Manifest       map[string]interface{}
	Tools          []ToolDescriptor
	Status         Status
	ConnectionID   string
	StatusDetails  string
	RegisteredAt   time.Time
	DisconnectedAt time.Time
}

// Client is the identity record for one client peer. Clients may be
// anonymous; ID is minted on connect when not supplied at registration.
type Client struct {
	ID           string
	Status       Status
	ConnectionID string
	RegisteredAt time.Time
	LastActiveAt time.Time
}

// ConnectionState distinguishes a channel with no bound identity yet from
// one that has completed its register handshake.
type ConnectionState string

const (
	ConnectionPending ConnectionState = "pending"
	ConnectionBound   ConnectionState = "bound"
)

// Connection tracks one physical channel on a hub, independent of whatever
// identity it eventually binds to.
type Connection struct {
	ConnectionID string
	State        ConnectionState
	BoundID      string // agent/service/client id, once bound
}
