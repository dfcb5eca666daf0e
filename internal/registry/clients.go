package registry

import (
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
)

// ClientRegistry tracks client peers, which may be anonymous: an id is
// minted on connect if the register message doesn't supply one.
type ClientRegistry struct {
	mu       sync.RWMutex
	byID     map[string]*Client
	byConnID map[string]string
}

// NewClientRegistry returns an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		byID:     make(map[string]*Client),
		byConnID: make(map[string]string),
	}
}

// Register binds a pending connection to a client identity.
func (r *ClientRegistry) Register(id, connectionID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.byID[id]
	if !exists {
		c = &Client{ID: id, RegisteredAt: time.Now().UTC()}
		r.byID[id] = c
	}
	c.Status = StatusOnline
	c.ConnectionID = connectionID
	c.LastActiveAt = time.Now().UTC()

	r.byConnID[connectionID] = id
	return c
}

// GetByID returns the client with the given id.
func (r *ClientRegistry) GetByID(id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, apperr.ClientNotFound(id)
	}
	return c, nil
}

// GetByConnectionID returns the client bound to connectionID, if any.
func (r *ClientRegistry) GetByConnectionID(connectionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConnID[connectionID]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Touch updates the client's last-active timestamp.
func (r *ClientRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		c.LastActiveAt = time.Now().UTC()
	}
}

// RemoveByConnectionID unbinds the client's connection and marks it offline.
func (r *ClientRegistry) RemoveByConnectionID(connectionID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConnID[connectionID]
	if !ok {
		return nil, false
	}
	delete(r.byConnID, connectionID)
	c := r.byID[id]
	c.Status = StatusOffline
	c.ConnectionID = ""
	return c, true
}
