package registry

import "sync"

// ConnectionRegistry tracks every physical channel across all three hubs,
// independent of the agent/service/client identity it may bind to. A record
// is created pending by AddPending or bound directly by Bind, and Remove
// discards it. The hubs do not call AddPending on accept, so a connection
// has no record here until its *.register message binds it.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*Connection
}

// NewConnectionRegistry returns an empty ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{byID: make(map[string]*Connection)}
}

// AddPending registers a freshly accepted connection in the pending state.
func (r *ConnectionRegistry) AddPending(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[connectionID] = &Connection{ConnectionID: connectionID, State: ConnectionPending}
}

// Bind transitions a connection to bound, associating it with boundID.
func (r *ConnectionRegistry) Bind(connectionID, boundID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[connectionID]
	if !ok {
		c = &Connection{ConnectionID: connectionID}
		r.byID[connectionID] = c
	}
	c.State = ConnectionBound
	c.BoundID = boundID
}

// Get returns the connection record, if known.
func (r *ConnectionRegistry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[connectionID]
	return c, ok
}

// IsPending reports whether connectionID exists and has not yet bound an identity.
func (r *ConnectionRegistry) IsPending(connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[connectionID]
	return ok && c.State == ConnectionPending
}

// Remove discards the connection record entirely (on channel close).
func (r *ConnectionRegistry) Remove(connectionID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[connectionID]
	if ok {
		delete(r.byID, connectionID)
	}
	return c, ok
}
