package registry

import (
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
)

// AgentFilter narrows AgentRegistry.All by optional fields; zero-value fields
// are unconstrained.
type AgentFilter struct {
	Status       Status
	Capabilities []string
	Name         string
}

// AgentRegistry is the source of truth for agent identity, connection
// binding, capabilities, and status. All mutation is serialized by mu; the
// id→record map is primary, name and connection indexes are kept in sync
// with it on every write.
type AgentRegistry struct {
	mu         sync.RWMutex
	byID       map[string]*Agent
	byName     map[string]string // name -> id
	byConnID   map[string]string // connectionId -> id
}

// NewAgentRegistry returns an empty AgentRegistry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		byID:     make(map[string]*Agent),
		byName:   make(map[string]string),
		byConnID: make(map[string]string),
	}
}

// Register binds a pending connection to an agent identity. If an online
// record already exists under name with a different id, that older record is
// marked offline first, per the name-collision rule. Returns the bound record.
func (r *AgentRegistry) Register(id, name, connectionID string, capabilities []string, manifest map[string]interface{}) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldID, ok := r.byName[name]; ok && oldID != id {
		if old, ok := r.byID[oldID]; ok && old.Status != StatusOffline {
			old.Status = StatusOffline
			old.DisconnectedAt = time.Now().UTC()
			delete(r.byConnID, old.ConnectionID)
			old.ConnectionID = ""
		}
	}

	a, exists := r.byID[id]
	if !exists {
		a = &Agent{ID: id, RegisteredAt: time.Now().UTC()}
		r.byID[id] = a
	}
	a.Name = name
	a.Capabilities = capabilities
	a.Manifest = manifest
	a.Status = StatusOnline
	a.ConnectionID = connectionID
	a.DisconnectedAt = time.Time{}

	r.byName[name] = id
	r.byConnID[connectionID] = id

	return a
}

// GetByID returns the agent with the given id.
func (r *AgentRegistry) GetByID(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, apperr.AgentNotFound(id)
	}
	return a, nil
}

// GetByName returns the agent currently registered under name.
func (r *AgentRegistry) GetByName(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, apperr.AgentNotFound(name)
	}
	return r.byID[id], nil
}

// GetByConnectionID returns the agent bound to connectionID, if any.
func (r *AgentRegistry) GetByConnectionID(connectionID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConnID[connectionID]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Preregister declares an agent identity from static configuration, before
// it has ever connected (SPEC_FULL §6/§10's pre-configured peers). The
// record is created offline with no bound connection so it's discoverable
// by name immediately. A Register call with the same id binds it the normal
// way, but the kernel's agent.register handler always mints a fresh id, so a
// live agent of the same name gets a new record that takes over the name
// while the preregistered record stays offline.
func (r *AgentRegistry) Preregister(id, name string, capabilities []string, manifest map[string]interface{}) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.byID[id]
	if !exists {
		a = &Agent{ID: id, RegisteredAt: time.Now().UTC()}
		r.byID[id] = a
	}
	a.Name = name
	a.Capabilities = capabilities
	a.Manifest = manifest
	a.Status = StatusOffline

	r.byName[name] = id
	return a
}

// UpdateStatus transitions the agent's status and optional detail string.
func (r *AgentRegistry) UpdateStatus(id string, status Status, details string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return apperr.AgentNotFound(id)
	}
	a.Status = status
	a.StatusDetails = details
	if status == StatusOffline {
		a.DisconnectedAt = time.Now().UTC()
	}
	return nil
}

// RemoveByConnectionID unbinds the agent's connection and marks it offline,
// leaving the identity record intact so historic tasks still resolve it.
func (r *AgentRegistry) RemoveByConnectionID(connectionID string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConnID[connectionID]
	if !ok {
		return nil, false
	}
	delete(r.byConnID, connectionID)
	a := r.byID[id]
	a.Status = StatusOffline
	a.ConnectionID = ""
	a.DisconnectedAt = time.Now().UTC()
	return a, true
}

// All returns every agent record matching filter.
func (r *AgentRegistry) All(filter AgentFilter) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.byID))
	for _, a := range r.byID {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Name != "" && a.Name != filter.Name {
			continue
		}
		if len(filter.Capabilities) > 0 && !hasAllCapabilities(a.Capabilities, filter.Capabilities) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}
