package registry

import (
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
)

// ServiceFilter narrows ServiceRegistry.All; zero-value fields are unconstrained.
type ServiceFilter struct {
	Status       Status
	Capabilities []string
	Name         string
}

// ServiceRegistry mirrors AgentRegistry for service peers, which additionally
// carry a tool catalogue.
type ServiceRegistry struct {
	mu       sync.RWMutex
	byID     map[string]*Service
	byName   map[string]string
	byConnID map[string]string
}

// NewServiceRegistry returns an empty ServiceRegistry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		byID:     make(map[string]*Service),
		byName:   make(map[string]string),
		byConnID: make(map[string]string),
	}
}

// Register binds a pending connection to a service identity, offlining any
// existing record under the same name with a different id.
func (r *ServiceRegistry) Register(id, name, connectionID string, capabilities []string, manifest map[string]interface{}, tools []ToolDescriptor) *Service {
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

	s, exists := r.byID[id]
	if !exists {
		s = &Service{ID: id, RegisteredAt: time.Now().UTC()}
		r.byID[id] = s
	}
	s.Name = name
	s.Capabilities = capabilities
	s.Manifest = manifest
	s.Tools = tools
	s.Status = StatusOnline
	s.ConnectionID = connectionID
	s.DisconnectedAt = time.Time{}

	r.byName[name] = id
	r.byConnID[connectionID] = id

	return s
}

// Preregister declares a service identity from static configuration, before
// it has ever connected. The record is created offline with no bound
// connection so it's discoverable by name immediately. A Register call with
// the same id binds it the normal way, but the kernel's service.register
// handler always mints a fresh id, so a live service of the same name gets a
// new record that takes over the name while the preregistered record stays
// offline.
func (r *ServiceRegistry) Preregister(id, name string, capabilities []string, manifest map[string]interface{}) *Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.byID[id]
	if !exists {
		s = &Service{ID: id, RegisteredAt: time.Now().UTC()}
		r.byID[id] = s
	}
	s.Name = name
	s.Capabilities = capabilities
	s.Manifest = manifest
	s.Status = StatusOffline

	r.byName[name] = id
	return s
}

// GetByID returns the service with the given id.
func (r *ServiceRegistry) GetByID(id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, apperr.ServiceNotFound(id)
	}
	return s, nil
}

// GetByName returns the service currently registered under name.
func (r *ServiceRegistry) GetByName(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, apperr.ServiceNotFound(name)
	}
	return r.byID[id], nil
}

// GetByConnectionID returns the service bound to connectionID, if any.
func (r *ServiceRegistry) GetByConnectionID(connectionID string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConnID[connectionID]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// UpdateStatus transitions the service's status and optional detail string.
func (r *ServiceRegistry) UpdateStatus(id string, status Status, details string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return apperr.ServiceNotFound(id)
	}
	s.Status = status
	s.StatusDetails = details
	if status == StatusOffline {
		s.DisconnectedAt = time.Now().UTC()
	}
	return nil
}

// RemoveByConnectionID unbinds the service's connection and marks it offline.
func (r *ServiceRegistry) RemoveByConnectionID(connectionID string) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConnID[connectionID]
	if !ok {
		return nil, false
	}
	delete(r.byConnID, connectionID)
	s := r.byID[id]
	s.Status = StatusOffline
	s.ConnectionID = ""
	s.DisconnectedAt = time.Now().UTC()
	return s, true
}

// All returns every service record matching filter.
func (r *ServiceRegistry) All(filter ServiceFilter) []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Service, 0, len(r.byID))
	for _, s := range r.byID {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Name != "" && s.Name != filter.Name {
			continue
		}
		if len(filter.Capabilities) > 0 && !hasAllCapabilities(s.Capabilities, filter.Capabilities) {
			continue
		}
		out = append(out, s)
	}
	return out
}
