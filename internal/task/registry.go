package task

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
	"github.com/agentmesh/orchestrator/internal/events/bus"
)

// AgentTaskRegistry stores AgentTask records and enforces their state machine.
// Every accepted transition publishes bus.SubjectTaskStateChanged so the
// lifecycle notifier can fan it out to the task's owner.
type AgentTaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*AgentTask
	bus   bus.EventBus
}

// NewAgentTaskRegistry returns an empty registry publishing transitions onto eventBus.
func NewAgentTaskRegistry(eventBus bus.EventBus) *AgentTaskRegistry {
	return &AgentTaskRegistry{tasks: make(map[string]*AgentTask), bus: eventBus}
}

// Create stores a new task, always in StatusPending regardless of what the
// caller passes in t.Status.
func (r *AgentTaskRegistry) Create(t *AgentTask) *AgentTask {
	now := time.Now().UTC()
	t.Status = StatusPending
	t.CreatedAt = now
	t.LastUpdatedAt = now

	r.mu.Lock()
	r.tasks[t.TaskID] = t
	r.mu.Unlock()
	return t
}

// Get returns the task with the given id.
func (r *AgentTaskRegistry) Get(taskID string) (*AgentTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, apperr.TaskNotFound(taskID)
	}
	return t, nil
}

// UpdateStatus enforces the state machine transition and merges details into
// the appropriate field (result, error, or statusDetails) depending on next.
// A rejected (including repeated-terminal) transition returns an error and
// leaves the task unchanged.
func (r *AgentTaskRegistry) UpdateStatus(ctx context.Context, taskID string, next Status, result map[string]interface{}, errMsg, details string) (*AgentTask, error) {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, apperr.TaskNotFound(taskID)
	}

	if !CanTransition(t.Status, next) {
		r.mu.Unlock()
		return nil, apperr.InvalidState("illegal task transition " + string(t.Status) + " -> " + string(next))
	}

	prev := t.Status
	now := time.Now().UTC()
	t.Status = next
	t.LastUpdatedAt = now
	if result != nil {
		t.Result = result
	}
	if errMsg != "" {
		t.Error = errMsg
	}
	if details != "" {
		t.StatusDetails = details
	}
	if next.Terminal() {
		t.CompletedAt = now
	}
	snapshot := *t
	r.mu.Unlock()

	r.publish(ctx, prev, next, now, &snapshot)
	return t, nil
}

// All returns every agent task currently stored, in no particular order.
// Used by disconnect handling to scan for tasks in_progress on a given agent.
func (r *AgentTaskRegistry) All() []*AgentTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*AgentTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// publish emits task.state.changed as a flat field map rather than the
// struct pointer, so the event survives an encode/decode round trip over
// either event bus backend identically — the notifier never has to
// type-assert a snapshot back to *AgentTask.
func (r *AgentTaskRegistry) publish(ctx context.Context, prev, next Status, at time.Time, t *AgentTask) {
	if r.bus == nil {
		return
	}
	evt := bus.NewEvent(bus.SubjectTaskStateChanged, "task.agent", map[string]interface{}{
		"kind":      "agent",
		"taskId":    t.TaskID,
		"agentId":   t.AgentID,
		"ownerKind": string(t.OwnerKind),
		"ownerId":   t.OwnerID,
		"prev":      string(prev),
		"next":      string(next),
		"at":        at,
		"result":    t.Result,
		"error":     t.Error,
		"details":   t.StatusDetails,
	})
	_ = r.bus.Publish(ctx, bus.SubjectTaskStateChanged, evt)
}

// ServiceTaskRegistry mirrors AgentTaskRegistry for service-bound tasks.
type ServiceTaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*ServiceTask
	bus   bus.EventBus
}

// NewServiceTaskRegistry returns an empty registry publishing transitions onto eventBus.
func NewServiceTaskRegistry(eventBus bus.EventBus) *ServiceTaskRegistry {
	return &ServiceTaskRegistry{tasks: make(map[string]*ServiceTask), bus: eventBus}
}

// Create stores a new service task, always starting in StatusPending.
func (r *ServiceTaskRegistry) Create(t *ServiceTask) *ServiceTask {
	now := time.Now().UTC()
	t.Status = StatusPending
	t.CreatedAt = now
	t.LastUpdatedAt = now

	r.mu.Lock()
	r.tasks[t.TaskID] = t
	r.mu.Unlock()
	return t
}

// Get returns the service task with the given id.
func (r *ServiceTaskRegistry) Get(taskID string) (*ServiceTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, apperr.TaskNotFound(taskID)
	}
	return t, nil
}

// UpdateStatus enforces the state machine transition for a service task.
func (r *ServiceTaskRegistry) UpdateStatus(ctx context.Context, taskID string, next Status, result map[string]interface{}, errMsg, details string) (*ServiceTask, error) {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, apperr.TaskNotFound(taskID)
	}

	if !CanTransition(t.Status, next) {
		r.mu.Unlock()
		return nil, apperr.InvalidState("illegal task transition " + string(t.Status) + " -> " + string(next))
	}

	prev := t.Status
	now := time.Now().UTC()
	t.Status = next
	t.LastUpdatedAt = now
	if result != nil {
		t.Result = result
	}
	if errMsg != "" {
		t.Error = errMsg
	}
	if details != "" {
		t.StatusDetails = details
	}
	if next.Terminal() {
		t.CompletedAt = now
	}
	snapshot := *t
	r.mu.Unlock()

	r.publish(ctx, prev, next, now, &snapshot)
	return t, nil
}

// All returns every service task currently stored, in no particular order.
func (r *ServiceTaskRegistry) All() []*ServiceTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ServiceTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

func (r *ServiceTaskRegistry) publish(ctx context.Context, prev, next Status, at time.Time, t *ServiceTask) {
	if r.bus == nil {
		return
	}
	evt := bus.NewEvent(bus.SubjectTaskStateChanged, "task.service", map[string]interface{}{
		"kind":         "service",
		"taskId":       t.TaskID,
		"serviceId":    t.ServiceID,
		"functionName": t.FunctionName,
		"ownerKind":    string(t.OwnerKind),
		"ownerId":      t.OwnerID,
		"prev":         string(prev),
		"next":         string(next),
		"at":           at,
		"result":       t.Result,
		"error":        t.Error,
		"details":      t.StatusDetails,
	})
	_ = r.bus.Publish(ctx, bus.SubjectTaskStateChanged, evt)
}
