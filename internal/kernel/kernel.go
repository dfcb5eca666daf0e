// Package kernel is the message router: it classifies every inbound
// envelope by (originKind, type) and dispatches it from a static table,
// mutating registries and task state and producing outbound replies and
// forwards. It is the only writer of registry and task state (see
// concurrency model): each connection's read loop hands messages over in
// arrival order, but every message is routed on its own goroutine, so
// handlers for one connection may run concurrently; registries and task
// stores serialize concurrent access internally.
package kernel

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
	"github.com/agentmesh/orchestrator/internal/common/config"
	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/correlator"
	"github.com/agentmesh/orchestrator/internal/events/bus"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/internal/tsp"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

// Sender is the subset of hub.Hub the kernel needs to deliver a message to a
// specific connection on a specific hub.
type Sender interface {
	Send(connectionID string, msg *wire.Message) bool
}

// Kernel is the pure dispatcher described in spec §4.5. It holds no
// transport state of its own beyond references to the three hubs' Sender
// interface, used to deliver replies and forwards.
type Kernel struct {
	AgentHub   Sender
	ServiceHub Sender
	ClientHub  Sender

	Agents    *registry.AgentRegistry
	Services  *registry.ServiceRegistry
	Clients   *registry.ClientRegistry
	Conns     *registry.ConnectionRegistry
	AgentTasks   *task.AgentTaskRegistry
	ServiceTasks *task.ServiceTaskRegistry
	Tools     *tsp.Adapter
	Bus       bus.EventBus

	cfg    config.CorrelatorConfig
	logger *logger.Logger

	corrMu       sync.Mutex
	correlators  map[string]*correlator.Correlator // connectionId -> correlator

	// seenIDs guards against duplicate request ids per connection: a request
	// reusing any id already seen on that connection is rejected with
	// DUPLICATE_ID. A connection's set is cleared only when it disconnects.
	seenMu  sync.Mutex
	seenIDs map[string]map[string]bool // connectionId -> set of seen ids

	// delegations tracks agent-owned tasks created via agent.request, mapping
	// taskId to the original request's message id so the terminal result can
	// be delivered back as agent.response{requestId} instead of task.result.
	delegMu     sync.Mutex
	delegations map[string]string
}

// New builds a Kernel wired to the given registries, task stores, tool
// adapter, and event bus. Hub senders are injected afterward via SetHubs
// since main.go constructs the kernel and hubs in a mutually-referential
// wiring step.
func New(
	agents *registry.AgentRegistry,
	services *registry.ServiceRegistry,
	clients *registry.ClientRegistry,
	conns *registry.ConnectionRegistry,
	agentTasks *task.AgentTaskRegistry,
	serviceTasks *task.ServiceTaskRegistry,
	tools *tsp.Adapter,
	eventBus bus.EventBus,
	cfg config.CorrelatorConfig,
	log *logger.Logger,
) *Kernel {
	return &Kernel{
		Agents:       agents,
		Services:     services,
		Clients:      clients,
		Conns:        conns,
		AgentTasks:   agentTasks,
		ServiceTasks: serviceTasks,
		Tools:        tools,
		Bus:          eventBus,
		cfg:          cfg,
		logger:       log,
		correlators:  make(map[string]*correlator.Correlator),
		seenIDs:      make(map[string]map[string]bool),
		delegations:  make(map[string]string),
	}
}

// registerDelegation records that taskID's terminal result must be delivered
// back as agent.response{requestId: requestID} rather than task.result.
func (k *Kernel) registerDelegation(taskID, requestID string) {
	k.delegMu.Lock()
	defer k.delegMu.Unlock()
	k.delegations[taskID] = requestID
}

// popDelegation removes and returns taskID's delegation requestId, if any.
func (k *Kernel) popDelegation(taskID string) (string, bool) {
	k.delegMu.Lock()
	defer k.delegMu.Unlock()
	reqID, ok := k.delegations[taskID]
	if ok {
		delete(k.delegations, taskID)
	}
	return reqID, ok
}

// SetHubs wires the three connection hubs used to deliver outbound messages.
func (k *Kernel) SetHubs(agentHub, serviceHub, clientHub Sender) {
	k.AgentHub = agentHub
	k.ServiceHub = serviceHub
	k.ClientHub = clientHub
}

func (k *Kernel) hubFor(kind wire.OriginKind) Sender {
	switch kind {
	case wire.OriginAgent:
		return k.AgentHub
	case wire.OriginService:
		return k.ServiceHub
	default:
		return k.ClientHub
	}
}

// correlatorFor returns (creating if absent) the pending-response correlator
// for one connection.
func (k *Kernel) correlatorFor(connectionID string) *correlator.Correlator {
	k.corrMu.Lock()
	defer k.corrMu.Unlock()
	c, ok := k.correlators[connectionID]
	if !ok {
		c = correlator.New()
		k.correlators[connectionID] = c
	}
	return c
}

// Route classifies and dispatches a single inbound envelope. It is the
// kernel's only entry point; Accept/ReadPump hand every parsed message here.
func (k *Kernel) Route(ctx context.Context, kind wire.OriginKind, connectionID string, msg *wire.Message) {
	log := k.logger.WithConnectionID(connectionID)

	// First let any outstanding correlator claim this as a reply; if it
	// does, the waiting call owns the message and routing stops here. Only
	// applies to messages with a requestId or registered anyIdWithType watch.
	if k.correlatorFor(connectionID).Resolve(msg) {
		return
	}

	if msg.ID != "" && !k.claimID(connectionID, msg.ID) {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, string(apperr.CodeDuplicateID)))
		return
	}

	handler, ok := dispatchTable[dispatchKey{kind: kind, msgType: msg.Type}]
	if !ok {
		log.Debug("unsupported message type", zap.String("type", msg.Type))
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, string(apperr.CodeUnsupportedType)))
		return
	}

	if err := handler(ctx, k, kind, connectionID, msg); err != nil {
		log.Warn("handler error", zap.String("type", msg.Type), zap.Error(err))
	}
}

// claimID records id as seen for connectionID, returning false if it was
// already claimed on that connection (duplicate request id).
func (k *Kernel) claimID(connectionID, id string) bool {
	k.seenMu.Lock()
	defer k.seenMu.Unlock()
	set, ok := k.seenIDs[connectionID]
	if !ok {
		set = make(map[string]bool)
		k.seenIDs[connectionID] = set
	}
	if set[id] {
		return false
	}
	set[id] = true
	return true
}

// CancelAllPending rejects every outstanding correlator wait on every
// connection, across all three hubs. Used by the shutdown controller so
// in-flight sync service calls and delegated agent requests fail fast
// instead of riding out their full timeout during shutdown.
func (k *Kernel) CancelAllPending(reason string) {
	k.corrMu.Lock()
	correlators := make([]*correlator.Correlator, 0, len(k.correlators))
	for _, c := range k.correlators {
		correlators = append(correlators, c)
	}
	k.corrMu.Unlock()

	for _, c := range correlators {
		c.CancelAll(reason)
	}
}

// Disconnected handles a hub reporting that connectionID's channel closed:
// the pending entry is dropped, any bound record is offlined, and all
// correlator waiters on that connection are rejected.
func (k *Kernel) Disconnected(kind wire.OriginKind, connectionID string) {
	k.Conns.Remove(connectionID)

	k.corrMu.Lock()
	c := k.correlators[connectionID]
	delete(k.correlators, connectionID)
	k.corrMu.Unlock()
	if c != nil {
		c.CancelAll("connection closed")
	}

	k.seenMu.Lock()
	delete(k.seenIDs, connectionID)
	k.seenMu.Unlock()

	switch kind {
	case wire.OriginAgent:
		if a, ok := k.Agents.RemoveByConnectionID(connectionID); ok {
			k.handleAgentDisconnected(a)
		}
	case wire.OriginService:
		k.Services.RemoveByConnectionID(connectionID)
	case wire.OriginClient:
		k.Clients.RemoveByConnectionID(connectionID)
	}
}

// reply sends msg back on the hub that originated the connection.
func (k *Kernel) reply(kind wire.OriginKind, connectionID string, msg *wire.Message) {
	k.hubFor(kind).Send(connectionID, msg)
}

// PopDelegation exports popDelegation for the lifecycle notifier, which
// needs it to decide whether a terminal task update is delivered as
// task.result/task.error or as the delegating agent's agent.response.
func (k *Kernel) PopDelegation(taskID string) (string, bool) {
	return k.popDelegation(taskID)
}

// DeliverToOwner resolves ownerKind/ownerID to a live connection and sends a
// fresh message of msgType/content to it. Used by the lifecycle notifier to
// fan out task.state.changed and task.notification bus events. Best-effort:
// if the owner is offline, the update is dropped and false is returned.
func (k *Kernel) DeliverToOwner(ownerKind task.OwnerKind, ownerID, msgType string, content map[string]interface{}) bool {
	hubKind, connID, ok := k.ownerConnection(ownerKind, ownerID)
	if !ok {
		return false
	}
	fwd, err := wire.New(newID(), msgType, content)
	if err != nil {
		return false
	}
	return k.hubFor(hubKind).Send(connID, fwd)
}

// DeliverResponse is DeliverToOwner's reply-correlated form, used to deliver
// a delegated agent.request's terminal result back as agent.response{requestId}.
func (k *Kernel) DeliverResponse(ownerKind task.OwnerKind, ownerID, msgType, requestID string, content map[string]interface{}) bool {
	hubKind, connID, ok := k.ownerConnection(ownerKind, ownerID)
	if !ok {
		return false
	}
	fwd, err := wire.NewReply(newID(), msgType, requestID, content)
	if err != nil {
		return false
	}
	return k.hubFor(hubKind).Send(connID, fwd)
}

func newID() string { return ids.New() }

// publishConnEvent publishes a best-effort agent/service connect-or-disconnect
// lifecycle event. Failures are logged, not surfaced, since nothing on the
// hot path awaits them.
func (k *Kernel) publishConnEvent(ctx context.Context, connected bool, peerKind, id, name string) {
	if k.Bus == nil {
		return
	}
	var subject string
	switch {
	case peerKind == "agent" && connected:
		subject = bus.SubjectAgentConnected
	case peerKind == "agent":
		subject = bus.SubjectAgentDisconnected
	case peerKind == "service" && connected:
		subject = bus.SubjectServiceConnected
	default:
		subject = bus.SubjectServiceDisconnected
	}
	evt := bus.NewEvent(subject, "kernel", map[string]interface{}{"id": id, "name": name})
	if err := k.Bus.Publish(ctx, subject, evt); err != nil {
		k.logger.Warn("failed to publish connection event", zap.String("subject", subject), zap.Error(err))
	}
}
