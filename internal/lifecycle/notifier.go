// Package lifecycle fans out task lifecycle events to their owning
// connection. It is the only subscriber of the kernel's internal event bus:
// the kernel (and the task registries it drives) publish, and the Notifier
// here turns each published event into a single delivery attempt against the
// owner's live connection, best-effort, via the kernel's hub senders.
package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/internal/events/bus"
	"github.com/agentmesh/orchestrator/internal/kernel"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

// Notifier subscribes to task.state.changed and task.notification and
// delivers each to the task's owner. Delivery is best-effort: an offline
// owner simply misses the update. Both bus backends dispatch events to a
// single subscriber's handler in publish order, so a progress ping and a
// subsequent terminal transition for the same task are always delivered in
// the order they were published.
type Notifier struct {
	kernel *kernel.Kernel
	bus    bus.EventBus
	logger *logger.Logger
	subs   []bus.Subscription
}

// New builds a Notifier. Start must be called to begin delivering events.
func New(k *kernel.Kernel, eventBus bus.EventBus, log *logger.Logger) *Notifier {
	return &Notifier{kernel: k, bus: eventBus, logger: log}
}

// Start subscribes to the lifecycle subjects. It is idempotent only in the
// sense that calling it twice double-subscribes; callers should call it once.
func (n *Notifier) Start() error {
	if n.bus == nil {
		return nil
	}
	stateSub, err := n.bus.Subscribe(bus.SubjectTaskStateChanged, n.handleStateChanged)
	if err != nil {
		return err
	}
	notifSub, err := n.bus.Subscribe(bus.SubjectTaskNotification, n.handleNotification)
	if err != nil {
		_ = stateSub.Unsubscribe()
		return err
	}
	n.subs = append(n.subs, stateSub, notifSub)
	return nil
}

// Stop unsubscribes from every lifecycle subject.
func (n *Notifier) Stop() {
	for _, s := range n.subs {
		_ = s.Unsubscribe()
	}
	n.subs = nil
}

// handleStateChanged delivers a terminal agent/service task transition to its
// owner. Non-terminal transitions (e.g. pending -> in_progress) are not
// delivered here; task.status progress pings travel via task.notification
// instead.
func (n *Notifier) handleStateChanged(ctx context.Context, evt *bus.Event) error {
	next, _ := evt.Data["next"].(string)
	if !task.Status(next).Terminal() {
		return nil
	}

	kindStr, _ := evt.Data["kind"].(string)
	taskID, _ := evt.Data["taskId"].(string)
	ownerKind := task.OwnerKind(stringField(evt.Data, "ownerKind"))
	ownerID := stringField(evt.Data, "ownerId")
	result, _ := evt.Data["result"].(map[string]interface{})
	errMsg := stringField(evt.Data, "error")

	content := map[string]interface{}{
		"taskId": taskID,
		"status": next,
		"result": result,
		"error":  errMsg,
	}

	switch kindStr {
	case "agent":
		msgType := wire.TypeTaskResult
		if task.Status(next) != task.StatusCompleted {
			msgType = wire.TypeTaskError
		}
		// A delegated (agent.request) task's terminal result is delivered as
		// agent.response{requestId} instead, so the requesting agent can
		// match it against the call it made. Per spec §4.5/S3, the content
		// is the target's result (or error) verbatim, not the generic
		// {taskId, status, result, error} envelope used for task.result.
		if reqID, delegated := n.kernel.PopDelegation(taskID); delegated {
			responseContent := result
			if task.Status(next) != task.StatusCompleted {
				responseContent = map[string]interface{}{"error": errMsg}
			}
			if !n.kernel.DeliverResponse(ownerKind, ownerID, wire.TypeAgentResponse, reqID, responseContent) {
				n.logger.WithTaskID(taskID).Debug("delegated task owner unreachable")
			}
			return nil
		}
		if !n.kernel.DeliverToOwner(ownerKind, ownerID, msgType, content) {
			n.logger.WithTaskID(taskID).Debug("task owner unreachable", zap.String("msgType", msgType))
		}
	case "service":
		if !n.kernel.DeliverToOwner(ownerKind, ownerID, wire.TypeServiceTaskResult, content) {
			n.logger.WithTaskID(taskID).Debug("service task owner unreachable")
		}
	}
	return nil
}

// handleNotification delivers a non-terminal progress update (task.status,
// task.notification, service.notification) to the task's owner verbatim.
func (n *Notifier) handleNotification(ctx context.Context, evt *bus.Event) error {
	ownerKind := task.OwnerKind(stringField(evt.Data, "ownerKind"))
	ownerID := stringField(evt.Data, "ownerId")
	msgType := stringField(evt.Data, "msgType")
	content, _ := evt.Data["content"].(map[string]interface{})
	if msgType == "" {
		return nil
	}
	n.kernel.DeliverToOwner(ownerKind, ownerID, msgType, content)
	return nil
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}
