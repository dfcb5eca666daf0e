// Package bus provides the internal event bus that backs the orchestrator's
// lifecycle notifier. Kernel components publish lifecycle events
// (task.state.changed, agent.connected, task.notification, ...) to
// this bus; the notifier subscribes and fans them out to the owning
// connection. The bus never crosses the process boundary: NATS, when
// configured, is used as a single-instance local backbone, not a
// multi-instance queue.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Well-known subjects published by kernel components.
const (
	SubjectTaskStateChanged = "task.state.changed"
	SubjectAgentConnected   = "agent.connected"
	SubjectAgentDisconnected = "agent.disconnected"
	SubjectServiceConnected = "service.connected"
	SubjectServiceDisconnected = "service.disconnected"
	SubjectToolServerReady  = "toolserver.ready"
	SubjectToolServerDown   = "toolserver.down"

	// SubjectClientNotificationPrefix is followed by the owning client's
	// connection id, e.g. "client.notification.<id>".
	SubjectClientNotificationPrefix = "client.notification."

	// SubjectTaskNotification carries non-terminal task/service updates
	// (progress pings, task.notification, service.notification) that don't
	// cross a state-machine transition, keyed by ownerKind/ownerId in Data.
	SubjectTaskNotification = "task.notification"
)

// Event represents a message on the event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"` // component that produced the event
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a generated id and the current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler handles a single event delivery.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the internal publish/subscribe backbone used by the lifecycle
// notifier. Implementations: MemoryEventBus (default, in-process) and
// NATSEventBus (opt-in via EventsConfig.NATSUrl).
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern (supports NATS-style
	// "*" and ">" wildcards).
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe creates a queue subscription: only one member of the
	// named queue group receives each matching event.
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Request sends a request and waits for a single reply, or times out.
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)

	// Close releases the bus's resources.
	Close()

	// IsConnected reports whether the bus is ready to publish/subscribe.
	IsConnected() bool
}
