// Package task holds the AgentTask and ServiceTask records and the state
// machine that enforces their legal transitions. Tasks are created by the
// kernel, mutated only by the kernel, and never deleted — disconnected
// owners and agents still need historic tasks to resolve cleanly.
package task

import "time"

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether status is one from which no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// legalTransitions encodes the state machine from spec:
//
//	pending -> in_progress -> completed
//	                        -> failed
//	pending -> failed | cancelled
//	in_progress -> cancelled
var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusFailed:      true,
		StatusCancelled:   true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	return legalTransitions[from][to]
}

// OwnerKind identifies who created and owns a task.
type OwnerKind string

const (
	OwnerClient OwnerKind = "client"
	OwnerAgent  OwnerKind = "agent"
)

// AgentTask is a unit of work dispatched to an agent.
type AgentTask struct {
	TaskID        string
	AgentID       string
	OwnerKind     OwnerKind
	OwnerID       string
	TaskType      string
	Input         map[string]interface{}
	Status        Status
	Result        map[string]interface{}
	Error         string
	StatusDetails string
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	CompletedAt   time.Time
}

// ServiceTask is a unit of work dispatched to a service, always owned
// (directly or transitively) by an agent.
type ServiceTask struct {
	TaskID        string
	ServiceID     string
	FunctionName  string
	OwnerKind     OwnerKind
	OwnerID       string
	Params        map[string]interface{}
	Status        Status
	Result        map[string]interface{}
	Error         string
	StatusDetails string
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	CompletedAt   time.Time
}
