package kernel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/events/bus"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

type taskCreateContent struct {
	AgentName string                 `json:"agentName"`
	TaskData  map[string]interface{} `json:"taskData"`
}

// handleTaskCreate implements client -> agent task creation (spec §4.5):
// the task is created and acknowledged to the client immediately, then
// dispatched to the agent; the agent's send success determines whether the
// task starts in_progress or fails on the spot.
func handleTaskCreate(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in taskCreateContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed task.create: "+err.Error()))
		return err
	}

	agent, err := k.Agents.GetByName(in.AgentName)
	if err != nil || agent.Status != registry.StatusOnline {
		if err == nil {
			err = apperr.AgentNotFound(in.AgentName)
		}
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "AGENT_NOT_FOUND"))
		return err
	}

	ownerID := ""
	if c, ok := k.Clients.GetByConnectionID(connectionID); ok {
		ownerID = c.ID
	}

	taskType, _ := in.TaskData["taskType"].(string)
	t := k.AgentTasks.Create(&task.AgentTask{
		TaskID:    ids.NewPrefixed("task"),
		AgentID:   agent.ID,
		OwnerKind: task.OwnerClient,
		OwnerID:   ownerID,
		TaskType:  taskType,
		Input:     in.TaskData,
	})

	created, err := wire.NewReply(newID(), wire.TypeTaskCreated, msg.ID, map[string]interface{}{"taskId": t.TaskID})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, created)

	dispatchTaskToAgent(ctx, k, agent, t)
	return nil
}

// dispatchTaskToAgent sends task.execute to the agent and transitions the
// task to in_progress on delivery, or to failed if the agent's channel has
// since gone away.
func dispatchTaskToAgent(ctx context.Context, k *Kernel, agent *registry.Agent, t *task.AgentTask) {
	execute, err := wire.New(ids.New(), wire.TypeTaskExecute, map[string]interface{}{
		"taskId": t.TaskID,
		"type":   t.TaskType,
		"data":   t.Input,
	})
	if err != nil {
		_, _ = k.AgentTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, "failed to encode task.execute: "+err.Error(), "")
		return
	}

	if !k.AgentHub.Send(agent.ConnectionID, execute) {
		_, _ = k.AgentTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, "agent unreachable", "")
		return
	}
	_, _ = k.AgentTasks.UpdateStatus(ctx, t.TaskID, task.StatusInProgress, nil, "", "")
}

type taskStatusContent struct {
	TaskID  string                 `json:"taskId"`
	Status  string                 `json:"status"`
	Result  map[string]interface{} `json:"result"`
	Error   string                 `json:"error"`
	Details string                 `json:"details"`
}

// handleTaskResult and handleTaskStatus/handleTaskError share the same
// "agent reports task outcome" shape; status carries the target state
// explicitly in task.status, implicitly (completed/failed) for the other two.
func handleTaskResult(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	return applyTaskReport(ctx, k, connectionID, msg, task.StatusCompleted)
}

func handleTaskError(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	return applyTaskReport(ctx, k, connectionID, msg, task.StatusFailed)
}

// handleTaskStatus accepts task.status reports. A terminal "completed" status
// without a prior task.result is accepted as completion with an empty result,
// per spec's edge case for agents that only ever send status updates.
func handleTaskStatus(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in taskStatusContent
	if err := msg.DecodeContent(&in); err != nil {
		return err
	}

	next := task.Status(in.Status)
	if next == "" || next == task.StatusInProgress {
		// A non-terminal progress ping: publish as a notification only, no
		// state transition (already in_progress). The lifecycle notifier
		// fans it out to the owner as task.status.
		return publishAgentTaskNotification(ctx, k, in.TaskID, wire.TypeTaskStatus, map[string]interface{}{
			"taskId":  in.TaskID,
			"status":  in.Status,
			"details": in.Details,
		})
	}
	return applyTaskReport(ctx, k, connectionID, msg, next)
}

func applyTaskReport(ctx context.Context, k *Kernel, connectionID string, msg *wire.Message, next task.Status) error {
	var in taskStatusContent
	if err := msg.DecodeContent(&in); err != nil {
		return err
	}

	// UpdateStatus itself publishes task.state.changed with the full outcome
	// (result/error/details); the lifecycle notifier is the one that turns
	// that into a task.result/task.error/agent.response delivery, so there is
	// nothing left to forward here.
	if _, err := k.AgentTasks.UpdateStatus(ctx, in.TaskID, next, in.Result, in.Error, in.Details); err != nil {
		// A second terminal report (duplicate completion) lands here and is
		// logged-and-dropped rather than surfaced to the agent as an error.
		k.logger.WithTaskID(in.TaskID).Debug("dropped task transition", zap.Error(err))
	}
	return nil
}

// handleTaskNotification publishes an in-progress notification for the
// lifecycle notifier to fan out to the task's owner, without touching task
// state. Forwards the agent's content verbatim (an "attributed copy" per
// spec §4.5) rather than projecting onto a fixed set of fields, so
// agent-specific payloads like progress survive.
func handleTaskNotification(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in map[string]interface{}
	if err := msg.DecodeContent(&in); err != nil {
		return err
	}
	taskID, _ := in["taskId"].(string)
	return publishAgentTaskNotification(ctx, k, taskID, wire.TypeTaskNotification, in)
}

// publishAgentTaskNotification emits bus.SubjectTaskNotification carrying the
// task's current owner so the lifecycle notifier can deliver content to it
// without a second registry lookup.
func publishAgentTaskNotification(ctx context.Context, k *Kernel, taskID, msgType string, content map[string]interface{}) error {
	if k.Bus == nil {
		return nil
	}
	t, err := k.AgentTasks.Get(taskID)
	if err != nil {
		return err
	}
	evt := bus.NewEvent(bus.SubjectTaskNotification, "kernel", map[string]interface{}{
		"kind":      "agent",
		"taskId":    taskID,
		"ownerKind": string(t.OwnerKind),
		"ownerId":   t.OwnerID,
		"msgType":   msgType,
		"content":   content,
	})
	return k.Bus.Publish(ctx, bus.SubjectTaskNotification, evt)
}

// ownerConnection resolves an owner (client or agent) to its current hub
// kind and live connection id.
func (k *Kernel) ownerConnection(ownerKind task.OwnerKind, ownerID string) (wire.OriginKind, string, bool) {
	switch ownerKind {
	case task.OwnerClient:
		c, err := k.Clients.GetByID(ownerID)
		if err != nil || c.ConnectionID == "" {
			return "", "", false
		}
		return wire.OriginClient, c.ConnectionID, true
	case task.OwnerAgent:
		a, err := k.Agents.GetByID(ownerID)
		if err != nil || a.ConnectionID == "" {
			return "", "", false
		}
		return wire.OriginAgent, a.ConnectionID, true
	default:
		return "", "", false
	}
}

// handleAgentDisconnected fails every task currently in_progress on the
// disconnected agent after the configured grace period. A grace of 0 (the
// default) fails them immediately.
func (k *Kernel) handleAgentDisconnected(a *registry.Agent) {
	k.publishConnEvent(context.Background(), false, "agent", a.ID, a.Name)

	grace := k.cfg.AgentDisconnectGrace()
	fail := func() {
		for _, t := range k.AgentTasks.All() {
			if t.AgentID != a.ID || t.Status != task.StatusInProgress {
				continue
			}
			// UpdateStatus publishes task.state.changed; the lifecycle
			// notifier delivers the failure to the task's owner from there.
			_, _ = k.AgentTasks.UpdateStatus(context.Background(), t.TaskID, task.StatusFailed, nil, "agent disconnected", "")
		}
	}
	if grace <= 0 {
		fail()
		return
	}
	time.AfterFunc(grace, fail)
}
