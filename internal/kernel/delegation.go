package kernel

import (
	"context"

	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

type agentRequestContent struct {
	TargetAgentName string                 `json:"targetAgentName"`
	TaskData        map[string]interface{} `json:"taskData"`
}

// handleAgentRequest implements agent -> agent delegation (spec §4.5): one
// agent asks another to perform work. The flow mirrors task.create but the
// task is owned by the requesting agent, acknowledged with
// agent.request.accepted, and its terminal result is delivered back as
// agent.response{requestId} (see the lifecycle notifier's delegation
// override) instead of task.result/task.error.
func handleAgentRequest(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in agentRequestContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed agent.request: "+err.Error()))
		return err
	}

	requester, ok := k.Agents.GetByConnectionID(connectionID)
	if !ok {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "requesting agent is not registered"))
		return nil
	}

	target, err := k.Agents.GetByName(in.TargetAgentName)
	if err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, err.Error()))
		return err
	}

	taskType, _ := in.TaskData["taskType"].(string)
	t := k.AgentTasks.Create(&task.AgentTask{
		TaskID:    ids.NewPrefixed("task"),
		AgentID:   target.ID,
		OwnerKind: task.OwnerAgent,
		OwnerID:   requester.ID,
		TaskType:  taskType,
		Input:     in.TaskData,
	})
	k.registerDelegation(t.TaskID, msg.ID)

	accepted, err := wire.NewReply(newID(), wire.TypeAgentRequestAccepted, msg.ID, map[string]interface{}{"taskId": t.TaskID})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, accepted)

	dispatchTaskToAgent(ctx, k, target, t)
	return nil
}
