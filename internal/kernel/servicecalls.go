package kernel

import (
	"context"

	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/correlator"
	"github.com/agentmesh/orchestrator/internal/events/bus"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

type serviceTaskRequestContent struct {
	ServiceID    string                 `json:"serviceId"`
	ServiceName  string                 `json:"serviceName"`
	FunctionName string                 `json:"functionName"`
	Params       map[string]interface{} `json:"params"`
	// Async requests the kernel return task.created immediately and leave the
	// later service.task.result to the lifecycle notifier, instead of the
	// default behavior of awaiting the result itself and replying directly.
	Async bool `json:"async"`
}

// resolveService looks up a service by id (preferred when present) or name,
// per spec §4.5's "serviceId|serviceName" target selector.
func resolveService(k *Kernel, in serviceTaskRequestContent) (*registry.Service, error) {
	if in.ServiceID != "" {
		return k.Services.GetByID(in.ServiceID)
	}
	return k.Services.GetByName(in.ServiceName)
}

// handleServiceTaskRequest implements agent -> service calls (spec §4.5): an
// agent invokes a named function on a service. The call is always owned by
// the requesting agent. By default the kernel awaits the service's result
// itself, via the service connection's correlator, and answers the original
// request directly; when async is true it instead replies with task.created
// immediately; handleServiceTaskResult records the eventual result on the
// task, and the lifecycle notifier delivers it to the owner as
// service.task.result.
func handleServiceTaskRequest(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in serviceTaskRequestContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed service.task.request: "+err.Error()))
		return err
	}

	requester, ok := k.Agents.GetByConnectionID(connectionID)
	if !ok {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "requesting agent is not registered"))
		return nil
	}

	svc, err := resolveService(k, in)
	if err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, err.Error()))
		return err
	}

	t := k.ServiceTasks.Create(&task.ServiceTask{
		TaskID:       ids.NewPrefixed("stask"),
		ServiceID:    svc.ID,
		FunctionName: in.FunctionName,
		OwnerKind:    task.OwnerAgent,
		OwnerID:      requester.ID,
		Params:       in.Params,
	})

	if in.Async {
		created, err := wire.NewReply(newID(), wire.TypeTaskCreated, msg.ID, map[string]interface{}{"taskId": t.TaskID})
		if err != nil {
			return err
		}
		k.reply(kind, connectionID, created)
		dispatchServiceTask(ctx, k, svc, t)
		return nil
	}

	return callServiceSync(ctx, k, kind, connectionID, msg.ID, svc, t)
}

// callServiceSync sends service.task.execute and blocks on the service
// connection's correlator for the matching service.task.result, replying to
// the original caller directly once it arrives (or on timeout/disconnect).
func callServiceSync(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID, requestMsgID string, svc *registry.Service, t *task.ServiceTask) error {
	executeID := ids.New()
	execute, err := wire.New(executeID, wire.TypeServiceTaskExecute, map[string]interface{}{
		"taskId":       t.TaskID,
		"functionName": t.FunctionName,
		"params":       t.Params,
	})
	if err != nil {
		_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, "failed to encode service.task.execute: "+err.Error(), "")
		k.reply(kind, connectionID, wire.NewError(newID(), requestMsgID, err.Error()))
		return err
	}

	if !k.ServiceHub.Send(svc.ConnectionID, execute) {
		_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, "service unreachable", "")
		k.reply(kind, connectionID, wire.NewError(newID(), requestMsgID, "service unreachable"))
		return nil
	}
	_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusInProgress, nil, "", "")

	reply, err := k.correlatorFor(svc.ConnectionID).Await(ctx, executeID, correlator.Options{
		Timeout:    k.cfg.ToolCallTimeout(),
		TypeFilter: wire.TypeServiceTaskResult,
	})
	if err != nil {
		_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, err.Error(), "")
		k.reply(kind, connectionID, wire.NewError(newID(), requestMsgID, err.Error()))
		return nil
	}

	var result serviceTaskResultContent
	_ = reply.DecodeContent(&result)

	next := task.StatusCompleted
	if result.Error != "" {
		next = task.StatusFailed
	}
	_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, next, result.Result, result.Error, "")

	out, err := wire.NewReply(newID(), wire.TypeServiceTaskResult, requestMsgID, map[string]interface{}{
		"taskId": t.TaskID,
		"status": string(next),
		"result": result.Result,
		"error":  result.Error,
	})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, out)
	return nil
}

func dispatchServiceTask(ctx context.Context, k *Kernel, svc *registry.Service, t *task.ServiceTask) {
	execute, err := wire.New(ids.New(), wire.TypeServiceTaskExecute, map[string]interface{}{
		"taskId":       t.TaskID,
		"functionName": t.FunctionName,
		"params":       t.Params,
	})
	if err != nil {
		_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, "failed to encode service.task.execute: "+err.Error(), "")
		return
	}

	if !k.ServiceHub.Send(svc.ConnectionID, execute) {
		_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusFailed, nil, "service unreachable", "")
		return
	}
	_, _ = k.ServiceTasks.UpdateStatus(ctx, t.TaskID, task.StatusInProgress, nil, "", "")
}

type serviceTaskResultContent struct {
	TaskID string                 `json:"taskId"`
	Status string                 `json:"status"`
	Result map[string]interface{} `json:"result"`
	Error  string                 `json:"error"`
}

// handleServiceTaskResult completes a ServiceTask. UpdateStatus itself
// publishes task.state.changed with the full outcome; the lifecycle notifier
// is what delivers it to the owning agent as service.task.result.
func handleServiceTaskResult(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in serviceTaskResultContent
	if err := msg.DecodeContent(&in); err != nil {
		return err
	}

	next := task.StatusCompleted
	if in.Error != "" || in.Status == string(task.StatusFailed) {
		next = task.StatusFailed
	}

	if _, err := k.ServiceTasks.UpdateStatus(ctx, in.TaskID, next, in.Result, in.Error, ""); err != nil {
		k.logger.WithTaskID(in.TaskID).Debug("dropped service task transition")
	}
	return nil
}

type serviceNotificationContent struct {
	TaskID  string `json:"taskId"`
	Details string `json:"details"`
}

// handleServiceNotification publishes a service's in-progress update for the
// lifecycle notifier to fan out to the owning agent, without changing task
// state.
func handleServiceNotification(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in serviceNotificationContent
	if err := msg.DecodeContent(&in); err != nil {
		return err
	}
	t, err := k.ServiceTasks.Get(in.TaskID)
	if err != nil {
		return err
	}
	if k.Bus == nil {
		return nil
	}
	evt := bus.NewEvent(bus.SubjectTaskNotification, "kernel", map[string]interface{}{
		"kind":      "service",
		"taskId":    t.TaskID,
		"ownerKind": string(t.OwnerKind),
		"ownerId":   t.OwnerID,
		"msgType":   wire.TypeServiceNotification,
		"content": map[string]interface{}{
			"taskId":  t.TaskID,
			"details": in.Details,
		},
	})
	return k.Bus.Publish(ctx, bus.SubjectTaskNotification, evt)
}
