package kernel

import (
	"context"

	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

type listFilterContent struct {
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
	Name         string   `json:"name"`
}

func handleAgentListRequest(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in listFilterContent
	_ = msg.DecodeContent(&in)

	agents := k.Agents.All(registry.AgentFilter{
		Status:       registry.Status(in.Status),
		Capabilities: in.Capabilities,
		Name:         in.Name,
	})

	out := make([]map[string]interface{}, 0, len(agents))
	for _, a := range agents {
		out = append(out, map[string]interface{}{
			"id":           a.ID,
			"name":         a.Name,
			"status":       a.Status,
			"capabilities": a.Capabilities,
		})
	}

	reply, err := wire.NewReply(newID(), wire.TypeAgentListResponse, msg.ID, map[string]interface{}{"agents": out})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	return nil
}

func handleServiceList(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in listFilterContent
	_ = msg.DecodeContent(&in)

	services := k.Services.All(registry.ServiceFilter{
		Status:       registry.Status(in.Status),
		Capabilities: in.Capabilities,
		Name:         in.Name,
	})

	out := make([]map[string]interface{}, 0, len(services))
	for _, s := range services {
		out = append(out, map[string]interface{}{
			"id":           s.ID,
			"name":         s.Name,
			"status":       s.Status,
			"capabilities": s.Capabilities,
			"tools":        s.Tools,
		})
	}

	reply, err := wire.NewReply(newID(), wire.TypeServiceListResult, msg.ID, map[string]interface{}{"services": out})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	return nil
}

func handleMCPServersList(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	servers := k.Tools.List()
	out := make([]map[string]interface{}, 0, len(servers))
	for _, s := range servers {
		out = append(out, map[string]interface{}{
			"id":     s.ServerID,
			"name":   s.Name,
			"status": s.Status,
		})
	}
	reply, err := wire.NewReply(newID(), wire.TypeMCPServersListResponse, msg.ID, map[string]interface{}{"servers": out})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	return nil
}

type mcpToolsListContent struct {
	ServerID string `json:"serverId"`
}

func handleMCPToolsList(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in mcpToolsListContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed mcp.tools.list: "+err.Error()))
		return err
	}

	tools, err := k.Tools.ListTools(ctx, in.ServerID)
	if err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, err.Error()))
		return err
	}

	reply, err := wire.NewReply(newID(), wire.TypeMCPToolsListResponse, msg.ID, map[string]interface{}{
		"serverId": in.ServerID,
		"tools":    tools,
	})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	return nil
}
