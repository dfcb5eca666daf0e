package kernel

import (
	"context"

	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

type agentRegisterContent struct {
	Name         string                 `json:"name"`
	Capabilities []string               `json:"capabilities"`
	Manifest     map[string]interface{} `json:"manifest"`
}

func handleAgentRegister(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in agentRegisterContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed agent.register: "+err.Error()))
		return err
	}

	id := ids.NewPrefixed("agent")
	a := k.Agents.Register(id, in.Name, connectionID, in.Capabilities, in.Manifest)
	k.Conns.Bind(connectionID, a.ID)

	reply, err := wire.NewReply(newID(), wire.TypeAgentRegistered, msg.ID, map[string]interface{}{
		"id":   a.ID,
		"name": a.Name,
	})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	k.publishConnEvent(ctx, true, "agent", a.ID, a.Name)
	return nil
}

type serviceRegisterContent struct {
	Name         string                  `json:"name"`
	Capabilities []string                `json:"capabilities"`
	Manifest     map[string]interface{}  `json:"manifest"`
	Tools        []registry.ToolDescriptor `json:"tools"`
}

func handleServiceRegister(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in serviceRegisterContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed service.register: "+err.Error()))
		return err
	}

	id := ids.NewPrefixed("svc")
	s := k.Services.Register(id, in.Name, connectionID, in.Capabilities, in.Manifest, in.Tools)
	k.Conns.Bind(connectionID, s.ID)

	reply, err := wire.NewReply(newID(), wire.TypeServiceRegistered, msg.ID, map[string]interface{}{
		"id":   s.ID,
		"name": s.Name,
	})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	k.publishConnEvent(ctx, true, "service", s.ID, s.Name)
	return nil
}

type clientRegisterContent struct {
	ID string `json:"id"`
}

func handleClientRegister(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in clientRegisterContent
	_ = msg.DecodeContent(&in)

	id := in.ID
	if id == "" {
		id = ids.NewPrefixed("client")
	}
	c := k.Clients.Register(id, connectionID)
	k.Conns.Bind(connectionID, c.ID)

	reply, err := wire.NewReply(newID(), wire.TypeClientRegistered, msg.ID, map[string]interface{}{
		"id": c.ID,
	})
	if err != nil {
		return err
	}
	k.reply(kind, connectionID, reply)
	return nil
}
