package kernel

import (
	"context"
	"fmt"

	"github.com/agentmesh/orchestrator/pkg/wire"
)

type mcpToolExecuteContent struct {
	ServerID   string                 `json:"serverId"`
	ToolName   string                 `json:"toolName"`
	Parameters map[string]interface{} `json:"parameters"`
}

// handleMCPToolExecute implements agent -> tool server invocation (spec
// §4.5): the call is made synchronously against the TSP adapter, which
// handshakes the subprocess on first use, and the result (or tool-level
// error) is replied directly — there is no separate task record for tool
// calls, since the TSP boundary already serializes and bounds them.
func handleMCPToolExecute(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error {
	var in mcpToolExecuteContent
	if err := msg.DecodeContent(&in); err != nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, "malformed mcp.tool.execute: "+err.Error()))
		return err
	}

	result, err := k.Tools.CallTool(ctx, in.ServerID, in.ToolName, in.Parameters)
	if err != nil && result == nil {
		k.reply(kind, connectionID, wire.NewError(newID(), msg.ID, err.Error()))
		return err
	}

	errMsg := ""
	if result.IsError {
		if err != nil {
			errMsg = err.Error()
		} else {
			errMsg = fmt.Sprintf("%v", result.Result)
		}
	}

	reply, rerr := wire.NewReply(newID(), wire.TypeMCPToolExecutionResult, msg.ID, map[string]interface{}{
		"status": toolStatus(result.IsError),
		"result": result.Result,
		"error":  errMsg,
	})
	if rerr != nil {
		return rerr
	}
	k.reply(kind, connectionID, reply)
	return nil
}

// toolStatus maps the adapter's boolean error flag onto the spec's
// status:"success"|"error" vocabulary (§4.5, S5).
func toolStatus(isError bool) string {
	if isError {
		return "error"
	}
	return "success"
}
