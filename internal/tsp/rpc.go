// Package tsp implements the Tool Server Protocol adapter: it spawns
// subprocess tool servers, speaks Model-Context-Protocol-compatible
// JSON-RPC 2.0 over their stdio, and exposes list-tools/call-tool on behalf
// of agents. Wire shape follows the generic JSON-RPC 2.0 envelope defined in
// pkg/acp/jsonrpc.
package tsp

import "github.com/agentmesh/orchestrator/pkg/acp/jsonrpc"

// TSP methods used by the adapter.
const (
	MethodInitialize = "initialize"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
)

// InitializeParams is sent once per subprocess as the first request.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	ClientInfo      map[string]string      `json:"clientInfo"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
}

// InitializeResult is the handshake reply.
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	ServerInfo      map[string]string      `json:"serverInfo"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
}

// ListToolsResult enumerates the tools a server exposes.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ToolDescriptor describes one callable tool.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// CallToolParams invokes one tool.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult is the tool's reply.
type CallToolResult struct {
	Result   interface{}            `json:"result,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	IsError  bool                   `json:"isError,omitempty"`
}

// Request/Response/Error/Notification are re-exported for callers that want
// to build frames without importing jsonrpc directly.
type (
	Request      = jsonrpc.Request
	Response     = jsonrpc.Response
	RPCError     = jsonrpc.Error
	Notification = jsonrpc.Notification
)
