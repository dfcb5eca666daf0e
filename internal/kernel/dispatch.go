package kernel

import (
	"context"

	"github.com/agentmesh/orchestrator/pkg/wire"
)

// handlerFunc processes one inbound envelope already known to be neither a
// correlator reply nor a duplicate request id.
type handlerFunc func(ctx context.Context, k *Kernel, kind wire.OriginKind, connectionID string, msg *wire.Message) error

type dispatchKey struct {
	kind    wire.OriginKind
	msgType string
}

// dispatchTable is the kernel's static routing table, keyed by the
// (originKind, type) pair every inbound envelope is classified by. Kept as
// one flat map rather than per-kind switch statements so adding a new
// message type is a one-line addition, not a branch to thread through.
var dispatchTable = map[dispatchKey]handlerFunc{
	{wire.OriginAgent, wire.TypeAgentRegister}:     handleAgentRegister,
	{wire.OriginService, wire.TypeServiceRegister}: handleServiceRegister,
	{wire.OriginClient, wire.TypeClientRegister}:   handleClientRegister,

	{wire.OriginClient, wire.TypeAgentListRequest}: handleAgentListRequest,
	{wire.OriginAgent, wire.TypeAgentListRequest}:  handleAgentListRequest,
	{wire.OriginClient, wire.TypeServiceList}:      handleServiceList,
	{wire.OriginAgent, wire.TypeServiceList}:       handleServiceList,
	{wire.OriginAgent, wire.TypeMCPServersList}:    handleMCPServersList,
	{wire.OriginClient, wire.TypeMCPServersList}:   handleMCPServersList,
	{wire.OriginAgent, wire.TypeMCPToolsList}:      handleMCPToolsList,
	{wire.OriginClient, wire.TypeMCPToolsList}:     handleMCPToolsList,

	{wire.OriginClient, wire.TypeTaskCreate}: handleTaskCreate,

	{wire.OriginAgent, wire.TypeTaskStatus}:       handleTaskStatus,
	{wire.OriginAgent, wire.TypeTaskResult}:       handleTaskResult,
	{wire.OriginAgent, wire.TypeTaskError}:        handleTaskError,
	{wire.OriginAgent, wire.TypeTaskNotification}: handleTaskNotification,

	{wire.OriginAgent, wire.TypeAgentRequest}: handleAgentRequest,

	{wire.OriginAgent, wire.TypeServiceTaskRequest}: handleServiceTaskRequest,
	{wire.OriginService, wire.TypeServiceTaskResult}: handleServiceTaskResult,
	{wire.OriginService, wire.TypeServiceNotification}: handleServiceNotification,

	{wire.OriginAgent, wire.TypeMCPToolExecute}: handleMCPToolExecute,

	{wire.OriginAgent, wire.TypePing}:   handlePing,
	{wire.OriginService, wire.TypePing}: handlePing,
	{wire.OriginClient, wire.TypePing}:  handlePing,
}
