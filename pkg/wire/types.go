package wire

// Message type vocabulary. These are the second half of the (originKind,
// type) pair the kernel's dispatch table is keyed by.
const (
	// Identity
	TypeOrchestratorWelcome = "orchestrator.welcome"
	TypeAgentRegister       = "agent.register"
	TypeAgentRegistered     = "agent.registered"
	TypeServiceRegister     = "service.register"
	TypeServiceRegistered   = "service.registered"
	TypeClientRegister      = "client.register"
	TypeClientRegistered    = "client.registered"

	// Discovery
	TypeAgentListRequest        = "agent.list.request"
	TypeAgentListResponse       = "agent.list.response"
	TypeServiceList             = "service.list"
	TypeServiceListResult       = "service.list.result"
	TypeMCPServersList          = "mcp.servers.list"
	TypeMCPServersListResponse  = "mcp.servers.list.response"
	TypeMCPToolsList            = "mcp.tools.list"
	TypeMCPToolsListResponse    = "mcp.tools.list.response"

	// Tasks
	TypeTaskCreate        = "task.create"
	TypeTaskCreated       = "task.created"
	TypeTaskExecute       = "task.execute"
	TypeTaskStatus        = "task.status"
	TypeTaskResult        = "task.result"
	TypeTaskError         = "task.error"
	TypeTaskNotification  = "task.notification"
	TypeNotificationRecvd = "notification.received"

	// Agent-to-agent
	TypeAgentRequest         = "agent.request"
	TypeAgentRequestAccepted = "agent.request.accepted"
	TypeAgentResponse        = "agent.response"

	// Services
	TypeServiceTaskRequest = "service.task.request"
	TypeServiceTaskExecute = "service.task.execute"
	TypeServiceTaskResult  = "service.task.result"
	TypeServiceNotification = "service.notification"

	// Tools
	TypeMCPToolExecute        = "mcp.tool.execute"
	TypeMCPToolExecutionResult = "mcp.tool.execution.result"

	// Liveness
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// legacyAliases maps accepted legacy type names onto their canonical form, so
// the kernel's dispatch table stays one name per handler.
var legacyAliases = map[string]string{
	"mcp.servers.list.request": TypeMCPServersList,
	"mcp.tools.list.request":   TypeMCPToolsList,
}

// Canonicalize resolves legacy type aliases to their canonical type name.
func Canonicalize(msgType string) string {
	if canon, ok := legacyAliases[msgType]; ok {
		return canon
	}
	return msgType
}

// OriginKind identifies which hub an inbound envelope arrived on.
type OriginKind string

const (
	OriginAgent   OriginKind = "agent"
	OriginService OriginKind = "service"
	OriginClient  OriginKind = "client"
)
