package tsp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
	"github.com/agentmesh/orchestrator/internal/common/config"
	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/common/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	stopGrace        = 5 * time.Second
)

// Adapter is the Tool Server Protocol adapter: it owns every declared tool
// server's subprocess lifecycle and serializes agent-initiated tool calls
// onto the matching subprocess.
type Adapter struct {
	reg    *registry
	logger *logger.Logger
}

// NewAdapter returns an Adapter with no tool servers registered yet.
func NewAdapter(log *logger.Logger) *Adapter {
	return &Adapter{reg: newRegistry(), logger: log}
}

// RegisterDeclared pre-registers the tool servers named in configuration.
// They are not started until first use.
func (a *Adapter) RegisterDeclared(entries []config.ToolServerEntry) {
	for _, e := range entries {
		a.Register(e.Name, LaunchSpec{Command: e.Command, Args: e.Args, Path: e.Path, Type: e.Type})
	}
}

// Register declares a new tool server, in the "registered" (not started) state.
func (a *Adapter) Register(name string, spec LaunchSpec) *ToolServer {
	return a.reg.register(ids.NewPrefixed("srv"), name, spec)
}

// List returns every declared tool server's public record.
func (a *Adapter) List() []*ToolServer {
	return a.reg.all()
}

// GetByID resolves a tool server record.
func (a *Adapter) GetByID(id string) (*ToolServer, error) {
	s, ok := a.reg.get(id)
	if !ok {
		return nil, apperr.ServerNotFound(id)
	}
	return s, nil
}

// GetByName resolves a tool server record by its declared name.
func (a *Adapter) GetByName(name string) (*ToolServer, error) {
	s, ok := a.reg.getByName(name)
	if !ok {
		return nil, apperr.ServerNotFound(name)
	}
	return s, nil
}

// ListTools returns the server's cached tool catalogue, connecting it first
// if it is not already online.
func (a *Adapter) ListTools(ctx context.Context, serverID string) ([]ToolDescriptor, error) {
	s, err := a.GetByID(serverID)
	if err != nil {
		return nil, err
	}
	if err := a.ensureOnline(ctx, s); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Tools, nil
}

// CallTool invokes a tool on the given server, connecting it first if
// necessary. A tool-level error is returned to the caller as an error result
// without marking the server itself unhealthy — it stays online.
func (a *Adapter) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]interface{}) (*CallToolResult, error) {
	s, err := a.GetByID(serverID)
	if err != nil {
		return nil, err
	}
	if err := a.ensureOnline(ctx, s); err != nil {
		return nil, err
	}

	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil, apperr.ToolError("tool server has no active subprocess", nil)
	}

	raw, err := proc.call(ctx, MethodCallTool, CallToolParams{Name: toolName, Arguments: arguments}, 60*time.Second)
	if err != nil {
		return &CallToolResult{IsError: true, Result: err.Error()}, apperr.ToolError("tool call failed: "+toolName, err)
	}

	var result CallToolResult
	if err := decodeInto(raw, &result); err != nil {
		return nil, apperr.Internal("failed to decode tool result", err)
	}
	return &result, nil
}

// ensureOnline spawns and handshakes the server's subprocess if it isn't
// already online, per the registered -> connecting -> online lifecycle.
func (a *Adapter) ensureOnline(ctx context.Context, s *ToolServer) error {
	s.mu.Lock()
	if s.Status == StatusOnline && s.proc != nil {
		s.mu.Unlock()
		return nil
	}
	s.Status = StatusConnecting
	s.mu.Unlock()

	proc, err := startProcess(ctx, s.LaunchSpec, a.logger.WithServerID(s.ServerID))
	if err != nil {
		s.mu.Lock()
		s.Status = StatusError
		s.StatusDetail = err.Error()
		s.mu.Unlock()
		return apperr.ToolError("failed to spawn tool server "+s.Name, err)
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if _, err := proc.call(hctx, MethodInitialize, InitializeParams{
		ProtocolVersion: "2024-11-05",
		ClientInfo:      map[string]string{"name": "orchestrator", "version": "1.0.0"},
	}, handshakeTimeout); err != nil {
		s.mu.Lock()
		s.Status = StatusError
		s.StatusDetail = err.Error()
		s.mu.Unlock()
		proc.stop(ctx, stopGrace)
		return apperr.ToolError("handshake failed for tool server "+s.Name, err)
	}

	raw, err := proc.call(hctx, MethodListTools, struct{}{}, handshakeTimeout)
	if err != nil {
		s.mu.Lock()
		s.Status = StatusError
		s.StatusDetail = err.Error()
		s.mu.Unlock()
		proc.stop(ctx, stopGrace)
		return apperr.ToolError("list tools failed for tool server "+s.Name, err)
	}

	var tools ListToolsResult
	if err := decodeInto(raw, &tools); err != nil {
		s.mu.Lock()
		s.Status = StatusError
		s.mu.Unlock()
		proc.stop(ctx, stopGrace)
		return apperr.Internal("failed to decode tool list", err)
	}

	s.mu.Lock()
	s.proc = proc
	s.Tools = tools.Tools
	s.Status = StatusOnline
	s.StatusDetail = ""
	s.mu.Unlock()

	a.logger.Info("tool server online", zap.String("server", s.Name), zap.Int("tools", len(tools.Tools)))
	return nil
}

// Shutdown terminates every connected subprocess.
func (a *Adapter) Shutdown(ctx context.Context) {
	for _, s := range a.reg.all() {
		s.mu.Lock()
		proc := s.proc
		s.proc = nil
		s.Status = StatusDisconnected
		s.mu.Unlock()
		if proc != nil {
			proc.stop(ctx, stopGrace)
		}
	}
}

func decodeInto(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty result")
	}
	return json.Unmarshal(raw, v)
}
