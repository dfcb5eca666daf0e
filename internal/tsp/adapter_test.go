package tsp

import (
	"context"
	"testing"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
	"github.com/agentmesh/orchestrator/internal/common/config"
	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapterTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.New(logger.Config{Level: "debug", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestAdapter_RegisterAndLookup(t *testing.T) {
	a := NewAdapter(newAdapterTestLogger(t))
	s := a.Register("filesystem", LaunchSpec{Command: "mcp-filesystem", Type: "custom"})
	assert.Equal(t, StatusRegistered, s.Status)

	byID, err := a.GetByID(s.ServerID)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", byID.Name)

	byName, err := a.GetByName("filesystem")
	require.NoError(t, err)
	assert.Equal(t, s.ServerID, byName.ServerID)
}

func TestAdapter_GetByID_NotFound(t *testing.T) {
	a := NewAdapter(newAdapterTestLogger(t))
	_, err := a.GetByID("missing")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeServerNotFound, apperr.CodeOf(err))
}

func TestAdapter_RegisterDeclared(t *testing.T) {
	a := NewAdapter(newAdapterTestLogger(t))
	a.RegisterDeclared([]config.ToolServerEntry{
		{Name: "filesystem", Type: "custom", Command: "mcp-filesystem"},
		{Name: "search", Type: "custom", Command: "mcp-search", Args: []string{"--port", "0"}},
	})

	servers := a.List()
	require.Len(t, servers, 2)

	byName, err := a.GetByName("search")
	require.NoError(t, err)
	assert.Equal(t, "mcp-search", byName.LaunchSpec.Command)
	assert.Equal(t, StatusRegistered, byName.Status, "declared servers must not be started eagerly")
}

func TestAdapter_CallTool_UnknownServer(t *testing.T) {
	a := NewAdapter(newAdapterTestLogger(t))
	_, err := a.CallTool(context.Background(), "missing", "read_file", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeServerNotFound, apperr.CodeOf(err))
}
