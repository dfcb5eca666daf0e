package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReply_CarriesRequestID(t *testing.T) {
	msg, err := NewReply("id1", TypeTaskResult, "req1", map[string]interface{}{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, "req1", msg.RequestID)
	assert.Equal(t, TypeTaskResult, msg.Type)
}

func TestIsError_ByType(t *testing.T) {
	msg := NewError("id1", "req1", "boom")
	assert.True(t, msg.IsError())
	assert.Equal(t, "boom", msg.ErrorString())
}

func TestIsError_ByContentField(t *testing.T) {
	msg, err := New("id1", TypeTaskResult, map[string]interface{}{"error": "something failed"})
	require.NoError(t, err)
	assert.True(t, msg.IsError(), "expected a non-error-typed message with an error field to report IsError() true")
}

func TestIsError_False(t *testing.T) {
	msg, err := New("id1", TypeTaskResult, map[string]interface{}{"result": "ok"})
	require.NoError(t, err)
	assert.False(t, msg.IsError())
}

func TestDecodeContent(t *testing.T) {
	msg, err := New("id1", TypeTaskStatus, map[string]interface{}{"taskId": "t1", "status": "in_progress"})
	require.NoError(t, err)

	var decoded struct {
		TaskID string `json:"taskId"`
		Status string `json:"status"`
	}
	require.NoError(t, msg.DecodeContent(&decoded))
	assert.Equal(t, "t1", decoded.TaskID)
	assert.Equal(t, "in_progress", decoded.Status)
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, TypeMCPServersList, Canonicalize("mcp.servers.list.request"))
	assert.Equal(t, TypeTaskCreate, Canonicalize(TypeTaskCreate), "a non-aliased type should pass through unchanged")
}
