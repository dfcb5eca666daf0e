package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRegistry_RegisterAndLookup(t *testing.T) {
	r := NewAgentRegistry()
	a := r.Register("a1", "builder", "conn1", []string{"build", "test"}, nil)
	assert.Equal(t, StatusOnline, a.Status)

	byID, err := r.GetByID("a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", byID.ID)

	byName, err := r.GetByName("builder")
	require.NoError(t, err)
	assert.Equal(t, "a1", byName.ID)

	byConn, ok := r.GetByConnectionID("conn1")
	require.True(t, ok)
	assert.Equal(t, "a1", byConn.ID)
}

func TestAgentRegistry_NameCollisionOfflinesOldRecord(t *testing.T) {
	r := NewAgentRegistry()
	r.Register("a1", "builder", "conn1", nil, nil)
	r.Register("a2", "builder", "conn2", nil, nil)

	old, err := r.GetByID("a1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, old.Status, "expected old record offline after name collision")
	assert.Empty(t, old.ConnectionID, "expected old record's connection unbound")

	_, ok := r.GetByConnectionID("conn1")
	assert.False(t, ok, "expected conn1 removed from the connection index")

	current, err := r.GetByName("builder")
	require.NoError(t, err)
	assert.Equal(t, "a2", current.ID, "expected builder to resolve to the newest registration")
}

func TestAgentRegistry_RemoveByConnectionID(t *testing.T) {
	r := NewAgentRegistry()
	r.Register("a1", "builder", "conn1", nil, nil)

	removed, ok := r.RemoveByConnectionID("conn1")
	require.True(t, ok)
	assert.Equal(t, StatusOffline, removed.Status)
	assert.Empty(t, removed.ConnectionID)

	_, ok = r.GetByConnectionID("conn1")
	assert.False(t, ok, "expected connection index entry removed")

	// The identity record itself must still resolve by id for historic tasks.
	still, err := r.GetByID("a1")
	require.NoError(t, err, "expected identity record to survive disconnect")
	assert.Equal(t, "a1", still.ID)
}

func TestAgentRegistry_All_Filters(t *testing.T) {
	r := NewAgentRegistry()
	r.Register("a1", "builder", "conn1", []string{"build"}, nil)
	r.Register("a2", "tester", "conn2", []string{"build", "test"}, nil)
	r.UpdateStatus("a1", StatusBusy, "running a task")

	busy := r.All(AgentFilter{Status: StatusBusy})
	require.Len(t, busy, 1)
	assert.Equal(t, "a1", busy[0].ID)

	withTest := r.All(AgentFilter{Capabilities: []string{"test"}})
	require.Len(t, withTest, 1)
	assert.Equal(t, "a2", withTest[0].ID)

	assert.Len(t, r.All(AgentFilter{}), 2)
}

func TestAgentRegistry_GetByID_NotFound(t *testing.T) {
	r := NewAgentRegistry()
	_, err := r.GetByID("missing")
	assert.Error(t, err)
}
