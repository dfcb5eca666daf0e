package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentmesh/orchestrator/internal/common/config"
	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/internal/correlator"
	"github.com/agentmesh/orchestrator/internal/events/bus"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/internal/tsp"
	"github.com/agentmesh/orchestrator/pkg/wire"
	"github.com/stretchr/testify/require"
)

// fakeHub is a Sender that records every message sent to it, keyed by
// connection id, so tests can assert on replies without a real websocket.
type fakeHub struct {
	mu   sync.Mutex
	sent map[string][]*wire.Message
	// fail, if set, makes Send report failure for this connection id without
	// recording anything, simulating an unreachable peer.
	fail map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{sent: make(map[string][]*wire.Message), fail: make(map[string]bool)}
}

func (f *fakeHub) Send(connectionID string, msg *wire.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[connectionID] {
		return false
	}
	f.sent[connectionID] = append(f.sent[connectionID], msg)
	return true
}

func (f *fakeHub) last(connectionID string) *wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[connectionID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (f *fakeHub) all(connectionID string) []*wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.Message(nil), f.sent[connectionID]...)
}

func testLogger(t *testing.T) *logger.Logger {
	log, err := logger.New(logger.Config{Level: "debug", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

type testKernel struct {
	k          *Kernel
	agentHub   *fakeHub
	serviceHub *fakeHub
	clientHub  *fakeHub
	eventBus   bus.EventBus
}

func newTestKernel(t *testing.T) *testKernel {
	log := testLogger(t)
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	agents := registry.NewAgentRegistry()
	services := registry.NewServiceRegistry()
	clients := registry.NewClientRegistry()
	conns := registry.NewConnectionRegistry()
	agentTasks := task.NewAgentTaskRegistry(eventBus)
	serviceTasks := task.NewServiceTaskRegistry(eventBus)
	tools := tsp.NewAdapter(log)

	cfg := config.CorrelatorConfig{}
	k := New(agents, services, clients, conns, agentTasks, serviceTasks, tools, eventBus, cfg, log)

	agentHub := newFakeHub()
	serviceHub := newFakeHub()
	clientHub := newFakeHub()
	k.SetHubs(agentHub, serviceHub, clientHub)

	return &testKernel{k: k, agentHub: agentHub, serviceHub: serviceHub, clientHub: clientHub, eventBus: eventBus}
}

func registerAgent(t *testing.T, tk *testKernel, connID, name string) {
	t.Helper()
	msg, err := wire.New("reg1", wire.TypeAgentRegister, map[string]interface{}{"name": name})
	require.NoError(t, err)
	tk.k.Route(context.Background(), wire.OriginAgent, connID, msg)
}

func registerClient(t *testing.T, tk *testKernel, connID string) string {
	t.Helper()
	msg, err := wire.New("creg1", wire.TypeClientRegister, map[string]interface{}{})
	require.NoError(t, err)
	tk.k.Route(context.Background(), wire.OriginClient, connID, msg)

	reply := tk.clientHub.last(connID)
	require.NotNil(t, reply)
	require.Equal(t, wire.TypeClientRegistered, reply.Type)

	var content struct {
		ID string `json:"id"`
	}
	require.NoError(t, reply.DecodeContent(&content))
	return content.ID
}

func TestKernel_TaskCreate_HappyPath(t *testing.T) {
	tk := newTestKernel(t)
	registerAgent(t, tk, "agent-conn-1", "builder")
	registerClient(t, tk, "client-conn-1")

	createMsg, err := wire.New("task-create-1", wire.TypeTaskCreate, map[string]interface{}{
		"agentName": "builder",
		"taskData": map[string]interface{}{
			"taskType": "build",
			"target":   "all",
		},
	})
	require.NoError(t, err)
	tk.k.Route(context.Background(), wire.OriginClient, "client-conn-1", createMsg)

	createdReply := tk.clientHub.last("client-conn-1")
	require.NotNil(t, createdReply)
	require.Equal(t, wire.TypeTaskCreated, createdReply.Type)
	require.Equal(t, "task-create-1", createdReply.RequestID)

	executeMsg := tk.agentHub.last("agent-conn-1")
	require.NotNil(t, executeMsg)
	require.Equal(t, wire.TypeTaskExecute, executeMsg.Type)

	var createdContent struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, createdReply.DecodeContent(&createdContent))

	stored, err := tk.k.AgentTasks.Get(createdContent.TaskID)
	require.NoError(t, err)
	require.Equal(t, task.StatusInProgress, stored.Status)
}

func TestKernel_TaskCreate_AgentNotFound(t *testing.T) {
	tk := newTestKernel(t)
	registerClient(t, tk, "client-conn-1")

	createMsg, err := wire.New("task-create-2", wire.TypeTaskCreate, map[string]interface{}{
		"agentName": "nonexistent",
		"taskData":  map[string]interface{}{"taskType": "build"},
	})
	require.NoError(t, err)
	tk.k.Route(context.Background(), wire.OriginClient, "client-conn-1", createMsg)

	reply := tk.clientHub.last("client-conn-1")
	require.NotNil(t, reply)
	require.True(t, reply.IsError(), "expected an error reply for an unknown agent")
	require.Equal(t, "task-create-2", reply.RequestID)
}

func TestKernel_TaskCreate_AgentUnreachableFailsTask(t *testing.T) {
	tk := newTestKernel(t)
	registerAgent(t, tk, "agent-conn-1", "builder")
	registerClient(t, tk, "client-conn-1")
	tk.agentHub.fail["agent-conn-1"] = true

	createMsg, _ := wire.New("task-create-3", wire.TypeTaskCreate, map[string]interface{}{
		"agentName": "builder",
		"taskData":  map[string]interface{}{"taskType": "build"},
	})
	tk.k.Route(context.Background(), wire.OriginClient, "client-conn-1", createMsg)

	createdReply := tk.clientHub.last("client-conn-1")
	var content struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, createdReply.DecodeContent(&content))

	stored, err := tk.k.AgentTasks.Get(content.TaskID)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, stored.Status, "expected task failed when the agent is unreachable")
}

func TestKernel_DuplicateMessageID(t *testing.T) {
	tk := newTestKernel(t)
	registerClient(t, tk, "client-conn-1")

	msg, _ := wire.New("dup-id", wire.TypePing, nil)
	tk.k.Route(context.Background(), wire.OriginClient, "client-conn-1", msg)
	tk.k.Route(context.Background(), wire.OriginClient, "client-conn-1", msg)

	msgs := tk.clientHub.all("client-conn-1")
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	require.True(t, last.IsError(), "expected the second use of a duplicate id to be rejected")
}

func TestKernel_Disconnected_FailsInProgressTasksAfterGrace(t *testing.T) {
	tk := newTestKernel(t)
	registerAgent(t, tk, "agent-conn-1", "builder")
	registerClient(t, tk, "client-conn-1")

	createMsg, _ := wire.New("task-create-4", wire.TypeTaskCreate, map[string]interface{}{
		"agentName": "builder",
		"taskData":  map[string]interface{}{"taskType": "build"},
	})
	tk.k.Route(context.Background(), wire.OriginClient, "client-conn-1", createMsg)

	createdReply := tk.clientHub.last("client-conn-1")
	var content struct {
		TaskID string `json:"taskId"`
	}
	_ = createdReply.DecodeContent(&content)

	tk.k.Disconnected(wire.OriginAgent, "agent-conn-1")

	// No configured grace period: the fail sweep runs synchronously.
	stored, err := tk.k.AgentTasks.Get(content.TaskID)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, stored.Status, "expected task failed after agent disconnect")

	_, ok := tk.k.Agents.GetByConnectionID("agent-conn-1")
	require.False(t, ok, "expected the agent's connection binding to be removed")
}

func TestKernel_CancelAllPending(t *testing.T) {
	tk := newTestKernel(t)

	c := tk.k.correlatorFor("conn-x")
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Await(context.Background(), "req-x", correlator.Options{Timeout: time.Minute})
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	tk.k.CancelAllPending("shutting down")

	select {
	case err := <-errCh:
		require.Error(t, err, "expected an error after CancelAllPending")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the cancelled waiter")
	}
}
