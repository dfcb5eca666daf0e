// Package shutdown implements the orchestrator's ordered drain sequence,
// grounded in the teacher's numbered-step graceful shutdown in
// cmd/orchestrator/main.go: stop taking new work before tearing down what's
// already in flight, so a client mid-request sees a clean rejection instead
// of a reset connection.
package shutdown

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/internal/kernel"
	"github.com/agentmesh/orchestrator/internal/lifecycle"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/internal/tsp"
)

// Controller coordinates the shutdown of every component the orchestrator
// owns: the three HTTP listeners, the kernel's pending correlator waiters,
// the identity registries, the lifecycle notifier, and the TSP subprocess
// pool.
type Controller struct {
	Servers  []*http.Server
	Kernel   *kernel.Kernel
	Notifier *lifecycle.Notifier
	Agents   *registry.AgentRegistry
	Services *registry.ServiceRegistry
	Tools    *tsp.Adapter
	Cancel   context.CancelFunc

	logger *logger.Logger
}

// New builds a Controller. cancel is the root context's CancelFunc; calling
// it tears down the three hub.Run loops, which close every live connection.
func New(servers []*http.Server, k *kernel.Kernel, notifier *lifecycle.Notifier, agents *registry.AgentRegistry, services *registry.ServiceRegistry, tools *tsp.Adapter, cancel context.CancelFunc, log *logger.Logger) *Controller {
	return &Controller{
		Servers:  servers,
		Kernel:   k,
		Notifier: notifier,
		Agents:   agents,
		Services: services,
		Tools:    tools,
		Cancel:   cancel,
		logger:   log,
	}
}

// Shutdown runs the drain sequence in order:
//  1. stop accepting new connections on all three listeners
//  2. reject every pending-response correlator wait
//  3. mark every bound agent/service record offline
//  4. cancel the root context, which closes every live hub connection
//  5. terminate subprocess tool servers
//  6. stop the lifecycle notifier
//
// Each step is best-effort; a failure in one does not abort the rest, since
// the goal is to leave the process in as clean a state as possible within
// the given deadline regardless of individual component failures.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.logger.Info("shutdown: closing listeners")
	for _, s := range c.Servers {
		// Close, not Shutdown: our handlers hijack the connection for
		// websocket upgrades, so the stdlib's graceful drain would wait
		// forever for them. Close stops new accepts immediately; live
		// connections are torn down explicitly in step 4.
		if err := s.Close(); err != nil {
			c.logger.Warn("listener close error", zap.Error(err))
		}
	}

	c.logger.Info("shutdown: rejecting pending calls")
	c.Kernel.CancelAllPending("server shutting down")

	c.logger.Info("shutdown: marking registries offline")
	for _, a := range c.Agents.All(registry.AgentFilter{}) {
		_ = c.Agents.UpdateStatus(a.ID, registry.StatusOffline, "server shutting down")
	}
	for _, s := range c.Services.All(registry.ServiceFilter{}) {
		_ = c.Services.UpdateStatus(s.ID, registry.StatusOffline, "server shutting down")
	}

	c.logger.Info("shutdown: closing connections")
	c.Cancel()
	// Give the hubs' Run loops a moment to finish closing every client
	// before moving on; they're not waited on directly since Run has no
	// completion signal beyond the context it was handed.
	time.Sleep(100 * time.Millisecond)

	c.logger.Info("shutdown: stopping tool servers")
	c.Tools.Shutdown(ctx)

	if c.Notifier != nil {
		c.Notifier.Stop()
	}

	c.logger.Info("shutdown complete")
	return nil
}
