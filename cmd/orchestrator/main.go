// Package main is the entry point for the Orchestrator service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentmesh/orchestrator/internal/common/config"
	"github.com/agentmesh/orchestrator/internal/common/ids"
	"github.com/agentmesh/orchestrator/internal/common/logger"
	"github.com/agentmesh/orchestrator/internal/events/bus"
	"github.com/agentmesh/orchestrator/internal/hub"
	"github.com/agentmesh/orchestrator/internal/kernel"
	"github.com/agentmesh/orchestrator/internal/lifecycle"
	"github.com/agentmesh/orchestrator/internal/registry"
	"github.com/agentmesh/orchestrator/internal/shutdown"
	"github.com/agentmesh/orchestrator/internal/task"
	"github.com/agentmesh/orchestrator/internal/tsp"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting orchestrator")

	// 3. Create context with cancellation; cancelling it tears down all
	// three hub.Run loops and every connection they hold.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the internal event bus: NATS when configured, otherwise
	// the in-memory backend. Either way it never leaves this process.
	eventBus, err := newEventBus(cfg.Events, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer eventBus.Close()

	// 5. Identity and connection registries.
	agents := registry.NewAgentRegistry()
	services := registry.NewServiceRegistry()
	clients := registry.NewClientRegistry()
	conns := registry.NewConnectionRegistry()

	// 5a. Pre-configured peers: declared offline so they resolve by name
	// before their live connection ever registers (SPEC_FULL §6/§10).
	registerPeers(cfg.Peers, agents, services)

	// 6. Task state machines, wired to the event bus so every transition is
	// published for the lifecycle notifier.
	agentTasks := task.NewAgentTaskRegistry(eventBus)
	serviceTasks := task.NewServiceTaskRegistry(eventBus)

	// 7. Tool Server Protocol adapter; pre-register any statically
	// configured tool servers so they're discoverable before first use.
	tools := tsp.NewAdapter(log)
	tools.RegisterDeclared(cfg.ToolServers)

	// 8. Message kernel: the single router every hub hands inbound
	// envelopes to.
	k := kernel.New(agents, services, clients, conns, agentTasks, serviceTasks, tools, eventBus, cfg.Correlator, log)

	// 9. The three connection hubs, each routing through the kernel.
	agentHub := hub.New(wire.OriginAgent, k, log)
	serviceHub := hub.New(wire.OriginService, k, log)
	clientHub := hub.New(wire.OriginClient, k, log)
	go agentHub.Run(ctx)
	go serviceHub.Run(ctx)
	go clientHub.Run(ctx)
	k.SetHubs(agentHub, serviceHub, clientHub)

	// 10. Lifecycle notifier: the sole subscriber of task.state.changed and
	// task.notification, delivering each to its task's owner via the kernel.
	notifier := lifecycle.New(k, eventBus, log)
	if err := notifier.Start(); err != nil {
		log.Fatal("failed to start lifecycle notifier", zap.Error(err))
	}

	// 11. HTTP servers: one listener per hub, each a minimal gin router with
	// a websocket upgrade endpoint and a health check.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	agentServer := newListener(cfg.Agent, agentHub, log)
	serviceServer := newListener(cfg.Service, serviceHub, log)
	clientServer := newListener(cfg.Client, clientHub, log)
	servers := []*http.Server{agentServer, serviceServer, clientServer}

	for _, s := range servers {
		srv := s
		go func() {
			log.Info("listener started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("listener error", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}()
	}

	// 12. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	// 13. Graceful shutdown within a bounded deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	controller := shutdown.New(servers, k, notifier, agents, services, tools, cancel, log)
	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	log.Info("orchestrator stopped")
}

// registerPeers declares every statically configured agent/service identity
// up front, so agent.list/service.list and task.create's name resolution
// see them immediately instead of waiting on a live connection. Each uses
// its configured id, or a freshly minted one if none was given.
func registerPeers(cfg config.PeersConfig, agents *registry.AgentRegistry, services *registry.ServiceRegistry) {
	for _, p := range cfg.Agents {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		agents.Preregister(id, p.Name, p.Capabilities, metadataToManifest(p.Metadata))
	}
	for _, p := range cfg.Services {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		services.Preregister(id, p.Name, p.Capabilities, metadataToManifest(p.Metadata))
	}
}

func metadataToManifest(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	manifest := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		manifest[k] = v
	}
	return manifest
}

// newEventBus selects the NATS-backed bus when a URL is configured, falling
// back to the in-memory bus otherwise. Either way the bus stays internal to
// this orchestrator instance.
func newEventBus(cfg config.EventsConfig, log *logger.Logger) (bus.EventBus, error) {
	if cfg.NATSUrl == "" {
		return bus.NewMemoryEventBus(log), nil
	}
	return bus.NewNATSEventBus(cfg, log)
}

// newListener builds the gin router and http.Server for one hub: a
// websocket upgrade endpoint plus a health check reporting connection count.
func newListener(cfg config.ListenerConfig, h *hub.Hub, log *logger.Logger) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())

	handler := hub.NewHandler(h, log)
	router.GET("/ws", handler.HandleConnection)
	hub.RegisterHealth(router, h)

	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}
}
