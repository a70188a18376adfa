package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/tapflow-core/internal/device"
	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/config"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/database"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/logging"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tapflow-core/internal/sensor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Runner executes flows on demand. Satisfied by executor.Executor.
type Runner interface {
	Execute(ctx context.Context, deviceID, flowID string, opts executor.Options) (*executor.Result, error)
}

// FlowScheduler is the scheduler surface the API needs: keeping the work
// queue in sync with flow edits and pausing devices for maintenance.
// Satisfied by scheduler.Scheduler.
type FlowScheduler interface {
	UpsertFlow(def *flow.Definition)
	RemoveFlow(deviceID, flowID string)
	Suspend(deviceID string)
	Resume(deviceID string)
	Suspended(deviceID string) bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Flows       flow.Repository
	Sensors     sensor.Store
	Runner      Runner
	Scheduler   FlowScheduler    // optional: nil when the scheduler is disabled
	Devices     *device.Registry // optional: device listing degrades without it
	DB          *database.DB     // optional: used for metrics only
	MQTT        *mqtt.Client     // optional: used for metrics only
	ExternalHub *Hub             // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for TapFlow Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	flows       flow.Repository
	sensors     sensor.Store
	runner      Runner
	scheduler   FlowScheduler
	devices     *device.Registry
	db          *database.DB
	mqtt        *mqtt.Client
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	tickets     *ticketStore       // short-lived WebSocket auth tickets
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, repositories, runner)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Flows == nil {
		return nil, fmt.Errorf("flow repository is required")
	}
	if deps.Sensors == nil {
		return nil, fmt.Errorf("sensor store is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("flow runner is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		flows:     deps.Flows,
		sensors:   deps.Sensors,
		runner:    deps.Runner,
		scheduler: deps.Scheduler,
		devices:   deps.Devices,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	// Use an externally-provided hub if available (needed when the event
	// sink also requires the hub for WebSocket broadcasting).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub. Nil until Start() unless an
// external hub was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.tickets.cleanLoop(srvCtx)

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
