package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/automation"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/config"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/logging"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/relay"
	"github.com/ahuelsmann/MOBAflow-sub003/internal/z21"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the command-station client. *z21.Client satisfies it.
type Controller interface {
	State() z21.ConnectionState
	Confirmed() bool
	Status() z21.BusStatus
	SystemState() z21.SystemTelemetry
	VersionInfo() z21.VersionInfo
	Stats() z21.ClientStats
	HealthCheck(ctx context.Context) error

	TrackPowerOn(ctx context.Context) error
	TrackPowerOff(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	SetTurnout(ctx context.Context, address, output int, activate, queue bool) error
	SimulateFeedback(port int) error
}

// WorkflowService is satisfied by *automation.WorkflowManager.
type WorkflowService interface {
	Workflows() []automation.Workflow
	ResetAll()
}

// Resetter is satisfied by *automation.StationManager.
type Resetter interface {
	ResetAll()
}

// JourneyService is satisfied by *automation.JourneyManager.
type JourneyService interface {
	Journeys() []automation.Journey
	States() []automation.JourneyState
	State(id string) (automation.JourneyState, error)
	Reset(id string) error
	ResetAll()
}

// ExecutionLister is satisfied by *automation.SQLiteRepository.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, triggerID string, limit int) ([]automation.Execution, error)
}

// FeedbackStatistics is satisfied by *relay.Statistics.
type FeedbackStatistics interface {
	All() []relay.PortStats
	Reset()
	ResetPort(port uint32) bool
}

// HealthChecker is any component with a health probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
// Only Logger and Controller are required.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger

	Controller Controller
	Workflows  WorkflowService
	Stations   Resetter
	Journeys   JourneyService
	Executions ExecutionLister
	Statistics FeedbackStatistics

	// Prometheus serves Metrics.Path when set.
	Prometheus http.Handler

	// Health lists additional components probed by /health.
	Health map[string]HealthChecker

	// Hub, if set, is used instead of a server-owned hub so that other
	// components can broadcast before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger

	controller Controller
	workflows  WorkflowService
	stations   Resetter
	journeys   JourneyService
	executions ExecutionLister
	statistics FeedbackStatistics
	prometheus http.Handler
	health     map[string]HealthChecker

	version   string
	startTime time.Time

	hub         *Hub
	externalHub bool

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, controller) and optional services
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		controller: deps.Controller,
		workflows:  deps.Workflows,
		stations:   deps.Stations,
		journeys:   deps.Journeys,
		executions: deps.Executions,
		statistics: deps.Statistics,
		prometheus: deps.Prometheus,
		health:     deps.Health,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for the hub lifetime
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String(), "auth", s.authEnabled())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}
