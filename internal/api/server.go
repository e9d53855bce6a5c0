package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
	"github.com/nerrad567/gray-logic-rfbridge/internal/discovery"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rfbridge/internal/transport/serial"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// commandTimeout bounds a device command sent through the API.
const commandTimeout = 5 * time.Second

// Bridge is the bridge surface driven by the API. *rf.Bridge implements it.
type Bridge interface {
	ID() string
	ProtocolName() string
	State() core.ConnectionState
	Health() rf.HealthMessage
	GetMetrics() rf.BridgeMetrics

	Devices() []rf.DeviceInfo
	Device(addr core.DeviceAddress) (*rf.DeviceHandler, bool)
	AddDevice(id, name string, addr core.DeviceAddress) (*rf.DeviceHandler, error)
	Unregister(addr core.DeviceAddress)
	SendCommand(ctx context.Context, addr core.DeviceAddress, command string, params map[string]any) error

	StartDiscovery(d time.Duration) (time.Time, error)
	StopDiscovery()
	Reinitialize(ctx context.Context) error
}

// CandidateStore lists and dismisses discovery candidates.
// Satisfied by *discovery.Store.
type CandidateStore interface {
	List(ctx context.Context, f discovery.Filter) ([]discovery.Candidate, error)
	Dismiss(ctx context.Context, family, address string) error
}

// Broker reports the MQTT connection. Satisfied by *mqtt.Client.
type Broker interface {
	IsConnected() bool
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Bridges    []Bridge
	Candidates CandidateStore // optional: discovery routes answer 503 without it
	Hub        *Hub           // optional: created by the server when nil
	Broker     Broker         // optional: MQTT series are omitted without it
	ListPorts  func() ([]string, error)
	Version    string
}

// Server is the HTTP API server of the RF bridge service.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub and the
// Prometheus registry. The server is created with New() and started with
// Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	bridges    []Bridge
	bridgeByID map[string]Bridge
	candidates CandidateStore
	listPorts  func() ([]string, error)
	version    string
	startedAt  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	registry    *prometheus.Registry
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		bridges:    deps.Bridges,
		bridgeByID: make(map[string]Bridge, len(deps.Bridges)),
		candidates: deps.Candidates,
		listPorts:  deps.ListPorts,
		version:    deps.Version,
		startedAt:  time.Now(),
	}
	for _, b := range deps.Bridges {
		if _, dup := s.bridgeByID[b.ID()]; dup {
			return nil, fmt.Errorf("duplicate bridge id %q", b.ID())
		}
		s.bridgeByID[b.ID()] = b
	}
	if s.listPorts == nil {
		s.listPorts = serial.ListPorts
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.Logger)
	}

	registry, err := newMetricsRegistry(s.bridges, s.hub, deps.Broker)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	s.registry = registry

	return s, nil
}

// Hub returns the WebSocket hub. Bridges use it as their rf.Broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.cfg.JWTSecret != "")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

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

// HealthCheck verifies the API server is running.
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

// bridgeFor returns the bridge that has a device registered at addr.
func (s *Server) bridgeFor(addr core.DeviceAddress) (Bridge, *rf.DeviceHandler, bool) {
	for _, b := range s.bridges {
		if d, ok := b.Device(addr); ok {
			return b, d, true
		}
	}
	return nil, nil, false
}
