package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/catalog"
	"github.com/nerrad567/emubot-core/internal/infrastructure/config"
	"github.com/nerrad567/emubot-core/internal/infrastructure/database"
	"github.com/nerrad567/emubot-core/internal/infrastructure/logging"
	"github.com/nerrad567/emubot-core/internal/instance"
	"github.com/nerrad567/emubot-core/internal/runner"
	"github.com/nerrad567/emubot-core/internal/script"
	"github.com/nerrad567/emubot-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnChecker reports broker connectivity for the metrics endpoint.
type ConnChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Catalog   *catalog.Registry
	Runner    *runner.Service
	Engine    *script.Engine
	Instances *instance.Registry

	// Optional.
	DB          *database.DB
	Audit       *audit.Trail
	MQTT        ConnChecker
	Telemetry   *telemetry.Recorder
	ExternalHub *Hub // If set, the caller runs it and registers it with the runner
	Version     string
}

// Server is the HTTP API server for emubot.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	catalog   *catalog.Registry
	runner    *runner.Service
	engine    *script.Engine
	instances *instance.Registry
	db        *database.DB
	audit     *audit.Trail
	mqtt      ConnChecker
	telemetry *telemetry.Recorder
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Runner == nil || deps.Engine == nil {
		return nil, fmt.Errorf("runner and engine are required")
	}
	if deps.Instances == nil {
		return nil, fmt.Errorf("instance registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		catalog:   deps.Catalog,
		runner:    deps.Runner,
		engine:    deps.Engine,
		instances: deps.Instances,
		db:        deps.DB,
		audit:     deps.Audit,
		mqtt:      deps.MQTT,
		telemetry: deps.Telemetry,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.ExternalHub,
	}
	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless one was injected), builds the router
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.runner.AddObserver(s.hub)
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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.authEnabled())
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

// HealthCheck verifies the API server is running and responsive.
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

func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}
