// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
	Logger       *slog.Logger
}

// Server wraps a chi router with a huma API and an HTTP server.
type Server struct {
	router    chi.Router
	api       huma.API
	cfg       Config
	services  Services
	logger    *slog.Logger
	startTime time.Time
}

// New creates a Server with chi router, middleware stack, and huma API.
// Routes are registered once RegisterServices wires in the dependencies.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, tserr.New(tserr.CodeServerConfigInvalid, "listen address is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(requestLogger(cfg.Logger))
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)

	// Huma API with OpenAPI spec
	humaConfig := huma.DefaultConfig("Trendscout API", cfg.Version)
	humaConfig.Info.Description = "Search and synthesis over ingested trend reports"
	api := humachi.New(r, humaConfig)

	return &Server{
		router:    r,
		api:       api,
		cfg:       cfg,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}, nil
}

// RegisterServices wires the application services into the server and
// registers all API routes. It must be called before Start.
func (s *Server) RegisterServices(svc Services) error {
	if err := svc.validate(); err != nil {
		return err
	}
	s.services = svc
	s.registerRoutes()
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return tserr.Wrapf(err, tserr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("server listening", "addr", ln.Addr().String(), "version", s.cfg.Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return tserr.Wrap(err, tserr.CodeServerShutdownFailure, "shutting down")
	}

	if err := <-errCh; err != nil {
		return tserr.Wrap(err, tserr.CodeServerStartFailure, "serving http")
	}
	return nil
}
