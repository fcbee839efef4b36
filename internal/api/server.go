package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Iron-Ham/lanes/internal/logging"
	"github.com/Iron-Ham/lanes/internal/metrics"
	"github.com/Iron-Ham/lanes/internal/pool"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and the registry it exposes.
type Server struct {
	router   *chi.Mux
	registry *pool.Registry
	recorder *metrics.Recorder
	tasks    *taskStore
	logger   *logging.Logger
	addr     string
}

// NewServer creates and configures a new HTTP server. recorder may be nil,
// in which case /metrics is not mounted.
func NewServer(addr string, reg *pool.Registry, recorder *metrics.Recorder, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	srv := &Server{
		router:   chi.NewRouter(),
		registry: reg,
		recorder: recorder,
		tasks:    newTaskStore(maxTrackedTasks),
		logger:   logger.With("component", "api"),
		addr:     addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	if recorder != nil {
		srv.router.Use(srv.metricsMiddleware)
	}

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	if s.recorder != nil {
		s.router.Handle("/metrics", s.recorder.Handler())
	}

	s.router.Get("/v1/stats", s.handleGetStats)

	s.router.Route("/v1/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves on the configured address until ctx is cancelled, then shuts the
// HTTP server down gracefully. It does not shut down the registry.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx).Error())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
