// Package core provides the HTTP chassis for the SurfMaster API: a chi router
// with the cross-cutting middleware chain, the JSON response envelope, request
// validation and the health endpoint. Domain handlers register themselves
// through V1RouteRegistrars.
package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"surfmaster/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the router and everything the middleware chain needs.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
	HealthProbes   []HealthProbe

	// V1RouteRegistrars mount domain routes under /v1. Populated by main to
	// keep handler packages out of core's imports.
	V1RouteRegistrars []func(chi.Router)

	// Closers are released in reverse order on Shutdown.
	Closers []io.Closer

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted separately by MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases Closers. All are attempted; the errors are joined.
func (s *Server) Shutdown(_ context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for i := len(s.Closers) - 1; i >= 0; i-- {
		if err := s.Closers[i].Close(); err != nil {
			s.Logger.Error("error releasing resource", "error", err)
			errs = append(errs, err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
