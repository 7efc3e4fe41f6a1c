package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/cashops/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Single-job pricing
	router.Post("/estimate", handler.Estimate)

	// Current batch and its aggregates
	router.Get("/batch", handler.Batch)
	router.Post("/batch/refresh", handler.RefreshBatch)
	router.Get("/report", handler.Report)

	// History and projections
	router.Get("/history", handler.History)
	router.Get("/forecast", handler.Forecast)

	// Static tables
	router.Get("/geography", handler.Geography)

	// Risk rules
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/{id}", handler.GetRule)

	// Run archive
	router.Route("/runs", func(r chi.Router) {
		r.Get("/", handler.ListRuns)
		r.Get("/{id}", handler.GetRun)
		r.Get("/{id}/events", handler.ListRunEvents)
		r.Get("/{id}/export.csv", handler.ExportRun)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
