package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ghostgauge/gscore/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps HandlerDeps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Liveness and build info
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Get("/version", handler.Version)

	// Score surface
	router.Get("/score", handler.GetScore)
	router.Post("/score/preview", handler.PreviewScore)

	// Factors and deltas
	router.Get("/factors", handler.ListFactors)
	router.Get("/factors/{key}", handler.GetFactor)
	router.Get("/deltas", handler.GetDeltas)

	// Historical series
	router.Get("/history", handler.GetHistory)
	router.Get("/history/stats", handler.GetHistoryStats)

	// Reference data
	router.Get("/bands", handler.GetBands)
	router.Get("/presets", handler.GetPresets)

	// Manual refresh
	router.Post("/refresh", handler.TriggerRefresh)

	// Alert rule management
	router.Get("/alerts/events", handler.ListAlertEvents)
	router.Post("/alerts", handler.CreateAlert)
	router.Get("/alerts", handler.ListAlerts)
	router.Get("/alerts/{id}", handler.GetAlert)
	router.Put("/alerts/{id}", handler.UpdateAlert)
	router.Delete("/alerts/{id}", handler.DeleteAlert)

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
