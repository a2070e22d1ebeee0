// Package server exposes the HTTP API: rebalance trigger, run history,
// settings, and system status.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/database"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/settings"
)

// Rebalancer triggers rebalance runs.
type Rebalancer interface {
	RunRebalance(ctx context.Context, dryRunOverride *bool) (*domain.RunRecord, error)
}

// Pinger verifies connectivity to an upstream service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	router       chi.Router
	orchestrator Rebalancer
	runs         domain.RunStore
	settings     *settings.Service
	exchange     Pinger
	ranking      Pinger
	databases    map[string]*database.DB
	startTime    time.Time
	log          zerolog.Logger
}

// New creates the API server and mounts all routes.
func New(
	orchestrator Rebalancer,
	runs domain.RunStore,
	settingsService *settings.Service,
	exchange Pinger,
	ranking Pinger,
	databases map[string]*database.DB,
	log zerolog.Logger,
) *Server {
	s := &Server{
		orchestrator: orchestrator,
		runs:         runs,
		settings:     settingsService,
		exchange:     exchange,
		ranking:      ranking,
		databases:    databases,
		startTime:    time.Now(),
		log:          log.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/rebalance/run", s.handleRunRebalance)
		r.Get("/rebalance/history", s.handleListRuns)
		r.Get("/rebalance/history/{id}", s.handleGetRun)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)

		r.Get("/system/status", s.handleSystemStatus)
	})

	s.router = r
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	s.respondJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
