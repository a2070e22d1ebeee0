package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/settings"
)

// runRequest is the optional body of POST /api/rebalance/run.
type runRequest struct {
	DryRun *bool `json:"dry_run"`
}

func (s *Server) handleRunRebalance(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
	}

	record, err := s.orchestrator.RunRebalance(r.Context(), req.DryRun)
	if errors.Is(err, domain.ErrRunInProgress) {
		s.respondJSON(w, http.StatusConflict, record)
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "rebalance failed: %v", err)
		return
	}

	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			s.respondError(w, http.StatusBadRequest, "invalid limit: %s", raw)
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list runs: %v", err)
		return
	}
	if runs == nil {
		runs = []*domain.RunRecord{}
	}

	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to get run: %v", err)
		return
	}
	if run == nil {
		s.respondError(w, http.StatusNotFound, "run %s not found", runID)
		return
	}

	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.GetRebalanceSettings()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load settings: %v", err)
		return
	}

	s.respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var cfg settings.RebalanceSettings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	if err := s.settings.UpdateRebalanceSettings(&cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	s.respondJSON(w, http.StatusOK, cfg)
}
