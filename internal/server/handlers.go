package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"dailyintel/internal/core"
	"dailyintel/internal/store"

	"github.com/go-chi/chi/v5"
)

const (
	defaultRunLimit = 30
	maxRunLimit     = 365
)

var runDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	Uptime    string `json:"uptime"`
	LatestRun string `json:"latest_run,omitempty"`
	Degraded  bool   `json:"degraded"`
}

// RunListResponse is returned by /api/runs
type RunListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Total int          `json:"total"`
}

// RunSummary is the list view of one run
type RunSummary struct {
	ID             string `json:"id"`
	RunDate        string `json:"run_date"`
	Selected       int    `json:"selected"`
	Rejected       int    `json:"rejected"`
	Backend        string `json:"backend"`
	Degraded       bool   `json:"degraded"`
	SourceFailures int    `json:"source_failures"`
	PageURL        string `json:"page_url"`
}

func summarize(rec core.RunRecord) RunSummary {
	return RunSummary{
		ID:             rec.ID,
		RunDate:        rec.RunDate,
		Selected:       rec.Selected,
		Rejected:       rec.Rejected,
		Backend:        rec.Backend,
		Degraded:       rec.Degraded,
		SourceFailures: len(rec.SourceFailures),
		PageURL:        "/daily/" + rec.RunDate + ".html",
	}
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.runs.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Uptime: time.Since(s.started).Round(time.Second).String()}

	runs, err := s.runs.ListRuns(r.Context(), 1)
	if err != nil {
		s.log.Error("Failed to load latest run", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load runs")
		return
	}
	if len(runs) > 0 {
		resp.LatestRun = runs[0].RunDate
		resp.Degraded = runs[0].Degraded
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleListRuns handles GET /api/runs?limit=N
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to list runs", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load runs")
		return
	}

	summaries := make([]RunSummary, len(runs))
	for i, rec := range runs {
		summaries[i] = summarize(rec)
	}
	s.respondJSON(w, http.StatusOK, RunListResponse{Runs: summaries, Total: len(summaries)})
}

// handleLatestRun handles GET /api/runs/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context(), 1)
	if err != nil {
		s.log.Error("Failed to load latest run", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load runs")
		return
	}
	if len(runs) == 0 {
		s.respondError(w, http.StatusNotFound, "No runs recorded yet")
		return
	}
	s.respondJSON(w, http.StatusOK, runs[0])
}

// handleGetRun handles GET /api/runs/{date}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !runDatePattern.MatchString(date) {
		s.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rec, err := s.runs.GetRun(r.Context(), date)
	if errors.Is(err, store.ErrRunNotFound) {
		s.respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to get run", "date", date, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func redirectTo(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error body
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
