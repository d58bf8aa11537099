// Package api exposes a finished batch summary as a read-only JSON surface
// for the external reporting layer. No estimation happens over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"golmm/domain/model"
	"golmm/internal"
	apperrors "golmm/internal/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves one batch summary
type Server struct {
	summary *model.BatchSummary
	logger  *internal.Logger
}

// NewServer creates a server over a finished summary
func NewServer(summary *model.BatchSummary, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Server{summary: summary, logger: logger}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/v1/summary", s.handleSummary)
	r.Get("/api/v1/summary/{outcome}", s.handleOutcome)
	return r
}

// ListenAndServe serves the router on the given port
func (s *Server) ListenAndServe(port string) error {
	s.logger.Info("summary API listening on :%s", port)
	return http.ListenAndServe(":"+port, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.summary)
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	outcome := chi.URLParam(r, "outcome")
	entry, ok := s.summary.Entry(outcome)
	if !ok {
		s.writeError(w, http.StatusNotFound, apperrors.InvalidInput("unknown outcome: "+outcome))
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{
		"code":  apperrors.GetCode(err),
		"error": err.Error(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response: %v", err)
	}
}
