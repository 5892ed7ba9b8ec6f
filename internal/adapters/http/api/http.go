// Package api serves the moderator's read-only status surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/mafiabot/internal/app"
)

// TallyProvider exposes the state of the current day.
type TallyProvider interface {
	Tally(ctx context.Context) (service.TallyView, error)
}

// Server wires HTTP routes for the status API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	tallyHandler  *TallyHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(tally TallyProvider, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		tallyHandler:  NewTallyHandler(tally),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/tally", MetricsMiddleware(s.tallyHandler.HandleTally, "tally"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
