package api

import (
	"errors"
	"net/http"

	service "github.com/okian/mafiabot/internal/app"
)

// TallyHandler serves the current day's ballots.
type TallyHandler struct {
	tally TallyProvider
}

// NewTallyHandler creates a new tally handler.
func NewTallyHandler(tally TallyProvider) *TallyHandler {
	return &TallyHandler{tally: tally}
}

// HandleTally handles GET /tally.
func (h *TallyHandler) HandleTally(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	view, err := h.tally.Tally(r.Context())
	switch {
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_started", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
