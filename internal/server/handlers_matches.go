package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/reuniteapp/reunite/internal/model"
	"github.com/reuniteapp/reunite/internal/storage"
)

const (
	defaultResolvedLimit = 200
	maxResolvedLimit     = 1000
)

// loadMatchForParticipant fetches a match with reports populated and checks
// that the user owns one side. Writes the error response itself; callers
// bail on ok == false.
func (h *Handlers) loadMatchForParticipant(w http.ResponseWriter, r *http.Request) (model.Match, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid match id")
		return model.Match{}, false
	}

	m, err := h.db.GetMatchWithReports(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "match not found")
			return model.Match{}, false
		}
		h.writeInternalError(w, r, "failed to get match", err)
		return model.Match{}, false
	}

	userID := UserIDFromContext(r.Context())
	if m.LostReport.OwnerID != userID && m.FoundReport.OwnerID != userID {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "not a participant in this match")
		return model.Match{}, false
	}
	return m, true
}

// HandleGetMatch handles GET /v1/matches/{id} (participants only).
func (h *Handlers) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMatchForParticipant(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// HandleConfirmMatch handles POST /v1/matches/{id}/confirm.
func (h *Handlers) HandleConfirmMatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid match id")
		return
	}

	m, err := h.matchSvc.Confirm(r.Context(), id, UserIDFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrMatchNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "match not found")
		case errors.Is(err, model.ErrNotParticipant):
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "unauthorized or already confirmed")
		case errors.Is(err, model.ErrMatchNotOpen):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "match is not open")
		default:
			h.writeInternalError(w, r, "failed to confirm match", err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, m)
}

// HandleListResolvedMatches handles GET /v1/matches/resolved?limit=.
func (h *Handlers) HandleListResolvedMatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultResolvedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be an integer")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxResolvedLimit {
		limit = maxResolvedLimit
	}

	matches, err := h.db.ListResolvedMatches(r.Context(), limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to list resolved matches", err)
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, r, http.StatusOK, matches)
}
