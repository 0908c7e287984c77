package server

import (
	"net/http"

	"github.com/reuniteapp/reunite/internal/model"
)

// HandleListMessages handles GET /v1/matches/{id}/messages (participants
// only). History stays readable after the match closes.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMatchForParticipant(w, r)
	if !ok {
		return
	}

	msgs, err := h.db.ListChatMessages(r.Context(), m.ID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list messages", err)
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, r, http.StatusOK, msgs)
}

// HandleSendMessage handles POST /v1/matches/{id}/messages. Requires the
// match to be open; the stored message is broadcast to the match room.
func (h *Handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMatchForParticipant(w, r)
	if !ok {
		return
	}
	if m.Status != model.MatchOpen {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "match is not open")
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	msg, err := h.db.CreateChatMessage(r.Context(), model.ChatMessage{
		MatchID:  m.ID,
		SenderID: UserIDFromContext(r.Context()),
		Body:     req.Body,
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to store message", err)
		return
	}

	if err := h.broadcaster.PublishToRoom(r.Context(), m.ID.String(), model.EventMessageNew, msg); err != nil {
		h.logger.Error("message broadcast failed", "match_id", m.ID, "error", err)
	}

	writeJSON(w, r, http.StatusCreated, msg)
}

// HandleMatchEvents handles GET /v1/matches/{id}/events (SSE). Streams the
// match's room: chat messages plus this match's lifecycle events. Joining
// requires the match to be open.
func (h *Handlers) HandleMatchEvents(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMatchForParticipant(w, r)
	if !ok {
		return
	}
	if m.Status != model.MatchOpen {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "match is not open")
		return
	}
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"SSE not available (LISTEN/NOTIFY not configured)")
		return
	}

	room := m.ID.String()
	ch := h.broker.SubscribeRoom(room)
	defer h.broker.UnsubscribeRoom(room, ch)
	h.streamSSE(w, r, ch)
}
