package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// PostMessageResponse identifies a stored message.
type PostMessageResponse struct {
	ID   string `json:"id"`
	Time string `json:"time"`
}

// DeleteMessageResponse identifies a removed message.
type DeleteMessageResponse struct {
	ID string `json:"id"`
}

// PostMessage stores a message from the requesting participant.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body validation.MessageBody
	if !h.decode(w, r, &body) {
		return
	}

	body.Sanitize()
	if err := validation.ValidateMessageBody(body); err != nil {
		h.fail(w, r, err)
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	names, err := h.store.ParticipantNames(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validation.ValidateSender(user, names); err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now()
	msg := &models.Message{
		From: user,
		To:   body.To,
		Text: body.Text,
		Type: models.MessageType(body.Type),
		Time: models.FormatTime(now),
	}
	id, err := h.store.AppendMessage(r.Context(), msg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.MessagesPosted.WithLabelValues(body.Type).Inc()

	// Posting counts as activity; the sweeper may have removed the sender
	// in the meantime, which is not an error for the post.
	if err := h.store.TouchParticipant(r.Context(), user, now); err != nil && !errors.Is(err, store.ErrParticipantNotFound) {
		h.logger.Warn().
			Err(err).
			Str("participant", user).
			Msg("activity refresh after post failed")
	}

	h.JSON(w, http.StatusCreated, PostMessageResponse{ID: id, Time: msg.Time})
}

// GetMessages returns the messages visible to the requesting participant,
// oldest first. An optional limit keeps only the newest ones.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	names, err := h.store.ParticipantNames(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validation.ValidateSender(user, names); err != nil {
		h.fail(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.fail(w, r, validation.NewValidationError(`"limit" must be a positive integer`))
			return
		}
	}

	messages, err := h.store.MessagesVisibleTo(r.Context(), user, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, messages)
}

// DeleteMessage removes a message sent by the requesting participant.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := middleware.GetUserFromContext(r.Context())

	if err := h.store.DeleteMessage(r.Context(), id, user); err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.MessagesDeleted.Inc()

	h.JSON(w, http.StatusOK, DeleteMessageResponse{ID: id})
}
