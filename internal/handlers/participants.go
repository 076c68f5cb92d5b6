package handlers

import (
	"net/http"

	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// RegisterResponse echoes the name a participant was registered under.
type RegisterResponse struct {
	Name string `json:"name"`
}

// RegisterParticipant joins a participant to the room and announces it.
func (h *Handler) RegisterParticipant(w http.ResponseWriter, r *http.Request) {
	var req validation.Registration
	if !h.decode(w, r, &req) {
		return
	}

	req.Sanitize()
	if err := validation.ValidateRegistration(req); err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now()
	if err := h.store.RegisterParticipant(r.Context(), req.Name, now); err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.ParticipantsRegistered.Inc()

	// The participant stays registered even if the notice is lost.
	if _, err := h.store.AppendMessage(r.Context(), models.StatusMessage(req.Name, models.TextJoined, now)); err != nil {
		h.logger.Warn().
			Err(err).
			Str("participant", req.Name).
			Msg("join notice not recorded")
	} else {
		metrics.MessagesPosted.WithLabelValues(string(models.TypeStatus)).Inc()
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{Name: req.Name})
}

// ListParticipants returns every active participant.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.store.ListParticipants(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, participants)
}

// KeepAlive refreshes the requesting participant's last activity.
func (h *Handler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == "" {
		h.Error(w, http.StatusNotFound, "participant not found")
		return
	}

	now := h.now()
	if err := h.store.TouchParticipant(r.Context(), user, now); err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, models.NewParticipant(user, now))
}
