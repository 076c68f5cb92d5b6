package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler creates a new Handler backed by st.
func NewHandler(st store.Store, logger zerolog.Logger) *Handler {
	return &Handler{store: st, logger: logger, now: time.Now}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, ErrorResponse{Error: message})
}

// decode reads a JSON body into dst. It writes the error response itself
// and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var sizeErr *http.MaxBytesError
	if errors.As(err, &sizeErr) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		h.fail(w, r, validation.NewValidationError(fmt.Sprintf("%q must be a %s", field, typeErr.Type)))
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

// fail maps err onto a status code. Store failures are logged and answered
// without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: verr.Violations,
		})
	case errors.Is(err, store.ErrParticipantExists):
		h.Error(w, http.StatusConflict, "participant already active")
	case errors.Is(err, store.ErrParticipantNotFound):
		h.Error(w, http.StatusNotFound, "participant not found")
	case errors.Is(err, store.ErrMessageNotFound):
		h.Error(w, http.StatusNotFound, "message not found")
	case errors.Is(err, store.ErrNotMessageOwner):
		h.Error(w, http.StatusUnauthorized, "message not owned by user")
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("store operation failed")
		h.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
