package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"drop-match-api/internal/database"
	"drop-match-api/internal/models"
	"drop-match-api/internal/service"
	"drop-match-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// RunMatching handles POST /matching/run, the manual scheduler trigger.
// Semantics are identical to a timed tick; a redundant call is a no-op.
func (h *Handler) RunMatching(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RunMatching(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// SubmitResponse handles POST /drops/{drop_id}/matches/{match_id}/response
func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	dropID := validation.SanitizeString(chi.URLParam(r, "drop_id"))
	matchID := validation.SanitizeString(chi.URLParam(r, "match_id"))

	var req models.SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.UserID = validation.SanitizeString(req.UserID)
	req.Decision = validation.SanitizeString(req.Decision)

	result, err := h.service.SubmitResponse(r.Context(), dropID, matchID, req.UserID, req.Decision)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// UpsertProfile handles PUT /profiles/{user_id}
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var p models.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	p.UserID = validation.SanitizeString(chi.URLParam(r, "user_id"))
	p.DisplayName = validation.SanitizeString(p.DisplayName)
	p.Location = validation.SanitizeString(p.Location)
	p.PhoneNumber = validation.SanitizeString(p.PhoneNumber)
	for i := range p.Interests {
		p.Interests[i] = validation.SanitizeString(p.Interests[i])
	}
	for i := range p.CuisinePreferences {
		p.CuisinePreferences[i] = validation.SanitizeString(p.CuisinePreferences[i])
	}

	if err := h.service.UpsertProfile(r.Context(), p); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, p)
}

// UpsertDrop handles PUT /drops/{drop_id}
func (h *Handler) UpsertDrop(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var d models.Drop
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	d.ID = validation.SanitizeString(chi.URLParam(r, "drop_id"))
	d.Title = validation.SanitizeString(d.Title)
	d.Location = validation.SanitizeString(d.Location)

	if err := h.service.UpsertDrop(r.Context(), d); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, d)
}

// Register handles POST /drops/{drop_id}/registrations
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	dropID := validation.SanitizeString(chi.URLParam(r, "drop_id"))
	req.UserID = validation.SanitizeString(req.UserID)

	if err := h.service.RegisterUser(r.Context(), dropID, req.UserID, time.Now().UTC()); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]bool{"registered": true})
}

// ListDropMatches handles GET /drops/{drop_id}/matches
func (h *Handler) ListDropMatches(w http.ResponseWriter, r *http.Request) {
	dropID := validation.SanitizeString(chi.URLParam(r, "drop_id"))

	matches, err := h.service.GetDropMatches(r.Context(), dropID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []models.Match{}
	}

	h.respondJSON(w, http.StatusOK, map[string][]models.Match{"matches": matches})
}

// GetUserMatch handles GET /drops/{drop_id}/matches/user/{user_id}
func (h *Handler) GetUserMatch(w http.ResponseWriter, r *http.Request) {
	dropID := validation.SanitizeString(chi.URLParam(r, "drop_id"))
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))

	match, err := h.service.GetUserMatch(r.Context(), dropID, userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, match)
}

// PendingSMS handles GET /sms/pending, the pull feed for the SMS worker.
func (h *Handler) PendingSMS(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	messages, err := h.service.PendingSMS(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []models.SMSMessage{}
	}

	h.respondJSON(w, http.StatusOK, map[string][]models.SMSMessage{"messages": messages})
}

// respondServiceError maps service-layer errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrNotParticipant):
		h.respondError(w, http.StatusForbidden, "user is not a participant of this match")
	case errors.Is(err, database.ErrConflict):
		h.respondError(w, http.StatusConflict, "concurrent update, please retry")
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
