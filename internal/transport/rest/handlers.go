package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/societyhub/registration-service/internal/domain"
	appCtx "github.com/societyhub/registration-service/internal/pkg/context"
	"github.com/societyhub/registration-service/internal/service"
	"github.com/societyhub/registration-service/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.RegistrationService
}

func NewHandler(svc *service.RegistrationService) *Handler {
	return &Handler{svc: svc}
}

type registrationRequestDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type participantDTO struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

func toParticipantDTO(p domain.Participant) participantDTO {
	return participantDTO{
		ID:           p.ID.String(),
		EventID:      p.EventID.String(),
		Name:         p.Name,
		Email:        p.Email,
		Phone:        p.Phone,
		RegisteredAt: p.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

type eventDTO struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Venue        string              `json:"venue,omitempty"`
	Date         *string             `json:"date,omitempty"`
	Status       string              `json:"status"`
	RequirePhone bool                `json:"require_phone"`
	EmailDomain  string              `json:"email_domain,omitempty"`
	Availability domain.Availability `json:"availability"`
}

func toEventDTO(ev domain.Event, avail domain.Availability) eventDTO {
	dto := eventDTO{
		ID:           ev.ID.String(),
		Title:        ev.Title,
		Description:  ev.Description,
		Venue:        ev.Venue,
		Status:       string(ev.Status),
		RequirePhone: ev.RequirePhone,
		EmailDomain:  ev.EmailDomain,
		Availability: avail,
	}
	if ev.StartsAt != nil {
		s := ev.StartsAt.UTC().Format(time.RFC3339)
		dto.Date = &s
	}
	return dto
}

// Register handles the public registration form submission.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", map[string]string{
			"event_id": "must be a valid uuid",
		})
		return
	}

	var req registrationRequestDTO
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	traceID := appCtx.GetRequestID(r.Context())
	if traceID == "" {
		traceID = "no-request-id"
	}

	p, avail, err := h.svc.Register(r.Context(), traceID, eventID, domain.RegistrationRequest{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusCreated, map[string]any{
		"registration": toParticipantDTO(p),
		"availability": avail,
	})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}

	ev, avail, err := h.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, toEventDTO(ev, avail))
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}

	avail, err := h.svc.Availability(r.Context(), eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, avail)
}

// RegistrationLink returns the deep-link URL the frontend encodes into a QR
// poster for the event.
func (h *Handler) RegistrationLink(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}

	link, err := h.svc.RegistrationLink(r.Context(), eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]string{
		"url": link,
	})
}

func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListParticipants(r.Context(), eventID, auth.UserID, auth.Role, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	dtos := make([]participantDTO, 0, len(items))
	for _, p := range items {
		dtos = append(dtos, toParticipantDTO(p))
	}

	response.Data(w, http.StatusOK, map[string]any{
		"items":       dtos,
		"next_cursor": encodeCursor(next),
	})
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		fail(w, r, http.StatusNotFound, "event.not_found", err.Error(), nil)
		return

	case errors.Is(err, domain.ErrEventFull):
		fail(w, r, http.StatusConflict, "event.full", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrAlreadyRegistered):
		fail(w, r, http.StatusConflict, "already_registered", err.Error(), nil)
		return

	case errors.Is(err, domain.ErrRegistrationClosed):
		fail(w, r, http.StatusGone, "registration.closed", err.Error(), nil)
		return

	case errors.Is(err, domain.ErrInvalidName):
		fail(w, r, http.StatusUnprocessableEntity, "validation.invalid_name", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrInvalidEmail):
		fail(w, r, http.StatusUnprocessableEntity, "validation.invalid_email", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrInvalidPhone):
		fail(w, r, http.StatusUnprocessableEntity, "validation.invalid_phone", err.Error(), nil)
		return

	case errors.Is(err, domain.ErrForbidden):
		fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
		return

	case errors.Is(err, domain.ErrStoreUnavailable):
		// retryable: a resubmission lands on already_registered, never a dupe row
		fail(w, r, http.StatusServiceUnavailable, "store.unavailable", "temporary store failure, retry", nil)
		return

	default:
		// Do not leak internal details by default.
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
