package service

import (
	"context"
	"errors"
	"strings"

	"github.com/societyhub/registration-service/internal/audit"
	"github.com/societyhub/registration-service/internal/domain"
	"github.com/google/uuid"
)

type RegistrationService struct {
	repo  domain.EventRepository
	cache domain.CacheRepository
	audit *audit.Logger

	publicBaseURL string
}

func NewRegistrationService(repo domain.EventRepository, cache domain.CacheRepository, auditLog *audit.Logger, publicBaseURL string) *RegistrationService {
	return &RegistrationService{
		repo:          repo,
		cache:         cache,
		audit:         auditLog,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func isPrivileged(role string) bool {
	return strings.ToLower(strings.TrimSpace(role)) == "admin"
}

func (s *RegistrationService) requireOrganizerOrAdmin(ctx context.Context, eventID, requesterID uuid.UUID, role string) error {
	if isPrivileged(role) {
		return nil
	}
	organizer, err := s.repo.GetEventOrganizerID(ctx, eventID)
	if err != nil {
		return err
	}
	if organizer != requesterID {
		return domain.ErrForbidden
	}
	return nil
}

// Register runs the registration workflow: normalize, validate against the
// event's policy, then delegate the capacity/duplicate checks to the store's
// atomic commit. Validation failures never reach the store, so a rejected
// request leaves the participant list untouched.
func (s *RegistrationService) Register(ctx context.Context, traceID string, eventID uuid.UUID, req domain.RegistrationRequest) (domain.Participant, domain.Availability, error) {
	req = req.Normalize()

	// Cache fast-fail for known-closed events. Best effort only; the commit
	// path re-checks everything against authoritative state.
	if s.cache != nil {
		if avail, err := s.cache.GetAvailability(ctx, eventID); err == nil && avail.Closed {
			s.audit.RegistrationRejected(ctx, eventID, req.Email, "registration_closed")
			return domain.Participant{}, domain.Availability{}, domain.ErrRegistrationClosed
		}
	}

	ev, err := s.repo.FetchEvent(ctx, eventID)
	if err != nil {
		return domain.Participant{}, domain.Availability{}, err
	}

	if !ev.Status.AcceptsRegistrations() {
		s.audit.RegistrationRejected(ctx, eventID, req.Email, "registration_closed")
		return domain.Participant{}, domain.Availability{}, domain.ErrRegistrationClosed
	}

	if err := req.Validate(ev); err != nil {
		s.audit.RegistrationRejected(ctx, eventID, req.Email, rejectionReason(err))
		return domain.Participant{}, domain.Availability{}, err
	}

	p, avail, err := s.repo.RegisterParticipant(ctx, traceID, eventID, req)
	if err != nil {
		if errors.Is(err, domain.ErrEventFull) || errors.Is(err, domain.ErrAlreadyRegistered) || errors.Is(err, domain.ErrRegistrationClosed) {
			s.audit.RegistrationRejected(ctx, eventID, req.Email, rejectionReason(err))
		}
		return domain.Participant{}, domain.Availability{}, err
	}

	if s.cache != nil {
		_ = s.cache.SetAvailability(ctx, eventID, avail)
	}

	s.audit.RegistrationCreated(ctx, eventID, p.ID, p.Email, avail.AvailableSlots)
	if avail.IsFull {
		s.audit.EventFilled(ctx, eventID, avail.MaxParticipants)
	}
	return p, avail, nil
}

// GetEvent returns the catalog record together with its derived capacity view.
func (s *RegistrationService) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, domain.Availability, error) {
	ev, err := s.repo.FetchEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, domain.Availability{}, err
	}
	return ev, ev.Availability(), nil
}

// Availability is the read-through capacity display path.
func (s *RegistrationService) Availability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error) {
	if s.cache != nil {
		if avail, err := s.cache.GetAvailability(ctx, eventID); err == nil {
			return avail, nil
		}
	}

	ev, err := s.repo.FetchEvent(ctx, eventID)
	if err != nil {
		return domain.Availability{}, err
	}
	avail := ev.Availability()

	if s.cache != nil {
		_ = s.cache.SetAvailability(ctx, eventID, avail)
	}
	return avail, nil
}

// RegistrationLink builds the opaque deep-link URL encoded into QR codes.
// Anyone who resolves it lands on the public registration form for the event.
func (s *RegistrationService) RegistrationLink(ctx context.Context, eventID uuid.UUID) (string, error) {
	if _, err := s.repo.FetchEvent(ctx, eventID); err != nil {
		return "", err
	}
	return s.publicBaseURL + "/events/" + eventID.String() + "/register", nil
}

// ListParticipants is restricted to the event's organizer (society head) or
// an admin.
func (s *RegistrationService) ListParticipants(ctx context.Context, eventID, requesterID uuid.UUID, role string, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	if err := s.requireOrganizerOrAdmin(ctx, eventID, requesterID, role); err != nil {
		return nil, nil, err
	}
	return s.repo.ListParticipants(ctx, eventID, limit, cursor)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEventFull):
		return "event_full"
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, domain.ErrRegistrationClosed):
		return "registration_closed"
	case errors.Is(err, domain.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, domain.ErrInvalidPhone):
		return "invalid_phone"
	default:
		return "error"
	}
}
