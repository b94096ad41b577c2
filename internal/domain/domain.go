package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	StatusUpcoming  EventStatus = "upcoming"
	StatusOngoing   EventStatus = "ongoing"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
)

// AcceptsRegistrations reports whether the public registration form is open
// for an event in this status. Walk-ins during an ongoing event are allowed;
// completed and cancelled events are closed.
func (s EventStatus) AcceptsRegistrations() bool {
	return s == StatusUpcoming || s == StatusOngoing
}

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventFull          = errors.New("event is full")
	ErrAlreadyRegistered  = errors.New("email already registered for this event")
	ErrRegistrationClosed = errors.New("registration is closed for this event")

	ErrInvalidName  = errors.New("name is required")
	ErrInvalidEmail = errors.New("email does not satisfy the event's email policy")
	ErrInvalidPhone = errors.New("phone must be exactly 10 digits")

	ErrForbidden = errors.New("forbidden")
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreUnavailable marks transient store failures. It is the only
	// error class callers may retry; retries are safe because a duplicate
	// submission resolves to ErrAlreadyRegistered instead of a second row.
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// Event is a catalog snapshot. Records are authored by the society-management
// app and reach this service through snapshot messages; the only mutation this
// service performs is appending participants (and bumping RegisteredCount).
type Event struct {
	ID          uuid.UUID
	Title       string
	Description string
	Venue       string
	StartsAt    *time.Time
	Status      EventStatus

	// MaxParticipants is the capacity ceiling; 0 means unlimited.
	MaxParticipants int
	RegisteredCount int

	// EmailDomain, when non-empty, restricts registrations to addresses
	// with that suffix (e.g. "@stu.example.edu").
	EmailDomain  string
	RequirePhone bool

	OrganizerID uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant is one registration row, keyed by (EventID, Email).
type Participant struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Name         string
	Email        string
	Phone        string
	RegisteredAt time.Time
}

// RegistrationRequest is the public form payload. Normalize before validating
// or persisting.
type RegistrationRequest struct {
	Name  string
	Email string
	Phone string
}

type KeysetCursor struct {
	RegisteredAt time.Time
	ID           uuid.UUID
}

// EventSnapshot is the catalog state carried by event.published and
// event.updated messages. Capacity is a pointer so a missing field can be
// told apart from an explicit 0 (unlimited).
type EventSnapshot struct {
	EventID     uuid.UUID
	Title       string
	Description string
	Venue       string
	StartsAt    *time.Time
	Status      EventStatus
	Capacity    *int

	EmailDomain  string
	RequirePhone bool
	OrganizerID  uuid.UUID
}

// EventRepository is the catalog access interface. RegisterParticipant is the
// single write path for participant lists; it must commit the capacity and
// duplicate checks atomically against state at commit time, because a plain
// read-then-write pair loses updates under concurrent registrants.
type EventRepository interface {
	FetchEvent(ctx context.Context, eventID uuid.UUID) (Event, error)
	RegisterParticipant(ctx context.Context, traceID string, eventID uuid.UUID, req RegistrationRequest) (Participant, Availability, error)

	ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *KeysetCursor) ([]Participant, *KeysetCursor, error)

	// ACL for the organizer-only reads.
	GetEventOrganizerID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error)

	// Snapshot ingestion (consumer paths).
	UpsertEventSnapshot(ctx context.Context, snap EventSnapshot) error
	CancelEvent(ctx context.Context, traceID string, eventID uuid.UUID, reason string) error
}

type CacheRepository interface {
	GetAvailability(ctx context.Context, eventID uuid.UUID) (Availability, error)
	SetAvailability(ctx context.Context, eventID uuid.UUID, avail Availability) error
	DropAvailability(ctx context.Context, eventID uuid.UUID) error

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}
