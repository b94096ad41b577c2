package audit

import (
	"context"

	appCtx "github.com/societyhub/registration-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// RegistrationCreated logs a successful registration commit.
func (l *Logger) RegistrationCreated(ctx context.Context, eventID, participantID uuid.UUID, email string, slotsLeft int) {
	if l == nil {
		return
	}
	l.log.Info().
		Str("action", "registration_created").
		Str("event_id", eventID.String()).
		Str("participant_id", participantID.String()).
		Str("email", email).
		Int("available_slots", slotsLeft).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Participant registered")
}

// RegistrationRejected logs a rejected registration attempt with the
// user-facing reason. Every reason here is expected and non-fatal.
func (l *Logger) RegistrationRejected(ctx context.Context, eventID uuid.UUID, email, reason string) {
	if l == nil {
		return
	}
	l.log.Info().
		Str("action", "registration_rejected").
		Str("event_id", eventID.String()).
		Str("email", email).
		Str("reason", reason).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Registration rejected")
}

// EventFilled logs the commit that took the last seat.
func (l *Logger) EventFilled(ctx context.Context, eventID uuid.UUID, capacity int) {
	if l == nil {
		return
	}
	l.log.Warn().
		Str("action", "event_filled").
		Str("event_id", eventID.String()).
		Int("capacity", capacity).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Event reached capacity")
}

// SnapshotApplied logs an event catalog snapshot ingested from the
// society-management app.
func (l *Logger) SnapshotApplied(ctx context.Context, eventID uuid.UUID, status string) {
	if l == nil {
		return
	}
	l.log.Info().
		Str("action", "snapshot_applied").
		Str("event_id", eventID.String()).
		Str("status", status).
		Msg("Event snapshot applied")
}

// EventCancelled logs registration being closed by a cancellation message.
func (l *Logger) EventCancelled(ctx context.Context, eventID uuid.UUID, reason string) {
	if l == nil {
		return
	}
	l.log.Warn().
		Str("action", "event_cancelled").
		Str("event_id", eventID.String()).
		Str("reason", reason).
		Msg("Event cancelled; registration closed")
}
