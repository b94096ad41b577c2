package event

import "time"

// DomainEventEnvelope is the canonical envelope exchanged with the
// society-management app.
// NOTE: message_id is optional for backward compatibility.
type DomainEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// EventSnapshotPayload carries the catalog fields for event.published and
// event.updated. Extra fields from newer producers are ignored by
// json.Unmarshal; max_participants is a pointer so a missing value can be
// told apart from an explicit 0 (unlimited).
type EventSnapshotPayload struct {
	EventID     string `json:"event_id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Date        string `json:"date,omitempty"` // RFC3339
	Status      string `json:"status,omitempty"`

	MaxParticipants *int `json:"max_participants,omitempty"`

	EmailDomain  string `json:"email_domain,omitempty"`
	RequirePhone bool   `json:"require_phone,omitempty"`
	OrganizerID  string `json:"organizer_id,omitempty"`
}

type EventUpdatedPayload = EventSnapshotPayload

// EventCancelledPayload accepts both event_id and legacy id for robustness.
type EventCancelledPayload struct {
	EventID string `json:"event_id,omitempty"`
	ID      string `json:"id,omitempty"` // legacy / older producer
	Reason  string `json:"reason,omitempty"`
}
