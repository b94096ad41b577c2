package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/societyhub/registration-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// storeErr wraps infrastructure failures so callers can classify them as the
// retryable class via errors.Is(err, domain.ErrStoreUnavailable).
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

const uniqueViolation = "23505"

func (r *Repository) FetchEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	var (
		ev     domain.Event
		status string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, venue, starts_at, status,
		       max_participants, registered_count,
		       email_domain, require_phone, organizer_id,
		       created_at, updated_at
		FROM events
		WHERE id = $1
	`, eventID).Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.Venue, &ev.StartsAt, &status,
		&ev.MaxParticipants, &ev.RegisteredCount,
		&ev.EmailDomain, &ev.RequirePhone, &ev.OrganizerID,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, storeErr("fetch event", err)
	}
	ev.Status = domain.EventStatus(status)
	return ev, nil
}

// RegisterParticipant commits one registration atomically.
//
// The event row is locked FOR UPDATE before the capacity and duplicate checks,
// which serializes all commits for one event's participant list: two
// concurrent registrants cannot both pass the ceiling check against the same
// pre-append count. The UNIQUE (event_id, email) constraint backstops the
// duplicate scan at the storage level.
func (r *Repository) RegisterParticipant(ctx context.Context, traceID string, eventID uuid.UUID, req domain.RegistrationRequest) (domain.Participant, domain.Availability, error) {
	traceID = strings.TrimSpace(traceID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Participant{}, domain.Availability{}, storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) Authoritative re-read under lock. Page-load-time snapshots are never
	// trusted for the checks below.
	var (
		status     string
		maxSeats   int
		registered int
	)
	err = tx.QueryRow(ctx, `
		SELECT status, max_participants, registered_count
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&status, &maxSeats, &registered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participant{}, domain.Availability{}, domain.ErrEventNotFound
		}
		return domain.Participant{}, domain.Availability{}, storeErr("lock event", err)
	}

	if !domain.EventStatus(status).AcceptsRegistrations() {
		return domain.Participant{}, domain.Availability{}, domain.ErrRegistrationClosed
	}

	// 2) Capacity ceiling (0 = unlimited).
	if maxSeats > 0 && registered >= maxSeats {
		return domain.Participant{}, domain.Availability{}, domain.ErrEventFull
	}

	// 3) Duplicate email within this event. Stored emails are already
	// normalized (lowercase + trim) by the service layer.
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM participants WHERE event_id = $1 AND email = $2
		)
	`, eventID, req.Email).Scan(&exists)
	if err != nil {
		return domain.Participant{}, domain.Availability{}, storeErr("duplicate check", err)
	}
	if exists {
		return domain.Participant{}, domain.Availability{}, domain.ErrAlreadyRegistered
	}

	// 4) Insert; registered_at is assigned by the database at commit time.
	p := domain.Participant{
		ID:      uuid.New(),
		EventID: eventID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO participants (id, event_id, name, email, phone, registered_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING registered_at
	`, p.ID, p.EventID, p.Name, p.Email, p.Phone).Scan(&p.RegisteredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Participant{}, domain.Availability{}, domain.ErrAlreadyRegistered
		}
		return domain.Participant{}, domain.Availability{}, storeErr("insert participant", err)
	}

	// 5) Counter (event row already locked).
	_, err = tx.Exec(ctx, `
		UPDATE events
		SET registered_count = registered_count + 1, updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		return domain.Participant{}, domain.Availability{}, storeErr("bump counter", err)
	}
	newCount := registered + 1

	// 6) Outbox (registration.created, plus event.filled on the last seat).
	payload, _ := json.Marshal(map[string]any{
		"event_id":       eventID,
		"participant_id": p.ID,
		"name":           p.Name,
		"email":          p.Email,
	})
	_, _ = tx.Exec(ctx,
		`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status) VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
		uuid.New(), traceID, "registration.created", payload,
	)

	if maxSeats > 0 && newCount == maxSeats {
		filled, _ := json.Marshal(map[string]any{
			"event_id":         eventID,
			"registered_count": newCount,
		})
		_, _ = tx.Exec(ctx,
			`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status) VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
			uuid.New(), traceID, "event.filled", filled,
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Participant{}, domain.Availability{}, storeErr("commit", err)
	}
	return p, domain.ComputeAvailability(newCount, maxSeats), nil
}

func (r *Repository) GetEventOrganizerID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	var organizer uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT organizer_id FROM events WHERE id = $1`, eventID).Scan(&organizer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, domain.ErrEventNotFound
		}
		return uuid.UUID{}, storeErr("fetch organizer", err)
	}
	return organizer, nil
}

// UpsertEventSnapshot applies an event.published / event.updated snapshot.
// registered_count is owned by this service and never overwritten by a
// snapshot.
func (r *Repository) UpsertEventSnapshot(ctx context.Context, snap domain.EventSnapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.UpsertEventSnapshotTx(ctx, tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// UpsertEventSnapshotTx is used by the RabbitMQ consumer inside the
// ProcessOnce transaction.
func (r *Repository) UpsertEventSnapshotTx(ctx context.Context, tx pgx.Tx, snap domain.EventSnapshot) error {
	status := snap.Status
	if status == "" {
		status = domain.StatusUpcoming
	}
	capacity := 0
	if snap.Capacity != nil {
		capacity = *snap.Capacity
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO events (id, title, description, venue, starts_at, status,
		                    max_participants, registered_count,
		                    email_domain, require_phone, organizer_id,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    venue = EXCLUDED.venue,
		    starts_at = EXCLUDED.starts_at,
		    status = EXCLUDED.status,
		    max_participants = EXCLUDED.max_participants,
		    email_domain = EXCLUDED.email_domain,
		    require_phone = EXCLUDED.require_phone,
		    organizer_id = EXCLUDED.organizer_id,
		    updated_at = NOW()
	`, snap.EventID, snap.Title, snap.Description, snap.Venue, snap.StartsAt, string(status),
		capacity, snap.EmailDomain, snap.RequirePhone, snap.OrganizerID)
	if err != nil {
		return storeErr("upsert snapshot", err)
	}
	return nil
}

// CancelEvent closes registration for a cancelled event and queues one
// notification per registered participant. Participants are never removed.
func (r *Repository) CancelEvent(ctx context.Context, traceID string, eventID uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.CancelEventTx(ctx, tx, traceID, eventID, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// CancelEventTx is called from the consumer inside ProcessOnce(...); the
// caller owns the transaction.
func (r *Repository) CancelEventTx(ctx context.Context, tx pgx.Tx, traceID string, eventID uuid.UUID, reason string) error {
	traceID = strings.TrimSpace(traceID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "event_cancelled"
	}

	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		// Cancellation can outrun the publish snapshot; keep a closed stub so
		// late registrations still get ErrRegistrationClosed, not NotFound.
		_, err = tx.Exec(ctx, `
			INSERT INTO events (id, status, max_participants, registered_count, created_at, updated_at)
			VALUES ($1, 'cancelled', 0, 0, NOW(), NOW())
			ON CONFLICT (id) DO NOTHING
		`, eventID)
		if err != nil {
			return storeErr("insert cancelled stub", err)
		}
		return nil
	}
	if err != nil {
		return storeErr("lock event", err)
	}

	if status == string(domain.StatusCancelled) {
		return nil // idempotent
	}

	_, err = tx.Exec(ctx, `
		UPDATE events SET status = 'cancelled', updated_at = NOW() WHERE id = $1
	`, eventID)
	if err != nil {
		return storeErr("cancel event", err)
	}

	rows, err := tx.Query(ctx, `SELECT name, email FROM participants WHERE event_id = $1`, eventID)
	if err != nil {
		return storeErr("list participants", err)
	}
	type affected struct{ Name, Email string }
	var people []affected
	for rows.Next() {
		var a affected
		if err := rows.Scan(&a.Name, &a.Email); err == nil {
			people = append(people, a)
		}
	}
	rows.Close()

	for _, a := range people {
		payload, _ := json.Marshal(map[string]any{
			"event_id": eventID.String(),
			"name":     a.Name,
			"email":    a.Email,
			"reason":   reason,
			"trace_id": traceID,
			"producer": "registration-service",
		})
		_, err = tx.Exec(ctx, `
			INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
			VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
			uuid.New(), traceID, "email.event_cancelled", payload)
		if err != nil {
			return storeErr("queue notification", err)
		}
	}

	return nil
}
