package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/societyhub/registration-service/internal/audit"
	"github.com/societyhub/registration-service/internal/contracts/event"
	"github.com/societyhub/registration-service/internal/domain"
	"github.com/societyhub/registration-service/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1

	rkEventPublished = "event.published"
	rkEventUpdated   = "event.updated"
	rkEventCancelled = "event.cancelled"
)

// SnapshotStore is the subset of the repository the consumer needs when the
// dedupe fence and the snapshot write share one transaction.
type SnapshotStore interface {
	ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(tx pgx.Tx) error) (bool, error)
	UpsertEventSnapshotTx(ctx context.Context, tx pgx.Tx, snap domain.EventSnapshot) error
	CancelEventTx(ctx context.Context, tx pgx.Tx, traceID string, eventID uuid.UUID, reason string) error
}

type Consumer struct {
	rabbitURL string
	exchange  string
	repo      domain.EventRepository
	cache     domain.CacheRepository // optional; invalidated after snapshot writes
	audit     *audit.Logger          // optional
}

func NewConsumer(rabbitURL, exchange string, repo domain.EventRepository, cache domain.CacheRepository, auditLog *audit.Logger) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		repo:      repo,
		cache:     cache,
		audit:     auditLog,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// Ensure exchange exists (idempotent)
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	q, err := ch.QueueDeclare(
		"registration-service.event-snapshots",
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	for _, rk := range []string{rkEventPublished, rkEventUpdated, rkEventCancelled} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	deliveries, err := ch.Consume(q.Name, "registration-service", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	go func() {
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				if err := c.handleDelivery(ctx, d); err != nil {
					_ = d.Nack(false, true) // transient => requeue
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("consumer started")
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", d.RoutingKey).
		Logger()

	var env event.DomainEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(d.Body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		return nil // poison => drop
	}

	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		return nil
	}

	// message_id: prefer envelope.message_id, then AMQP MessageId, else hash fallback
	msgID := strings.TrimSpace(env.MessageID)
	if msgID == "" {
		msgID = strings.TrimSpace(d.MessageId)
	}
	if msgID == "" {
		h := sha256.Sum256(append([]byte(d.RoutingKey+"\n"), d.Body...))
		msgID = "hash:" + hex.EncodeToString(h[:])
	}

	log := baseLog.With().
		Str("message_id", msgID).
		Str("trace_id", strings.TrimSpace(env.TraceID)).
		Logger()

	const handlerName = "event_snapshots"

	// Strong path: dedupe fence + snapshot write in the SAME DB tx
	if r, ok := any(c.repo).(SnapshotStore); ok {
		applied := false
		processed, err := r.ProcessOnce(ctx, msgID, handlerName, func(tx pgx.Tx) error {
			ok, err := applySnapshotTx(ctx, r, tx, d.RoutingKey, env.Payload, strings.TrimSpace(env.TraceID), log)
			applied = ok
			return err
		})
		if err != nil {
			log.Error().Err(err).Msg("processing failed (requeue)")
			return err
		}
		if !processed {
			log.Info().Msg("duplicate delivery ignored")
			return nil
		}
		if applied {
			c.postApply(ctx, d.RoutingKey, env.Payload, log)
		}
		return nil
	}

	// Compatibility path: optional dedupe (non-atomic)
	type processedMarker interface {
		TryMarkProcessed(ctx context.Context, messageID, handlerName string) (bool, error)
	}

	if pm, ok := any(c.repo).(processedMarker); ok {
		first, err := pm.TryMarkProcessed(ctx, msgID, handlerName)
		if err != nil {
			log.Error().Err(err).Msg("processed_messages insert failed (requeue)")
			return err
		}
		if !first {
			log.Info().Msg("duplicate delivery ignored")
			return nil
		}
	} else {
		// No dedupe available -> still process; better than dropping.
		log.Warn().Msg("repo does not support processed_messages; processing without dedupe")
	}

	if err := applySnapshot(ctx, c.repo, d.RoutingKey, env.Payload, strings.TrimSpace(env.TraceID), log); err != nil {
		return err
	}
	c.postApply(ctx, d.RoutingKey, env.Payload, log)
	return nil
}

// postApply runs after a committed snapshot write: drop the cached
// availability so the next read reflects the new catalog state, and emit the
// audit record. Both best effort.
func (c *Consumer) postApply(ctx context.Context, routingKey string, raw json.RawMessage, log zerolog.Logger) {
	discard := zerolog.New(nil)

	switch routingKey {
	case rkEventPublished, rkEventUpdated:
		snap, ok := parseSnapshot(raw, discard)
		if !ok {
			return
		}
		c.audit.SnapshotApplied(ctx, snap.EventID, string(snap.Status))
		c.dropCached(ctx, snap.EventID, log)

	case rkEventCancelled:
		eid, reason, ok := parseCancellation(raw, discard)
		if !ok {
			return
		}
		c.audit.EventCancelled(ctx, eid, reason)
		c.dropCached(ctx, eid, log)
	}
}

func (c *Consumer) dropCached(ctx context.Context, eventID uuid.UUID, log zerolog.Logger) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DropAvailability(ctx, eventID); err != nil {
		log.Warn().Err(err).Msg("cache invalidation failed")
	}
}

func parseSnapshot(raw json.RawMessage, log zerolog.Logger) (domain.EventSnapshot, bool) {
	var p event.EventSnapshotPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Err(err).Msg("invalid payload json; dropping")
		return domain.EventSnapshot{}, false
	}
	if strings.TrimSpace(p.EventID) == "" {
		log.Warn().Msg("missing event_id; dropping")
		return domain.EventSnapshot{}, false
	}
	eid, err := uuid.Parse(strings.TrimSpace(p.EventID))
	if err != nil {
		log.Warn().Err(err).Msg("invalid event_id; dropping")
		return domain.EventSnapshot{}, false
	}

	snap := domain.EventSnapshot{
		EventID:      eid,
		Title:        strings.TrimSpace(p.Title),
		Description:  strings.TrimSpace(p.Description),
		Venue:        strings.TrimSpace(p.Venue),
		Status:       domain.EventStatus(strings.ToLower(strings.TrimSpace(p.Status))),
		Capacity:     p.MaxParticipants,
		EmailDomain:  strings.ToLower(strings.TrimSpace(p.EmailDomain)),
		RequirePhone: p.RequirePhone,
	}
	if s := strings.TrimSpace(p.Date); s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			snap.StartsAt = &ts
		} else {
			log.Warn().Str("date", s).Msg("unparseable date; keeping previous value")
		}
	}
	if s := strings.TrimSpace(p.OrganizerID); s != "" {
		if oid, err := uuid.Parse(s); err == nil {
			snap.OrganizerID = oid
		} else {
			log.Warn().Msg("invalid organizer_id; keeping previous value")
		}
	}
	return snap, true
}

func parseCancellation(raw json.RawMessage, log zerolog.Logger) (uuid.UUID, string, bool) {
	var p event.EventCancelledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Err(err).Msg("invalid payload json; dropping")
		return uuid.Nil, "", false
	}

	// tolerate legacy field
	eidStr := strings.TrimSpace(p.EventID)
	if eidStr == "" {
		eidStr = strings.TrimSpace(p.ID)
	}
	if eidStr == "" {
		log.Warn().Msg("missing event_id; dropping")
		return uuid.Nil, "", false
	}
	eid, err := uuid.Parse(eidStr)
	if err != nil {
		log.Warn().Err(err).Msg("invalid event_id; dropping")
		return uuid.Nil, "", false
	}

	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		reason = "event_cancelled"
	}
	return eid, reason, true
}

func applySnapshot(ctx context.Context, repo domain.EventRepository, routingKey string, raw json.RawMessage, traceID string, log zerolog.Logger) error {
	switch routingKey {
	case rkEventPublished, rkEventUpdated:
		snap, ok := parseSnapshot(raw, log)
		if !ok {
			return nil
		}
		return repo.UpsertEventSnapshot(ctx, snap)

	case rkEventCancelled:
		eid, reason, ok := parseCancellation(raw, log)
		if !ok {
			return nil
		}
		return repo.CancelEvent(ctx, traceID, eid, reason)

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return nil
	}
}

// applySnapshotTx mirrors applySnapshot inside the ProcessOnce transaction.
// The bool result reports whether a write happened (poison payloads are
// swallowed without one).
func applySnapshotTx(ctx context.Context, r SnapshotStore, tx pgx.Tx, routingKey string, raw json.RawMessage, traceID string, log zerolog.Logger) (bool, error) {
	switch routingKey {
	case rkEventPublished, rkEventUpdated:
		snap, ok := parseSnapshot(raw, log)
		if !ok {
			return false, nil
		}
		return true, r.UpsertEventSnapshotTx(ctx, tx, snap)

	case rkEventCancelled:
		eid, reason, ok := parseCancellation(raw, log)
		if !ok {
			return false, nil
		}
		return true, r.CancelEventTx(ctx, tx, traceID, eid, reason)

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return false, nil
	}
}
