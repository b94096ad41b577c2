package postgres

import (
	"context"
	"fmt"

	"github.com/societyhub/registration-service/internal/domain"
	"github.com/google/uuid"
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ListParticipants pages in registration order (registered_at ASC, id ASC).
// The cursor means "start after this row": WHERE (registered_at, id) > (...).
func (r *Repository) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{eventID}
	where := "WHERE event_id = $1"
	argN := 2

	if cursor != nil {
		where += fmt.Sprintf(" AND (registered_at, id) > ($%d, $%d)", argN, argN+1)
		args = append(args, cursor.RegisteredAt, cursor.ID)
		argN += 2
	}

	q := fmt.Sprintf(`
		SELECT id, event_id, name, email, phone, registered_at
		FROM participants
		%s
		ORDER BY registered_at ASC, id ASC
		LIMIT %d
	`, where, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, storeErr("list participants", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.EventID, &p.Name, &p.Email, &p.Phone, &p.RegisteredAt); err != nil {
			return nil, nil, storeErr("scan participant", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storeErr("list participants", err)
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{RegisteredAt: last.RegisteredAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}
