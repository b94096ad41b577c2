package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/societyhub/registration-service/internal/pkg/logger"
)

const (
	sentOutboxRetention       = 7 * 24 * time.Hour
	processedMessageRetention = 14 * 24 * time.Hour
)

// StartMaintenance starts a background goroutine that periodically prunes
// delivered outbox rows and old processed-message markers so neither table
// grows without bound. Runs hourly, and once immediately on startup.
func (r *Repository) StartMaintenance(ctx context.Context) {
	go func() {
		log := logger.Logger.With().Str("component", "maintenance").Logger()
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		r.pruneOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.pruneOnce(ctx)
			}
		}
	}()
}

func (r *Repository) pruneOnce(ctx context.Context) {
	log := logger.Logger.With().Str("component", "maintenance").Logger()

	result, err := r.pool.Exec(ctx,
		`DELETE FROM outbox WHERE status = 'sent' AND occurred_at < NOW() - $1::interval`,
		fmt.Sprintf("%f seconds", sentOutboxRetention.Seconds()))
	if err != nil {
		log.Warn().Err(err).Msg("outbox prune failed")
	} else if n := result.RowsAffected(); n > 0 {
		log.Info().Int64("deleted", n).Msg("sent outbox rows pruned")
	}

	result, err = r.pool.Exec(ctx,
		`DELETE FROM processed_messages WHERE processed_at < NOW() - $1::interval`,
		fmt.Sprintf("%f seconds", processedMessageRetention.Seconds()))
	if err != nil {
		log.Warn().Err(err).Msg("processed_messages prune failed")
	} else if n := result.RowsAffected(); n > 0 {
		log.Info().Int64("deleted", n).Msg("processed message markers pruned")
	}
}
