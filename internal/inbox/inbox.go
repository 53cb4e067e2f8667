// Package inbox implements the idempotent-consumer dedup check from
// spec.md §4.3, grounded on original_source/finpay/common/outbox.py's
// sibling inbox helpers: every consumed event is recorded by
// (event_id, consumed_by_service) before its handler runs, so a
// redelivered event is recognized and skipped rather than reapplied.
package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"

	"finpay/internal/metrics"
)

// MarkIfNew records eventID as consumed by service inside tx. It returns
// true if this is the first time the event has been seen by that service
// (the caller should proceed), or false if the (event_id, service) pair
// already exists (the caller should skip the handler body and commit).
func MarkIfNew(ctx context.Context, tx pgx.Tx, table, eventID, service, topic string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO `+table+` (event_id, consumed_by_service, topic, consumed_at) VALUES ($1, $2, $3, now()) ON CONFLICT DO NOTHING`,
		eventID, service, topic,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		metrics.DuplicateEventsSkippedTotal.WithLabelValues(service, topic).Inc()
		return false, nil
	}
	return true, nil
}
