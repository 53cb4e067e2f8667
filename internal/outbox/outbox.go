// Package outbox implements the transactional outbox claim/publish/mark/
// requeue cycle from spec.md §4.2, a direct port of
// original_source/finpay/common/outbox.py's claim_outbox_batch /
// mark_outbox_sent / requeue_outbox_event onto pgx, using
// SELECT ... FOR UPDATE SKIP LOCKED the way the teacher's
// AtomicWithdraw/AtomicTransfer already lock account rows.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finpay/internal/eventbus"
	"finpay/internal/metrics"
)

// Status values for outbox_events.status, per spec.md §3.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSent       = "SENT"
)

// Row is one claimed outbox record ready to publish.
type Row struct {
	ID      string
	Topic   string
	Payload eventbus.Envelope
}

// ClaimBatch atomically claims up to limit PENDING or stale-PROCESSING rows
// from the named table, ordered by created_at, skipping rows locked by other
// publishers. Every service's outbox table shares this shape, so the table
// name is the only per-service parameter.
func ClaimBatch(ctx context.Context, pool *pgxpool.Pool, table string, limit int, processingTimeout time.Duration) ([]Row, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	staleBefore := time.Now().UTC().Add(-processingTimeout)

	query := fmt.Sprintf(`
		WITH claim_ids AS (
			SELECT id FROM %s
			WHERE status = '%s'
			   OR (status = '%s' AND sent_at IS NOT NULL AND sent_at < $1)
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE %s
		SET status = '%s', sent_at = $3
		WHERE id IN (SELECT id FROM claim_ids)
		RETURNING id, topic, payload
	`, table, StatusPending, StatusProcessing, table, StatusProcessing)

	now := time.Now().UTC()
	rows, err := tx.Query(ctx, query, staleBefore, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim batch query: %w", err)
	}

	var claimed []Row
	for rows.Next() {
		var id, topic string
		var env eventbus.Envelope
		if err := rows.Scan(&id, &topic, &env); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimed row: %w", err)
		}
		claimed = append(claimed, Row{ID: id, Topic: topic, Payload: env})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// MarkSent marks one claimed row SENT after a successful publish.
func MarkSent(ctx context.Context, pool *pgxpool.Pool, table, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = '%s', sent_at = $1 WHERE id = $2 AND status = '%s'`,
		table, StatusSent, StatusProcessing)
	_, err := pool.Exec(ctx, query, time.Now().UTC(), id)
	return err
}

// Requeue reverts a claimed row back to PENDING after a publish failure.
func Requeue(ctx context.Context, pool *pgxpool.Pool, table, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = '%s', sent_at = NULL WHERE id = $1 AND status = '%s'`,
		table, StatusPending, StatusProcessing)
	_, err := pool.Exec(ctx, query, id)
	return err
}

// UpdateBacklogMetrics refreshes the pending-depth and oldest-age gauges for
// one service's outbox table.
func UpdateBacklogMetrics(ctx context.Context, pool *pgxpool.Pool, table, serviceName string) error {
	query := fmt.Sprintf(`
		SELECT count(*), min(created_at)
		FROM %s
		WHERE status IN ('%s', '%s')
	`, table, StatusPending, StatusProcessing)

	var count int64
	var oldest *time.Time
	if err := pool.QueryRow(ctx, query).Scan(&count, &oldest); err != nil {
		return err
	}

	age := 0.0
	if oldest != nil {
		age = time.Since(*oldest).Seconds()
		if age < 0 {
			age = 0
		}
	}
	metrics.OutboxPendingTotal.WithLabelValues(serviceName).Set(float64(count))
	metrics.OutboxOldestPendingAgeSeconds.WithLabelValues(serviceName).Set(age)
	return nil
}

// Publisher is the subset of eventbus.Publisher the run loop needs.
type Publisher interface {
	Publish(topic string, key string, env eventbus.Envelope) error
}

// RunLoop executes the publisher algorithm from spec.md §4.2 until ctx is
// cancelled: claim a batch, publish each row, mark it sent or requeue it on
// failure, refresh backlog metrics, sleep, repeat.
func RunLoop(ctx context.Context, pool *pgxpool.Pool, bus Publisher, table, serviceName string) {
	const batchLimit = 100
	const processingTimeout = 30 * time.Second
	const idleSleep = 500 * time.Millisecond

	ticker := time.NewTicker(idleSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rows, err := ClaimBatch(ctx, pool, table, batchLimit, processingTimeout)
		if err != nil {
			continue
		}

		for _, row := range rows {
			if err := bus.Publish(row.Topic, row.Payload.AggregateID, row.Payload); err != nil {
				_ = Requeue(ctx, pool, table, row.ID)
				continue
			}
			_ = MarkSent(ctx, pool, table, row.ID)
		}

		_ = UpdateBacklogMetrics(ctx, pool, table, serviceName)
	}
}

// Insert writes a new PENDING outbox row inside the caller's transaction,
// the same way the teacher inserts a transactions row alongside a balance
// mutation in one commit.
func Insert(ctx context.Context, tx pgx.Tx, table, id, aggregateType, aggregateID, eventType, topic string, env eventbus.Envelope) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, aggregate_type, aggregate_id, event_type, topic, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '%s', $7)
	`, table, StatusPending)
	_, err := tx.Exec(ctx, query, id, aggregateType, aggregateID, eventType, topic, env, time.Now().UTC())
	return err
}
