package provideradapter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finpay/internal/eventbus"
	"finpay/internal/inbox"
	"finpay/internal/outbox"
)

const (
	tableOutbox   = "provideradapter_outbox_events"
	tableInbox    = "provideradapter_inbox_events"
	tableAttempts = "provider_attempts"
)

// Repository is the provider adapter's pgx-backed data-access layer.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an open pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx scopes fn to one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InboxMarkIfNew dedups (event_id, "provideradapter") inside tx. Per
// spec.md §4.5, the provider adapter marks its inbox row and commits before
// running any attempts, so the in-memory retry loop that follows is
// best-effort: a crash mid-attempt means no further retry happens.
func (r *Repository) InboxMarkIfNew(ctx context.Context, tx pgx.Tx, eventID, topic string) (bool, error) {
	return inbox.MarkIfNew(ctx, tx, tableInbox, eventID, "provideradapter", topic)
}

// InsertAttempt appends a ProviderAttempt row in its own short transaction,
// one per attempt, independent from the inbox-marking transaction.
func (r *Repository) InsertAttempt(ctx context.Context, a Attempt) error {
	query := `
		INSERT INTO ` + tableAttempts + ` (payment_id, attempt_number, result, latency_ms, error_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, a.PaymentID, a.AttemptNumber, string(a.Result), a.LatencyMs, a.ErrorCode, time.Now().UTC())
	return err
}

// EnqueueOutboxEvent inserts a standalone outbox row (its own transaction),
// used by the post-inbox attempt loop which no longer shares a transaction
// with the original event's processing.
func (r *Repository) EnqueueOutboxEvent(ctx context.Context, aggregateID, topic string, env eventbus.Envelope) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := outbox.Insert(ctx, tx, tableOutbox, env.EventID, "Payment", aggregateID, env.EventType, topic, env); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
