package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finpay/internal/inbox"
)

const (
	tableInbox = "notification_inbox_events"
	tableLogs  = "notification_logs"
)

// Repository is notification's pgx-backed data-access layer. Notification is
// a terminal consumer: it never produces outbox events, so it carries no
// outbox table.
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

// InboxMarkIfNew dedups (event_id, "notification") inside tx.
func (r *Repository) InboxMarkIfNew(ctx context.Context, tx pgx.Tx, eventID, topic string) (bool, error) {
	return inbox.MarkIfNew(ctx, tx, tableInbox, eventID, "notification", topic)
}

// InsertLog writes one notification row inside tx.
func (r *Repository) InsertLog(ctx context.Context, tx pgx.Tx, paymentID string, kind Kind, message string) error {
	query := `
		INSERT INTO ` + tableLogs + ` (notification_id, payment_id, kind, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query, uuid.NewString(), paymentID, string(kind), message, time.Now().UTC())
	return err
}
