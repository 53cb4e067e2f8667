package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finpay/internal/eventbus"
	"finpay/internal/inbox"
	"finpay/internal/outbox"
)

const (
	tableOutbox  = "risk_outbox_events"
	tableInbox   = "risk_inbox_events"
	tableReviews = "risk_reviews"
)

// Repository is risk's pgx-backed data-access layer.
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

// InboxMarkIfNew dedups (event_id, "risk") inside tx.
func (r *Repository) InboxMarkIfNew(ctx context.Context, tx pgx.Tx, eventID, topic string) (bool, error) {
	return inbox.MarkIfNew(ctx, tx, tableInbox, eventID, "risk", topic)
}

// FindReviewByPaymentID returns nil, nil if no review exists for paymentID.
func (r *Repository) FindReviewByPaymentID(ctx context.Context, tx pgx.Tx, paymentID string) (*Review, error) {
	query := `
		SELECT review_id, payment_id, customer_id, amount_cents, reason, status, reviewed_by, reviewed_at, decision_event_id, created_at
		FROM ` + tableReviews + ` WHERE payment_id = $1
	`
	var rv Review
	err := tx.QueryRow(ctx, query, paymentID).Scan(
		&rv.ReviewID, &rv.PaymentID, &rv.CustomerID, &rv.AmountCents, &rv.Reason, &rv.Status,
		&rv.ReviewedBy, &rv.ReviewedAt, &rv.DecisionEventID, &rv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find review: %w", err)
	}
	return &rv, nil
}

// InsertReview creates a PENDING review row.
func (r *Repository) InsertReview(ctx context.Context, tx pgx.Tx, reviewID, paymentID, customerID string, amountCents int64, reason string) error {
	query := `
		INSERT INTO ` + tableReviews + ` (review_id, payment_id, customer_id, amount_cents, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query, reviewID, paymentID, customerID, amountCents, reason, string(ReviewPending), time.Now().UTC())
	return err
}

// InsertOutboxEvent writes a new PENDING outbox row inside tx.
func (r *Repository) InsertOutboxEvent(ctx context.Context, tx pgx.Tx, aggregateID, topic string, env eventbus.Envelope) error {
	return outbox.Insert(ctx, tx, tableOutbox, env.EventID, "Payment", aggregateID, env.EventType, topic, env)
}

// ListReviews returns up to limit reviews filtered by status (empty means
// all statuses).
func (r *Repository) ListReviews(ctx context.Context, status string, limit int) ([]Review, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = r.pool.Query(ctx, `
			SELECT review_id, payment_id, customer_id, amount_cents, reason, status, reviewed_by, reviewed_at, decision_event_id, created_at
			FROM `+tableReviews+` WHERE status = $1 ORDER BY created_at ASC LIMIT $2
		`, status, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT review_id, payment_id, customer_id, amount_cents, reason, status, reviewed_by, reviewed_at, decision_event_id, created_at
			FROM `+tableReviews+` ORDER BY created_at ASC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ReviewID, &rv.PaymentID, &rv.CustomerID, &rv.AmountCents, &rv.Reason, &rv.Status,
			&rv.ReviewedBy, &rv.ReviewedAt, &rv.DecisionEventID, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// UpdateReviewDecision records a manual decision inside tx.
func (r *Repository) UpdateReviewDecision(ctx context.Context, tx pgx.Tx, reviewID string, status ReviewStatus, reviewedBy, decisionEventID string) error {
	now := time.Now().UTC()
	query := `
		UPDATE ` + tableReviews + `
		SET status = $1, reviewed_by = $2, reviewed_at = $3, decision_event_id = $4
		WHERE review_id = $5
	`
	_, err := tx.Exec(ctx, query, string(status), reviewedBy, now, decisionEventID, reviewID)
	return err
}
