package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finpay/internal/eventbus"
	"finpay/internal/inbox"
	"finpay/internal/metrics"
	"finpay/internal/outbox"
	"finpay/internal/statemachine"
)

const (
	tableOutbox   = "orchestrator_outbox_events"
	tableInbox    = "orchestrator_inbox_events"
	tablePayments = "payments"
	tableTimeline = "payment_timeline"
	tableAttempts = "payment_attempts"
)

// Repository is the orchestrator's pgx-backed data-access layer. Every
// business mutation and its outbox/inbox side effects commit together in
// one local transaction, per spec.md §3's ownership rule.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an open pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OutboxEvent is one event to insert alongside a business mutation.
type OutboxEvent struct {
	Topic    string
	Envelope eventbus.Envelope
}

// CreateOrGet inserts a new CREATED payment unless idempotencyKey already
// exists, in which case the existing row is returned — the storage-level
// idempotency guard spec.md §6 falls back to when the gateway's cache
// misses.
func (r *Repository) CreateOrGet(ctx context.Context, customerID string, amountCents int64, currency, idempotencyKey, paymentID string, requestedEvent OutboxEvent) (*Payment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin create payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var p Payment

	insertQuery := `
		INSERT INTO ` + tablePayments + `
			(payment_id, customer_id, amount_cents, currency, status, state_version, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING payment_id, customer_id, amount_cents, currency, status, state_version, idempotency_key, created_at, updated_at
	`
	err = tx.QueryRow(ctx, insertQuery, paymentID, customerID, amountCents, currency, string(statemachine.Created), idempotencyKey, now).
		Scan(&p.PaymentID, &p.CustomerID, &p.AmountCents, &p.Currency, &p.Status, &p.StateVersion, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: another payment already owns this idempotency key.
		existing, getErr := r.getByIdempotencyKeyTx(ctx, tx, idempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, false, fmt.Errorf("commit idempotent lookup tx: %w", commitErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert payment: %w", err)
	}

	firstTimeline := `
		INSERT INTO ` + tableTimeline + ` (payment_id, from_state, to_state, reason, event_id, created_at)
		VALUES ($1, NULL, $2, 'created', $3, $4)
	`
	if _, err := tx.Exec(ctx, firstTimeline, p.PaymentID, string(statemachine.Created), requestedEvent.Envelope.EventID, now); err != nil {
		return nil, false, fmt.Errorf("insert initial timeline row: %w", err)
	}

	if err := outbox.Insert(ctx, tx, tableOutbox, requestedEvent.Envelope.EventID, "Payment", p.PaymentID, "payments.requested", requestedEvent.Topic, requestedEvent.Envelope); err != nil {
		return nil, false, fmt.Errorf("insert requested outbox row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit create payment tx: %w", err)
	}
	return &p, true, nil
}

func (r *Repository) getByIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, idempotencyKey string) (*Payment, error) {
	var p Payment
	query := `
		SELECT payment_id, customer_id, amount_cents, currency, status, state_version, idempotency_key, created_at, updated_at
		FROM ` + tablePayments + ` WHERE idempotency_key = $1
	`
	err := tx.QueryRow(ctx, query, idempotencyKey).
		Scan(&p.PaymentID, &p.CustomerID, &p.AmountCents, &p.Currency, &p.Status, &p.StateVersion, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lookup payment by idempotency key: %w", err)
	}
	return &p, nil
}

// GetByID fetches a payment by id.
func (r *Repository) GetByID(ctx context.Context, paymentID string) (*Payment, error) {
	var p Payment
	query := `
		SELECT payment_id, customer_id, amount_cents, currency, status, state_version, idempotency_key, created_at, updated_at
		FROM ` + tablePayments + ` WHERE payment_id = $1
	`
	err := r.pool.QueryRow(ctx, query, paymentID).
		Scan(&p.PaymentID, &p.CustomerID, &p.AmountCents, &p.Currency, &p.Status, &p.StateVersion, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrPaymentNotFound{PaymentID: paymentID}
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

// InboxMarkIfNew reports whether (eventID, "orchestrator") has not yet been
// consumed, inserting the dedup row as part of tx so a concurrent redelivery
// sees it immediately upon commit.
func (r *Repository) InboxMarkIfNew(ctx context.Context, tx pgx.Tx, eventID, topic string) (bool, error) {
	return inbox.MarkIfNew(ctx, tx, tableInbox, eventID, "orchestrator", topic)
}

// WithTx runs fn inside a fresh transaction, committing on success and
// rolling back otherwise — the scoped-per-operation lifecycle spec.md §9
// calls for instead of a long-lived session.
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

// Transition applies one conditional state-machine update keyed on
// (payment_id, expectedFrom, expectedVersion), writes the timeline row, and
// inserts any produced outbox events, all inside tx. It returns
// ErrConcurrencyConflict if the guarded update affects zero rows.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, paymentID string, expectedFrom statemachine.Status, expectedVersion int64, next statemachine.Status, reason string, eventID *string, events []OutboxEvent) error {
	if err := statemachine.ValidateTransition(expectedFrom, next); err != nil {
		return err
	}

	now := time.Now().UTC()
	updateQuery := `
		UPDATE ` + tablePayments + `
		SET status = $1, state_version = state_version + 1, updated_at = $2
		WHERE payment_id = $3 AND status = $4 AND state_version = $5
	`
	tag, err := tx.Exec(ctx, updateQuery, string(next), now, paymentID, string(expectedFrom), expectedVersion)
	if err != nil {
		return fmt.Errorf("transition update: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return &ErrConcurrencyConflict{PaymentID: paymentID, Expected: expectedFrom, Version: expectedVersion}
	}

	timelineQuery := `
		INSERT INTO ` + tableTimeline + ` (payment_id, from_state, to_state, reason, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, timelineQuery, paymentID, string(expectedFrom), string(next), reason, eventID, now); err != nil {
		return fmt.Errorf("insert timeline row: %w", err)
	}

	for _, evt := range events {
		if err := outbox.Insert(ctx, tx, tableOutbox, evt.Envelope.EventID, "Payment", paymentID, evt.Envelope.EventType, evt.Topic, evt.Envelope); err != nil {
			return fmt.Errorf("insert outbox event %s: %w", evt.Envelope.EventType, err)
		}
	}

	if statemachine.IsTerminal(next) {
		if err := r.observeTerminalLatency(ctx, tx, paymentID, next); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) observeTerminalLatency(ctx context.Context, tx pgx.Tx, paymentID string, terminal statemachine.Status) error {
	var createdAt time.Time
	if err := tx.QueryRow(ctx, `SELECT created_at FROM `+tablePayments+` WHERE payment_id = $1`, paymentID).Scan(&createdAt); err != nil {
		return fmt.Errorf("read created_at for terminal latency: %w", err)
	}
	metrics.PaymentE2ESeconds.WithLabelValues("orchestrator", string(terminal)).Observe(time.Since(createdAt).Seconds())
	return nil
}

// InsertAttempt appends a PaymentAttempt row inside tx.
func (r *Repository) InsertAttempt(ctx context.Context, tx pgx.Tx, a Attempt) error {
	query := `
		INSERT INTO ` + tableAttempts + ` (payment_id, attempt_number, result, latency_ms, error_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query, a.PaymentID, a.AttemptNumber, string(a.Result), a.LatencyMs, a.ErrorCode, time.Now().UTC())
	return err
}

