// Package orchestrator owns the Payment aggregate and its state machine,
// the saga's coordinator per spec.md §4.4 — grounded on the teacher's
// internal/domain/models + internal/infrastructure/database split between
// plain structs and a pgx-backed repository.
package orchestrator

import (
	"time"

	"finpay/internal/statemachine"
)

// Payment is the aggregate root: the single source of truth for a
// payment's lifecycle.
type Payment struct {
	PaymentID      string
	CustomerID     string
	AmountCents    int64
	Currency       string
	Status         statemachine.Status
	StateVersion   int64
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Timeline is one append-only audit row for a payment transition.
type Timeline struct {
	PaymentID string
	FromState *statemachine.Status
	ToState   statemachine.Status
	Reason    string
	EventID   *string
	CreatedAt time.Time
}

// AttemptResult is the outcome recorded for one provider authorization try.
type AttemptResult string

const (
	AttemptAuthorized AttemptResult = "AUTHORIZED"
	AttemptFailed     AttemptResult = "FAILED"
)

// Attempt is the operational record of one provider outcome for a payment.
type Attempt struct {
	PaymentID     string
	AttemptNumber int
	Result        AttemptResult
	LatencyMs     int64
	ErrorCode     *string
	CreatedAt     time.Time
}

// ErrPaymentNotFound is returned when a lookup by payment_id finds nothing.
type ErrPaymentNotFound struct{ PaymentID string }

func (e *ErrPaymentNotFound) Error() string { return "payment not found: " + e.PaymentID }

// ErrConcurrencyConflict is returned when the conditional transition update
// affects zero rows — the expected (status, state_version) no longer holds.
type ErrConcurrencyConflict struct {
	PaymentID string
	Expected  statemachine.Status
	Version   int64
}

func (e *ErrConcurrencyConflict) Error() string {
	return "concurrency conflict on payment " + e.PaymentID
}
