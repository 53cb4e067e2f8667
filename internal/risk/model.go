// Package risk implements the velocity/amount rule engine and manual review
// queue from spec.md §4.6, grounded on the teacher's deposit_consumer +
// PostgresRepository shape, adapted from banking balances to risk
// decisions.
package risk

import "time"

// ReviewStatus is the lifecycle state of a manual review.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewDenied   ReviewStatus = "DENIED"
)

// Review is a manual-review queue entry, created when a rule decision is
// REVIEW.
type Review struct {
	ReviewID        string
	PaymentID       string
	CustomerID      string
	AmountCents     int64
	Reason          string
	Status          ReviewStatus
	ReviewedBy      *string
	ReviewedAt      *time.Time
	DecisionEventID *string
	CreatedAt       time.Time
}

// Decision is the outcome of the velocity/amount rule evaluation.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
	DecisionReview  Decision = "REVIEW"
)

// ErrReviewNotFound is returned when a review lookup by payment_id finds
// nothing.
type ErrReviewNotFound struct{ PaymentID string }

func (e *ErrReviewNotFound) Error() string { return "risk review not found for payment: " + e.PaymentID }

// ErrReviewConflict is returned when a manual decision is attempted on a
// review that is not PENDING, or a payment that is not in RISK_REVIEW.
type ErrReviewConflict struct{ Reason string }

func (e *ErrReviewConflict) Error() string { return "review conflict: " + e.Reason }
