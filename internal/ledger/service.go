package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"finpay/internal/eventbus"
)

// Service implements the ledger posting engine from spec.md §4.7.
type Service struct {
	repo *Repository
}

// NewService builds a Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// HandleCaptured posts the balanced double-entry pair for one
// payments.captured event.
func (s *Service) HandleCaptured(ctx context.Context, env eventbus.Envelope) error {
	amountCentsF, _ := env.Payload["amount_cents"].(float64)
	amountCents := int64(amountCentsF)
	transactionID := "settlement:" + env.AggregateID

	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicPaymentsCaptured)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		if err := s.repo.PostEntry(ctx, tx, transactionID, AccountIDCustomerCash, AccountIDMerchantReceivable, amountCents); err != nil {
			return fmt.Errorf("post ledger entry: %w", err)
		}

		settledEnv := eventbus.NewEnvelope("payments.settled", env.AggregateID, env.TraceID, map[string]interface{}{
			"transaction_id": transactionID,
			"amount_cents":   amountCents,
		})
		return s.repo.InsertOutboxEvent(ctx, tx, env.AggregateID, eventbus.TopicPaymentsSettled, settledEnv)
	})
}

// Reconcile returns per-transaction sums for the reconciliation endpoints.
func (s *Service) Reconcile(ctx context.Context, transactionID string) (debits, credits int64, balanced bool, err error) {
	debits, credits, err = s.repo.ReconcileOne(ctx, transactionID)
	return debits, credits, debits == credits, err
}

// ReconcileAll returns the global reconciliation summary.
func (s *Service) ReconcileAll(ctx context.Context, limit int) ([]ReconcileSummary, []ReconcileSummary, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.repo.ReconcileAll(ctx, limit)
}
