package risk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"finpay/internal/eventbus"
)

// Service implements the risk decision engine and manual-review queue from
// spec.md §4.6.
type Service struct {
	repo         *Repository
	rules        *RuleEngine
	orchestrator *OrchestratorClient
}

// NewService builds a Service.
func NewService(repo *Repository, rules *RuleEngine, orchestrator *OrchestratorClient) *Service {
	return &Service{repo: repo, rules: rules, orchestrator: orchestrator}
}

// HandlePaymentRequested evaluates the rule engine for one payments.requested
// event and emits risk.approved or risk.denied.
func (s *Service) HandlePaymentRequested(ctx context.Context, env eventbus.Envelope) error {
	customerID, _ := env.Payload["customer_id"].(string)
	amountCentsF, _ := env.Payload["amount_cents"].(float64)
	amountCents := int64(amountCentsF)

	decision, reason, err := s.rules.Decide(ctx, customerID, amountCents)
	if err != nil {
		return fmt.Errorf("evaluate risk rules: %w", err)
	}

	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, "payments.requested")
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		if decision == DecisionReview {
			existing, err := s.repo.FindReviewByPaymentID(ctx, tx, env.AggregateID)
			if err != nil {
				return err
			}
			if existing == nil {
				if err := s.repo.InsertReview(ctx, tx, uuid.NewString(), env.AggregateID, customerID, amountCents, reason); err != nil {
					return fmt.Errorf("insert review: %w", err)
				}
			}
		}

		topic := "risk.denied"
		if decision == DecisionApprove {
			topic = "risk.approved"
		}

		outEnv := eventbus.NewEnvelope(topic, env.AggregateID, env.TraceID, map[string]interface{}{
			"decision":    string(decision),
			"reason":      reason,
			"customer_id": customerID,
		})
		return s.repo.InsertOutboxEvent(ctx, tx, env.AggregateID, topic, outEnv)
	})
}

// ListReviews returns reviews for the ops dashboard.
func (s *Service) ListReviews(ctx context.Context, status string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListReviews(ctx, status, limit)
}

// ManualDecision applies an ops decision to a pending review, per spec.md
// §4.6's manual review endpoint algorithm.
func (s *Service) ManualDecision(ctx context.Context, paymentID string, decision ReviewStatus, reviewedBy string) error {
	if decision != ReviewApproved && decision != ReviewDenied {
		return &ErrReviewConflict{Reason: "decision must be APPROVED or DENIED"}
	}

	status, err := s.orchestrator.GetStatus(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("check payment status: %w", err)
	}
	if status != "RISK_REVIEW" {
		return &ErrReviewConflict{Reason: "payment is not in RISK_REVIEW"}
	}

	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		review, err := s.repo.FindReviewByPaymentID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if review == nil {
			return &ErrReviewNotFound{PaymentID: paymentID}
		}
		if review.Status != ReviewPending {
			return &ErrReviewConflict{Reason: "review is not PENDING"}
		}

		topic := "risk.denied"
		reason := "manual_deny"
		if decision == ReviewApproved {
			topic = "risk.approved"
			reason = "manual_approve"
		}

		outEnv := eventbus.NewEnvelope(topic, paymentID, "", map[string]interface{}{
			"decision":    string(decisionForTopic(topic)),
			"reason":      reason,
			"customer_id": review.CustomerID,
		})

		if err := s.repo.InsertOutboxEvent(ctx, tx, paymentID, topic, outEnv); err != nil {
			return err
		}
		return s.repo.UpdateReviewDecision(ctx, tx, review.ReviewID, decision, reviewedBy, outEnv.EventID)
	})
}

func decisionForTopic(topic string) Decision {
	if topic == "risk.approved" {
		return DecisionApprove
	}
	return DecisionDeny
}
