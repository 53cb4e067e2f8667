package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"finpay/internal/eventbus"
	"finpay/internal/logging"
	"finpay/internal/metrics"
	"finpay/internal/statemachine"
)

// Service implements the orchestrator's event-to-transition mapping from
// spec.md §4.4 on top of Repository.
type Service struct {
	repo *Repository
}

// NewService builds a Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// CreatePayment inserts a new payment (or returns the existing one for a
// reused idempotency_key) and self-emits payments.requested.
func (s *Service) CreatePayment(ctx context.Context, customerID string, amountCents int64, currency, idempotencyKey, traceID string) (*Payment, error) {
	start := time.Now()
	defer func() {
		metrics.PaymentLatencySeconds.WithLabelValues("orchestrator").Observe(time.Since(start).Seconds())
	}()

	metrics.PaymentRequestsTotal.WithLabelValues("orchestrator").Inc()

	paymentID := uuid.NewString()
	env := eventbus.NewEnvelope("payments.requested", paymentID, traceID, map[string]interface{}{
		"customer_id":  customerID,
		"amount_cents": amountCents,
		"currency":     currency,
	})

	payment, created, err := s.repo.CreateOrGet(ctx, customerID, amountCents, currency, idempotencyKey, paymentID,
		OutboxEvent{Topic: eventbus.TopicPaymentsRequested, Envelope: env})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if created {
		logging.Info("payment created", map[string]interface{}{"payment_id": payment.PaymentID, "customer_id": customerID})
	}
	return payment, nil
}

// GetPayment fetches a payment by id.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	return s.repo.GetByID(ctx, paymentID)
}

// HandleRiskApproved reacts to risk.approved: APPROVED, then requests
// provider authorization.
func (s *Service) HandleRiskApproved(ctx context.Context, env eventbus.Envelope) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicRiskApproved)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		payment, err := s.loadForTransition(ctx, tx, env.AggregateID)
		if err != nil {
			if _, notFound := err.(*ErrPaymentNotFound); notFound {
				return nil // absorb spurious event per spec.md §4.4 missing-payment policy
			}
			return err
		}

		authorizeEvent := eventbus.NewEnvelope("provider.authorize.requested", payment.PaymentID, env.TraceID, map[string]interface{}{
			"amount_cents": payment.AmountCents,
			"currency":     payment.Currency,
			"customer_id":  payment.CustomerID,
		})

		return s.repo.Transition(ctx, tx, payment.PaymentID, payment.Status, payment.StateVersion, statemachine.Approved,
			"risk_approved", &env.EventID, []OutboxEvent{{Topic: eventbus.TopicProviderAuthorizeRequested, Envelope: authorizeEvent}})
	})
}

// HandleRiskDenied reacts to risk.denied: REVIEW routes to RISK_REVIEW, DENY
// routes to FAILED.
func (s *Service) HandleRiskDenied(ctx context.Context, env eventbus.Envelope) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicRiskDenied)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		payment, err := s.loadForTransition(ctx, tx, env.AggregateID)
		if err != nil {
			if _, notFound := err.(*ErrPaymentNotFound); notFound {
				return nil
			}
			return err
		}

		decision, _ := env.Payload["decision"].(string)
		reason, _ := env.Payload["reason"].(string)

		next := statemachine.Failed
		if decision == "REVIEW" {
			next = statemachine.RiskReview
		}

		if err := s.repo.Transition(ctx, tx, payment.PaymentID, payment.Status, payment.StateVersion, next, reason, &env.EventID, nil); err != nil {
			return err
		}
		if next == statemachine.Failed {
			metrics.PaymentFailureTotal.WithLabelValues("orchestrator").Inc()
		}
		return nil
	})
}

// HandlePaymentsAuthorized applies the two back-to-back transitions
// APPROVED→AUTHORIZED→CAPTURED sharing the same event_id, per spec.md §4.4's
// documented Open Question shape, and appends the PaymentAttempt row.
func (s *Service) HandlePaymentsAuthorized(ctx context.Context, env eventbus.Envelope) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicPaymentsAuthorized)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		payment, err := s.loadForTransition(ctx, tx, env.AggregateID)
		if err != nil {
			if _, notFound := err.(*ErrPaymentNotFound); notFound {
				return nil
			}
			return err
		}

		attemptNumber, _ := env.Payload["attempt_number"].(float64)
		latencyMs, _ := env.Payload["latency_ms"].(float64)

		if err := s.repo.Transition(ctx, tx, payment.PaymentID, payment.Status, payment.StateVersion, statemachine.Authorized, "payment_authorized", &env.EventID, nil); err != nil {
			return err
		}

		if err := s.repo.InsertAttempt(ctx, tx, Attempt{
			PaymentID:     payment.PaymentID,
			AttemptNumber: int(attemptNumber),
			Result:        AttemptAuthorized,
			LatencyMs:     int64(latencyMs),
		}); err != nil {
			return err
		}

		capturedEvent := eventbus.NewEnvelope("payments.captured", payment.PaymentID, env.TraceID, map[string]interface{}{
			"amount_cents": payment.AmountCents,
			"currency":     payment.Currency,
			"customer_id":  payment.CustomerID,
		})

		return s.repo.Transition(ctx, tx, payment.PaymentID, statemachine.Authorized, payment.StateVersion+1, statemachine.Captured,
			"payment_authorized", &env.EventID, []OutboxEvent{{Topic: eventbus.TopicPaymentsCaptured, Envelope: capturedEvent}})
	})
}

// HandlePaymentsFailed applies FAILED, appending the PaymentAttempt row, and
// compensates to REVERSED when the failure was a provider timeout.
func (s *Service) HandlePaymentsFailed(ctx context.Context, env eventbus.Envelope) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicPaymentsFailed)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		payment, err := s.loadForTransition(ctx, tx, env.AggregateID)
		if err != nil {
			if _, notFound := err.(*ErrPaymentNotFound); notFound {
				return nil
			}
			return err
		}
		if payment.Status == statemachine.Failed {
			return nil // guard: status ≠ FAILED per spec.md §4.4
		}

		attemptNumber, _ := env.Payload["attempt_number"].(float64)
		latencyMs, _ := env.Payload["latency_ms"].(float64)
		errorCode, _ := env.Payload["error_code"].(string)

		if err := s.repo.Transition(ctx, tx, payment.PaymentID, payment.Status, payment.StateVersion, statemachine.Failed, "payment_failed", &env.EventID, nil); err != nil {
			return err
		}
		metrics.PaymentFailureTotal.WithLabelValues("orchestrator").Inc()

		if err := s.repo.InsertAttempt(ctx, tx, Attempt{
			PaymentID:     payment.PaymentID,
			AttemptNumber: int(attemptNumber),
			Result:        AttemptFailed,
			LatencyMs:     int64(latencyMs),
			ErrorCode:     &errorCode,
		}); err != nil {
			return err
		}

		if errorCode != "PROVIDER_TIMEOUT" {
			return nil
		}

		reversedEvent := eventbus.NewEnvelope("payments.reversed", payment.PaymentID, env.TraceID, map[string]interface{}{
			"reason":          "provider_timeout",
			"source_event_id": env.EventID,
		})
		return s.repo.Transition(ctx, tx, payment.PaymentID, statemachine.Failed, payment.StateVersion+1, statemachine.Reversed,
			"provider_timeout_compensation", &env.EventID, []OutboxEvent{{Topic: eventbus.TopicPaymentsReversed, Envelope: reversedEvent}})
	})
}

// HandlePaymentsSettled applies the final SETTLED transition.
func (s *Service) HandlePaymentsSettled(ctx context.Context, env eventbus.Envelope) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicPaymentsSettled)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		payment, err := s.loadForTransition(ctx, tx, env.AggregateID)
		if err != nil {
			if _, notFound := err.(*ErrPaymentNotFound); notFound {
				return nil
			}
			return err
		}

		if err := s.repo.Transition(ctx, tx, payment.PaymentID, payment.Status, payment.StateVersion, statemachine.Settled, "ledger_settled", &env.EventID, nil); err != nil {
			return err
		}
		metrics.PaymentSuccessTotal.WithLabelValues("orchestrator").Inc()
		return nil
	})
}

// loadForTransition reads the current payment row without locking it: the
// state machine relies on optimistic concurrency (the conditional UPDATE in
// Transition), not row locks, so a concurrent handler racing on the same
// payment surfaces as ErrConcurrencyConflict rather than blocking.
func (s *Service) loadForTransition(ctx context.Context, tx pgx.Tx, paymentID string) (*Payment, error) {
	var p Payment
	query := `
		SELECT payment_id, customer_id, amount_cents, currency, status, state_version, idempotency_key, created_at, updated_at
		FROM ` + tablePayments + ` WHERE payment_id = $1
	`
	err := tx.QueryRow(ctx, query, paymentID).
		Scan(&p.PaymentID, &p.CustomerID, &p.AmountCents, &p.Currency, &p.Status, &p.StateVersion, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrPaymentNotFound{PaymentID: paymentID}
		}
		return nil, fmt.Errorf("load payment for transition: %w", err)
	}
	return &p, nil
}
