package provideradapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"finpay/internal/eventbus"
	"finpay/internal/logging"
	"finpay/internal/metrics"
)

const maxAttempts = 3

// Service implements the provider adapter's retry/backoff/DLQ/compensation
// mechanics from spec.md §4.5.
type Service struct {
	repo    *Repository
	outcome Outcomer
}

// NewService builds a Service.
func NewService(repo *Repository, outcome Outcomer) *Service {
	return &Service{repo: repo, outcome: outcome}
}

// newBackoff builds the fixed 1s/2s/4s schedule spec.md §4.5/§5 specifies,
// expressed as a zero-jitter exponential backoff rather than a hand-rolled
// power-of-two loop.
func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type authorizePayload struct {
	CustomerID  string `json:"customer_id"`
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amount_cents"`
}

// HandleAuthorizeRequested processes one provider.authorize.requested event
// per spec.md §4.5's numbered algorithm.
func (s *Service) HandleAuthorizeRequested(ctx context.Context, env eventbus.Envelope) error {
	var isNew bool
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		isNew, txErr = s.repo.InboxMarkIfNew(ctx, tx, env.EventID, eventbus.TopicProviderAuthorizeRequested)
		return txErr
	})
	if err != nil {
		return fmt.Errorf("mark provider inbox: %w", err)
	}
	if !isNew {
		return nil
	}

	payload := decodeAuthorizePayload(env.Payload)
	if err := validatePayload(payload); err != nil {
		return s.emitDLQ(ctx, env, DLQNonRetryable, false, "", nil)
	}

	return s.runAttempts(ctx, env, payload)
}

func decodeAuthorizePayload(raw map[string]interface{}) authorizePayload {
	p := authorizePayload{}
	if v, ok := raw["customer_id"].(string); ok {
		p.CustomerID = v
	}
	if v, ok := raw["currency"].(string); ok {
		p.Currency = v
	}
	if v, ok := raw["amount_cents"].(float64); ok {
		p.AmountCents = int64(v)
	}
	return p
}

func validatePayload(p authorizePayload) error {
	if strings.TrimSpace(p.CustomerID) == "" {
		return fmt.Errorf("customer_id must be non-empty")
	}
	if len(p.Currency) != 3 {
		return fmt.Errorf("currency must be a three-letter code")
	}
	if p.AmountCents <= 0 {
		return fmt.Errorf("amount_cents must be positive")
	}
	return nil
}

// runAttempts executes the up-to-3-attempt loop, in memory, after the
// triggering event has already been committed as consumed.
func (s *Service) runAttempts(ctx context.Context, env eventbus.Envelope, payload authorizePayload) error {
	b := newBackoff()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		outcome := s.outcome.Decide(payload.CustomerID)
		latencyMs := time.Since(start).Milliseconds()

		switch outcome {
		case OutcomeSuccess:
			if err := s.repo.InsertAttempt(ctx, Attempt{PaymentID: env.AggregateID, AttemptNumber: attempt, Result: ResultAuthorized, LatencyMs: latencyMs}); err != nil {
				return fmt.Errorf("record authorized attempt: %w", err)
			}
			authorizedEnv := eventbus.NewEnvelope("payments.authorized", env.AggregateID, env.TraceID, map[string]interface{}{
				"attempt_number": attempt,
				"latency_ms":     latencyMs,
			})
			return s.repo.EnqueueOutboxEvent(ctx, env.AggregateID, eventbus.TopicPaymentsAuthorized, authorizedEnv)

		case OutcomeDecline:
			errorCode := ErrorCodeProviderDecline
			if err := s.repo.InsertAttempt(ctx, Attempt{PaymentID: env.AggregateID, AttemptNumber: attempt, Result: ResultFailed, LatencyMs: latencyMs, ErrorCode: &errorCode}); err != nil {
				return fmt.Errorf("record declined attempt: %w", err)
			}
			failedEnv := eventbus.NewEnvelope("payments.failed", env.AggregateID, env.TraceID, map[string]interface{}{
				"attempt_number": attempt,
				"latency_ms":     latencyMs,
				"error_code":     errorCode,
			})
			return s.repo.EnqueueOutboxEvent(ctx, env.AggregateID, eventbus.TopicPaymentsFailed, failedEnv)

		case OutcomeTimeout:
			metrics.RetriesTotal.WithLabelValues("provideradapter", "provider").Inc()
			logging.Warn("provider attempt timed out, retrying", map[string]interface{}{
				"payment_id": env.AggregateID,
				"attempt":    attempt,
			})
			time.Sleep(b.NextBackOff())
			if attempt == maxAttempts {
				return s.exhaustRetries(ctx, env, attempt, latencyMs)
			}
		}
	}
	return nil
}

func (s *Service) exhaustRetries(ctx context.Context, env eventbus.Envelope, attempt int, latencyMs int64) error {
	errorCode := ErrorCodeProviderTimeout
	if err := s.repo.InsertAttempt(ctx, Attempt{PaymentID: env.AggregateID, AttemptNumber: attempt, Result: ResultFailed, LatencyMs: latencyMs, ErrorCode: &errorCode}); err != nil {
		return fmt.Errorf("record exhausted attempt: %w", err)
	}

	failedEnv := eventbus.NewEnvelope("payments.failed", env.AggregateID, env.TraceID, map[string]interface{}{
		"attempt_number": attempt,
		"latency_ms":     latencyMs,
		"error_code":     errorCode,
	})
	if err := s.repo.EnqueueOutboxEvent(ctx, env.AggregateID, eventbus.TopicPaymentsFailed, failedEnv); err != nil {
		return err
	}

	return s.emitDLQ(ctx, env, DLQRetryExhausted, true, eventbus.TopicProviderAuthorizeRequested, &env)
}

func (s *Service) emitDLQ(ctx context.Context, source eventbus.Envelope, errorType string, retryable bool, replayTopic string, failedEvent *eventbus.Envelope) error {
	metrics.DLQPublishedTotal.WithLabelValues("provideradapter", eventbus.TopicProviderAuthorizeRequested, errorType).Inc()

	payload := map[string]interface{}{
		"reason":          "provider authorization could not proceed",
		"error_type":      errorType,
		"retryable":       retryable,
		"source":          "provideradapter",
		"source_event_id": source.EventID,
	}
	if replayTopic != "" {
		payload["replay_topic"] = replayTopic
	}
	if failedEvent != nil {
		payload["failed_event"] = failedEvent
	}

	dlqEnv := eventbus.NewEnvelope("payments.dlq", source.AggregateID, source.TraceID, payload)
	return s.repo.EnqueueOutboxEvent(ctx, source.AggregateID, eventbus.TopicPaymentsDLQ, dlqEnv)
}
