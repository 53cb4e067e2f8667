package orchestrator

import (
	"context"
	"errors"

	"finpay/internal/eventbus"
	"finpay/internal/logging"
)

// Handlers returns the topic → Handler map the orchestrator's cmd entrypoint
// subscribes one consumer group per topic to, per spec.md §4.4's
// event-to-transition table.
func Handlers(svc *Service) map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		eventbus.TopicRiskApproved:       svc.HandleRiskApproved,
		eventbus.TopicRiskDenied:         svc.HandleRiskDenied,
		eventbus.TopicPaymentsAuthorized: svc.HandlePaymentsAuthorized,
		eventbus.TopicPaymentsFailed:     svc.HandlePaymentsFailed,
		eventbus.TopicPaymentsSettled:    svc.HandlePaymentsSettled,
	}
}

// wrapWithConflictRetry retries a handler once on ErrConcurrencyConflict, the
// re-read-and-retry policy spec.md §4.4 allows for a transition guard
// failure, before letting redelivery handle further contention.
func wrapWithConflictRetry(h eventbus.Handler) eventbus.Handler {
	return func(ctx context.Context, env eventbus.Envelope) error {
		err := h(ctx, env)
		var conflict *ErrConcurrencyConflict
		if errors.As(err, &conflict) {
			logging.Warn("retrying transition after concurrency conflict", map[string]interface{}{
				"payment_id": conflict.PaymentID,
				"event_id":   env.EventID,
			})
			return h(ctx, env)
		}
		return err
	}
}

// WrappedHandlers applies wrapWithConflictRetry to every handler in Handlers.
func WrappedHandlers(svc *Service) map[string]eventbus.Handler {
	wrapped := make(map[string]eventbus.Handler)
	for topic, h := range Handlers(svc) {
		wrapped[topic] = wrapWithConflictRetry(h)
	}
	return wrapped
}
