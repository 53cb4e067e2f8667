package notification

import "finpay/internal/eventbus"

// Handlers returns the topic → Handler map notification's cmd entrypoint
// subscribes, one per terminal outcome topic.
func Handlers(svc *Service) map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		eventbus.TopicPaymentsSettled:  svc.HandleSettled,
		eventbus.TopicPaymentsFailed:   svc.HandleFailed,
		eventbus.TopicPaymentsReversed: svc.HandleReversed,
	}
}
