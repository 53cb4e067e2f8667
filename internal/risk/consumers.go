package risk

import "finpay/internal/eventbus"

// Handlers returns the topic → Handler map risk's cmd entrypoint subscribes.
func Handlers(svc *Service) map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		eventbus.TopicPaymentsRequested: svc.HandlePaymentRequested,
	}
}
