package ledger

import "finpay/internal/eventbus"

// Handlers returns the topic → Handler map the ledger's cmd entrypoint
// subscribes.
func Handlers(svc *Service) map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		eventbus.TopicPaymentsCaptured: svc.HandleCaptured,
	}
}
