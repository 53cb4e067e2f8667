package provideradapter

import "finpay/internal/eventbus"

// Handlers returns the topic → Handler map the provider adapter's cmd
// entrypoint subscribes.
func Handlers(svc *Service) map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		eventbus.TopicProviderAuthorizeRequested: svc.HandleAuthorizeRequested,
	}
}
