package eventbus

// Topic names for the payment saga, per spec.md §4.1.
const (
	TopicPaymentsRequested          = "payments.requested"
	TopicRiskApproved               = "risk.approved"
	TopicRiskDenied                 = "risk.denied"
	TopicProviderAuthorizeRequested = "provider.authorize.requested"
	TopicPaymentsAuthorized         = "payments.authorized"
	TopicPaymentsFailed             = "payments.failed"
	TopicPaymentsCaptured           = "payments.captured"
	TopicPaymentsSettled            = "payments.settled"
	TopicPaymentsReversed           = "payments.reversed"
	TopicPaymentsDLQ                = "payments.dlq"
)

// AllTopics lists every topic the saga uses, for provisioning and tests.
func AllTopics() []string {
	return []string{
		TopicPaymentsRequested,
		TopicRiskApproved,
		TopicRiskDenied,
		TopicProviderAuthorizeRequested,
		TopicPaymentsAuthorized,
		TopicPaymentsFailed,
		TopicPaymentsCaptured,
		TopicPaymentsSettled,
		TopicPaymentsReversed,
		TopicPaymentsDLQ,
	}
}
