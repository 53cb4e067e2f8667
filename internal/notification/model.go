// Package notification writes one NotificationLog row per terminal payment
// event, the service spec.md §7 implies ("a notification row is written for
// every terminal event") but leaves unnamed — supplemented here from
// original_source/finpay/services/notification/main.py, grounded on the
// teacher's deposit_consumer as a single-topic-family consumer shape.
package notification

import "time"

// Kind is the terminal outcome a notification reports.
type Kind string

const (
	KindSettled  Kind = "SETTLED"
	KindFailed   Kind = "FAILED"
	KindReversed Kind = "REVERSED"
)

// Log is one append-only notification record.
type Log struct {
	NotificationID string
	PaymentID      string
	Kind           Kind
	Message        string
	CreatedAt      time.Time
}
