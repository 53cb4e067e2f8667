package notification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"finpay/internal/eventbus"
)

// Service writes a notification for every terminal payment outcome.
type Service struct {
	repo *Repository
}

// NewService builds a Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// HandleSettled records a SETTLED notification.
func (s *Service) HandleSettled(ctx context.Context, env eventbus.Envelope) error {
	return s.handleTerminal(ctx, env, eventbus.TopicPaymentsSettled, KindSettled, "payment settled successfully")
}

// HandleFailed records a FAILED notification, including for failures that
// are later compensated; the REVERSED notification for those comes
// separately from HandleReversed on payments.reversed.
func (s *Service) HandleFailed(ctx context.Context, env eventbus.Envelope) error {
	errorCode, _ := env.Payload["error_code"].(string)
	message := "payment failed"
	if errorCode != "" {
		message = fmt.Sprintf("payment failed: %s", errorCode)
	}
	return s.handleTerminal(ctx, env, eventbus.TopicPaymentsFailed, KindFailed, message)
}

// HandleReversed records a REVERSED notification for compensated payments.
func (s *Service) HandleReversed(ctx context.Context, env eventbus.Envelope) error {
	return s.handleTerminal(ctx, env, eventbus.TopicPaymentsReversed, KindReversed, "payment reversed after provider timeout")
}

func (s *Service) handleTerminal(ctx context.Context, env eventbus.Envelope, topic string, kind Kind, message string) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		isNew, err := s.repo.InboxMarkIfNew(ctx, tx, env.EventID, topic)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}
		return s.repo.InsertLog(ctx, tx, env.AggregateID, kind, message)
	})
}
