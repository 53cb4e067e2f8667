package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"finpay/internal/logging"
	"finpay/internal/metrics"
)

// Handler processes one decoded envelope. Returning an error leaves that
// message unmarked; it is redelivered only if the session ends before a
// later message in the same partition is marked. The inbox table is what
// makes any redelivery safe (spec.md §4.3).
type Handler func(ctx context.Context, env Envelope) error

// Consumer wraps a sarama.ConsumerGroup subscribed to a single topic,
// generalized from the teacher's DepositConsumer
// (internal/infrastructure/messaging/deposit_consumer.go) to an arbitrary
// topic/group/handler triple instead of one hardcoded deposit-requests
// consumer.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	name    string
	service string
	handle  Handler

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumer creates a consumer group client for one topic/group pair.
func NewConsumer(cfg *KafkaConfig, groupID, topic string, handle Handler) (*Consumer, error) {
	saramaCfg, err := cfg.ToSaramaConfig()
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		group:   group,
		topic:   topic,
		name:    groupID,
		service: cfg.ClientID,
		handle:  handle,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins consuming in a background goroutine; Consume must be called
// in a loop because a rebalance requires re-entering it (sarama's own
// documented session lifecycle, also followed by the teacher).
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &groupHandler{consumer: c}
		for {
			if err := c.group.Consume(c.ctx, []string{c.topic}, handler); err != nil {
				logging.Error("consumer group error", err, map[string]interface{}{"topic": c.topic, "group": c.name})
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				logging.Error("consumer error", err, map[string]interface{}{"topic": c.topic, "group": c.name})
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the consumer loop and waits for it to exit.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages one at a time, logging and continuing on
// per-message handler errors per spec.md §4.3's offset-commit policy
// ("Handler exceptions on individual messages are logged and do not block
// batch commit"). Only a successfully handled message is marked, but
// marking and committing a later message moves the partition offset past
// the one that failed, so the failed message is not redelivered unless the
// session ends before that happens.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal(message.Value, &env); err != nil {
				logging.Error("failed to unmarshal envelope", err, map[string]interface{}{"offset": message.Offset})
				session.MarkMessage(message, "")
				continue
			}

			metrics.EventQueueDelaySeconds.WithLabelValues(h.consumer.service, message.Topic).
				Observe(time.Since(env.OccurredAtTime()).Seconds())

			if err := h.consumer.handle(session.Context(), env); err != nil {
				logging.Error("handler_error", err, map[string]interface{}{
					"topic":    message.Topic,
					"offset":   message.Offset,
					"event_id": env.EventID,
				})
				continue
			}

			session.MarkMessage(message, "")
			session.Commit()

		case <-session.Context().Done():
			return nil
		}
	}
}
