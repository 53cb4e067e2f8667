package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
)

// Publisher is the narrow interface outbox publishers depend on, so tests
// can substitute a fake bus without touching real Kafka.
type Publisher interface {
	Publish(topic string, key string, env Envelope) error
	Close() error
}

// KafkaPublisher wraps a sarama.SyncProducer, adapted from the teacher's
// kafka.Producer (internal/infrastructure/messaging/kafka/producer.go) to
// publish envelopes instead of arbitrary interface{} events.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	mu       sync.RWMutex
	closed   bool
}

// NewKafkaPublisher opens a synchronous Kafka producer for the given config.
func NewKafkaPublisher(cfg *KafkaConfig) (*KafkaPublisher, error) {
	saramaCfg, err := cfg.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build sarama config: %w", err)
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaPublisher{producer: producer}, nil
}

// Publish sends one envelope to a topic, keyed by aggregate id so partition
// assignment keeps one payment's events ordered relative to each other.
func (p *KafkaPublisher) Publish(topic string, key string, env Envelope) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to kafka: %w", err)
	}
	return nil
}

// Close shuts down the underlying producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}
