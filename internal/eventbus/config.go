package eventbus

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaConfig holds the producer/consumer configuration shared by every
// service, adapted from the teacher's kafka.Config (internal/infrastructure
// /messaging/kafka/config.go) to the saga's brokers-from-config-struct usage
// instead of reading the environment itself.
type KafkaConfig struct {
	Brokers         []string
	ClientID        string
	CompressionType string
	RequiredAcks    string
	MaxRetries      int
	RetryBackoff    time.Duration
}

// NewKafkaConfig builds a KafkaConfig with the teacher's production-leaning
// defaults (snappy compression, acks=all, bounded retry).
func NewKafkaConfig(brokers []string, clientID string) *KafkaConfig {
	return &KafkaConfig{
		Brokers:         brokers,
		ClientID:        clientID,
		CompressionType: "snappy",
		RequiredAcks:    "all",
		MaxRetries:      5,
		RetryBackoff:    100 * time.Millisecond,
	}
}

// ToSaramaConfig converts to a sarama.Config for both producer and consumer
// use.
func (c *KafkaConfig) ToSaramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = c.MaxRetries
	cfg.Producer.Retry.Backoff = c.RetryBackoff
	cfg.ClientID = c.ClientID
	cfg.Version = sarama.V3_0_0_0

	switch c.RequiredAcks {
	case "all", "-1":
		cfg.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		cfg.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("invalid required acks value: %s", c.RequiredAcks)
	}

	switch c.CompressionType {
	case "none":
		cfg.Producer.Compression = sarama.CompressionNone
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("invalid compression type: %s", c.CompressionType)
	}

	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()

	return cfg, nil
}
