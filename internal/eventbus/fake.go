package eventbus

import (
	"context"
	"sync"
)

// FakeBus is an in-process Publisher used by unit and saga-level tests in
// place of a real Kafka cluster. Published envelopes are appended to a
// per-topic slice and can optionally be routed straight to registered
// handlers, letting tests drive a multi-service saga synchronously.
type FakeBus struct {
	mu       sync.Mutex
	byTopic  map[string][]Envelope
	handlers map[string][]Handler
}

// NewFakeBus creates an empty fake bus.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		byTopic:  make(map[string][]Envelope),
		handlers: make(map[string][]Handler),
	}
}

// Publish records the envelope and, if any handlers are subscribed to the
// topic, invokes them synchronously — the moral equivalent of a consumer
// group picking the message straight off the log.
func (b *FakeBus) Publish(topic string, _ string, env Envelope) error {
	b.mu.Lock()
	b.byTopic[topic] = append(b.byTopic[topic], env)
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(context.Background(), env); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the fake bus.
func (b *FakeBus) Close() error { return nil }

// Subscribe registers a handler to be invoked for every future Publish on
// topic, emulating a dedicated consumer group.
func (b *FakeBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Events returns a copy of everything published to topic so far.
func (b *FakeBus) Events(topic string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Envelope(nil), b.byTopic[topic]...)
}
