package outbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Envelope is an encoded message ready for delivery.
type Envelope struct {
	MessageID   string
	Topic       string
	ContentType string
	Body        []byte
}

// Broker delivers envelopes. Returning an error marked with
// consumer.Permanent halts the stream; any other error is retried.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

// LogBroker writes every envelope to a logger. It stands in for a real
// broker when none is configured.
type LogBroker struct {
	Logger zerolog.Logger
}

// Publish logs env.
func (b LogBroker) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.Logger.Info().
		Str("message_id", env.MessageID).
		Str("topic", env.Topic).
		Str("content_type", env.ContentType).
		Int("bytes", len(env.Body)).
		Msg("message published")
	return nil
}

// MemoryBroker keeps published envelopes in memory, deduplicated by
// message id.
type MemoryBroker struct {
	mu        sync.Mutex
	seen      map[string]bool
	envelopes []Envelope
}

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{seen: make(map[string]bool)}
}

// Publish records env unless its message id was already delivered.
func (b *MemoryBroker) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[env.MessageID] {
		return nil
	}
	b.seen[env.MessageID] = true
	env.Body = append([]byte(nil), env.Body...)
	b.envelopes = append(b.envelopes, env)
	return nil
}

// Envelopes returns a copy of every delivered envelope in delivery order.
func (b *MemoryBroker) Envelopes() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Envelope, len(b.envelopes))
	copy(out, b.envelopes)
	return out
}
