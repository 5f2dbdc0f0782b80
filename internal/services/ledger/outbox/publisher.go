package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/folio/internal/services/ledger/consumer"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// ConsumerName is the cursor namespace of the outbox runner.
const ConsumerName = "outbox"

var (
	// ErrBrokerRequired indicates a publisher without a broker.
	ErrBrokerRequired = errors.New("outbox broker is required")
	// ErrCodecRequired indicates a publisher without a codec.
	ErrCodecRequired = errors.New("outbox codec is required")
)

// Publisher hands committed events to a broker.
type Publisher struct {
	codec  Codec
	broker Broker
}

// NewPublisher builds a Publisher.
func NewPublisher(codec Codec, broker Broker) (*Publisher, error) {
	if codec == nil {
		return nil, ErrCodecRequired
	}
	if broker == nil {
		return nil, ErrBrokerRequired
	}
	return &Publisher{codec: codec, broker: broker}, nil
}

// Handle publishes evt. Events that cannot be encoded halt the stream;
// broker failures are retried.
func (p *Publisher) Handle(ctx context.Context, evt event.Event) error {
	msg, err := NewMessage(evt)
	if err != nil {
		return consumer.Permanent(err)
	}
	body, err := p.codec.Encode(msg)
	if err != nil {
		return consumer.Permanent(fmt.Errorf("encode %s: %w", msg.ID, err))
	}
	if err := p.broker.Publish(ctx, Envelope{
		MessageID:   msg.ID,
		Topic:       msg.Topic,
		ContentType: p.codec.ContentType(),
		Body:        body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", msg.ID, err)
	}
	return nil
}

// NewRunner builds the outbox runner over store.
func NewRunner(store consumer.Store, publisher *Publisher, opts consumer.Options) (*consumer.Runner, error) {
	if publisher == nil {
		return nil, errors.New("outbox publisher is required")
	}
	return consumer.NewRunner(ConsumerName, store, publisher, opts)
}

var _ consumer.Handler = (*Publisher)(nil)
