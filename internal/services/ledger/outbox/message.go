// Package outbox publishes committed ledger events as integration messages.
//
// The publisher is a second consumer on the cursor mechanism the projections
// use, so delivery is at-least-once and ordered within a stream. Message ids
// are derived from the stream and sequence, which lets brokers and their
// subscribers deduplicate redeliveries.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// Message is the integration form of a committed event.
type Message struct {
	ID            string              `json:"id" msgpack:"id"`
	Topic         string              `json:"topic" msgpack:"topic"`
	StreamID      string              `json:"stream_id" msgpack:"stream_id"`
	AggregateType event.AggregateType `json:"aggregate_type" msgpack:"aggregate_type"`
	EntityID      string              `json:"entity_id" msgpack:"entity_id"`
	Seq           uint64              `json:"seq" msgpack:"seq"`
	Position      uint64              `json:"position" msgpack:"position"`
	OccurredAt    time.Time           `json:"occurred_at" msgpack:"occurred_at"`
	Payload       json.RawMessage     `json:"payload" msgpack:"payload"`
}

// MessageID returns the deterministic id of the event at seq on streamID.
func MessageID(streamID string, seq uint64) string {
	return fmt.Sprintf("%s/%d", streamID, seq)
}

// NewMessage converts a committed event. The topic is the event type.
func NewMessage(evt event.Event) (Message, error) {
	if evt.StreamID == "" {
		return Message{}, event.ErrStreamIDRequired
	}
	if evt.Seq == 0 {
		return Message{}, fmt.Errorf("event %s on %s is not committed", evt.Type, evt.StreamID)
	}
	payload := json.RawMessage(evt.PayloadJSON)
	if !json.Valid(payload) {
		return Message{}, fmt.Errorf("%w: %s/%d", event.ErrPayloadInvalid, evt.StreamID, evt.Seq)
	}
	return Message{
		ID:            MessageID(evt.StreamID, evt.Seq),
		Topic:         string(evt.Type),
		StreamID:      evt.StreamID,
		AggregateType: evt.AggregateType,
		EntityID:      evt.EntityID,
		Seq:           evt.Seq,
		Position:      evt.Position,
		OccurredAt:    evt.Timestamp.UTC(),
		Payload:       append(json.RawMessage(nil), payload...),
	}, nil
}
