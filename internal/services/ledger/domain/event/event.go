// Package event defines the envelope every ledger aggregate emits and the
// registry that validates envelopes before they are appended.
//
// Payloads are JSON documents owned by the emitting aggregate package. Each
// aggregate declares a closed set of payload types; the registry rejects any
// type it does not know so a stream never carries an event nothing can fold.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies an event kind, e.g. "portfolio.created".
type Type string

// AggregateType names the aggregate a stream belongs to.
type AggregateType string

const (
	AggregatePortfolio   AggregateType = "portfolio"
	AggregateInvestment  AggregateType = "investment"
	AggregateTransaction AggregateType = "transaction"
)

// Event is an immutable fact recorded on a stream.
type Event struct {
	StreamID      string
	AggregateType AggregateType
	EntityID      string
	// Seq is the 1-based position within the stream.
	Seq uint64
	// Position is the store-wide commit position. Zero until persisted.
	Position    uint64
	Type        Type
	Timestamp   time.Time
	PayloadJSON []byte
}

// Payload is implemented by every aggregate payload struct.
type Payload interface {
	EventType() Type
}

var (
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
	// ErrEntityIDRequired indicates a missing entity id.
	ErrEntityIDRequired = errors.New("entity id is required")
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an event type not present in the registry.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrAggregateMismatch indicates an event type emitted on the wrong aggregate.
	ErrAggregateMismatch = errors.New("event type does not belong to aggregate")
	// ErrPayloadInvalid indicates an undecodable or rejected payload.
	ErrPayloadInvalid = errors.New("event payload is invalid")
)

// StreamID returns the stream identifier for an aggregate instance.
func StreamID(aggregate AggregateType, entityID string) string {
	return string(aggregate) + "-" + entityID
}

// New builds an unsequenced event carrying payload. Timestamps are truncated
// to milliseconds, the precision every store persists.
func New(aggregate AggregateType, entityID string, payload Payload, now time.Time) (Event, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return Event{}, ErrEntityIDRequired
	}
	if payload == nil {
		return Event{}, fmt.Errorf("%w: nil payload", ErrPayloadInvalid)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return Event{
		StreamID:      StreamID(aggregate, entityID),
		AggregateType: aggregate,
		EntityID:      entityID,
		Type:          payload.EventType(),
		Timestamp:     now.UTC().Truncate(time.Millisecond),
		PayloadJSON:   raw,
	}, nil
}

// Decode unmarshals an event's payload into P.
func Decode[P any](evt Event) (P, error) {
	var payload P
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return payload, fmt.Errorf("%w: decode %s: %v", ErrPayloadInvalid, evt.Type, err)
	}
	return payload, nil
}
