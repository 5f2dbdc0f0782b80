// Package aggregate holds the version-tracked root shared by every ledger
// aggregate.
//
// A Root is a value: recording an event returns a new Root and leaves the
// receiver untouched, so a rejected command never leaves a half-mutated
// aggregate behind.
package aggregate

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// FoldFunc applies one event to state. It must not read the clock or any
// other ambient input.
type FoldFunc[S any] func(S, event.Event) (S, error)

var (
	// ErrStreamMismatch indicates an event from another stream.
	ErrStreamMismatch = errors.New("event belongs to another stream")
	// ErrSequenceGap indicates a non-contiguous event sequence.
	ErrSequenceGap = errors.New("event sequence gap")
)

// Root is an aggregate instance plus its uncommitted events.
type Root[S any] struct {
	Type event.AggregateType
	ID   string
	// StreamID is the event stream backing this aggregate.
	StreamID string
	// Version counts every event folded, committed or pending.
	Version uint64
	State   S
	pending []event.Event
}

// New returns an empty root for the aggregate instance.
func New[S any](aggregateType event.AggregateType, id string, empty S) Root[S] {
	return Root[S]{
		Type:     aggregateType,
		ID:       id,
		StreamID: event.StreamID(aggregateType, id),
		State:    empty,
	}
}

// Replay folds committed events in sequence order starting from empty.
func Replay[S any](aggregateType event.AggregateType, id string, empty S, events []event.Event, fold FoldFunc[S]) (Root[S], error) {
	root := New(aggregateType, id, empty)
	for _, evt := range events {
		if evt.StreamID != root.StreamID {
			return Root[S]{}, fmt.Errorf("%w: %s in %s", ErrStreamMismatch, evt.StreamID, root.StreamID)
		}
		if evt.Seq != root.Version+1 {
			return Root[S]{}, fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, root.Version+1, evt.Seq)
		}
		next, err := fold(root.State, evt)
		if err != nil {
			return Root[S]{}, fmt.Errorf("fold %s seq %d: %w", evt.Type, evt.Seq, err)
		}
		root.State = next
		root.Version = evt.Seq
	}
	return root, nil
}

// Record wraps payload in an event stamped with now, sequences it after the
// current version, folds it and returns the resulting root with the event
// appended to the pending list.
func (r Root[S]) Record(payload event.Payload, now time.Time, fold FoldFunc[S]) (Root[S], event.Event, error) {
	evt, err := event.New(r.Type, r.ID, payload, now)
	if err != nil {
		return r, event.Event{}, err
	}
	return r.RecordEvent(evt, fold)
}

// RecordEvent is Record for a prebuilt event.
func (r Root[S]) RecordEvent(evt event.Event, fold FoldFunc[S]) (Root[S], event.Event, error) {
	if evt.StreamID != r.StreamID {
		return r, event.Event{}, fmt.Errorf("%w: %s in %s", ErrStreamMismatch, evt.StreamID, r.StreamID)
	}
	evt.Seq = r.Version + 1
	next, err := fold(r.State, evt)
	if err != nil {
		return r, event.Event{}, fmt.Errorf("fold %s: %w", evt.Type, err)
	}
	out := r
	out.State = next
	out.Version = evt.Seq
	out.pending = append(slices.Clone(r.pending), evt)
	return out, evt, nil
}

// Exists reports whether any event has been folded.
func (r Root[S]) Exists() bool {
	return r.Version > 0
}

// Uncommitted returns a copy of the events recorded since the last commit.
func (r Root[S]) Uncommitted() []event.Event {
	return slices.Clone(r.pending)
}

// ExpectedVersion is the stream version the pending events must be appended at.
func (r Root[S]) ExpectedVersion() uint64 {
	return r.Version - uint64(len(r.pending))
}

// Committed returns the root with its pending events cleared.
func (r Root[S]) Committed() Root[S] {
	out := r
	out.pending = nil
	return out
}
