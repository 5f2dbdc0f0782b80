// Package memory provides an in-process implementation of storage.Store for
// tests and single-process tooling.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

type stream struct {
	info   storage.StreamInfo
	events []event.Event
}

type cursorKey struct {
	consumer string
	streamID string
}

// Store is a mutex-guarded in-memory storage.Store.
type Store struct {
	mu       sync.RWMutex
	registry *event.Registry
	now      func() time.Time

	position uint64
	streams  map[string]*stream

	cursors map[cursorKey]storage.Cursor

	portfolios   map[string]storage.PortfolioRecord
	investments  map[string]storage.InvestmentRecord
	positions    map[[2]string]storage.PositionRecord
	transactions map[string]storage.TransactionRecord
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry validates events against registry before appending.
func WithRegistry(registry *event.Registry) Option {
	return func(s *Store) { s.registry = registry }
}

// WithClock overrides the clock used for stream head timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:          time.Now,
		streams:      make(map[string]*stream),
		cursors:      make(map[cursorKey]storage.Cursor),
		portfolios:   make(map[string]storage.PortfolioRecord),
		investments:  make(map[string]storage.InvestmentRecord),
		positions:    make(map[[2]string]storage.PositionRecord),
		transactions: make(map[string]storage.TransactionRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Append commits events to one stream.
func (s *Store) Append(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) (uint64, error) {
	versions, err := s.AppendBatch(ctx, []storage.StreamAppend{{StreamID: streamID, ExpectedVersion: expectedVersion, Events: events}})
	if err != nil {
		return 0, err
	}
	return versions[0], nil
}

// AppendBatch commits several streams atomically.
func (s *Store) AppendBatch(ctx context.Context, appends []storage.StreamAppend) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.ValidateAppends(appends); err != nil {
		return nil, err
	}
	prepared := make([][]event.Event, len(appends))
	for i, a := range appends {
		batch := make([]event.Event, len(a.Events))
		for j, evt := range a.Events {
			if s.registry != nil {
				validated, err := s.registry.ValidateForAppend(evt)
				if err != nil {
					return nil, fmt.Errorf("validate %s: %w", a.StreamID, err)
				}
				evt = validated
			}
			evt.PayloadJSON = slices.Clone(evt.PayloadJSON)
			batch[j] = evt
		}
		prepared[i] = batch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range appends {
		var current uint64
		if st, ok := s.streams[a.StreamID]; ok {
			current = st.info.Version
		}
		if current != a.ExpectedVersion {
			return nil, &storage.ConflictError{StreamID: a.StreamID, Expected: a.ExpectedVersion, Actual: current}
		}
	}

	now := s.now().UTC()
	versions := make([]uint64, len(appends))
	for i, a := range appends {
		st, ok := s.streams[a.StreamID]
		if !ok {
			first := prepared[i][0]
			st = &stream{info: storage.StreamInfo{
				StreamID:      a.StreamID,
				AggregateType: first.AggregateType,
				EntityID:      first.EntityID,
			}}
			s.streams[a.StreamID] = st
		}
		for _, evt := range prepared[i] {
			s.position++
			st.info.Version++
			evt.Seq = st.info.Version
			evt.Position = s.position
			st.events = append(st.events, evt)
		}
		st.info.UpdatedAt = now
		versions[i] = st.info.Version
	}
	return versions, nil
}

// Load returns a stream's events and version.
func (s *Store) Load(ctx context.Context, streamID string) ([]event.Event, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[streamID]
	if !ok {
		return nil, 0, nil
	}
	return cloneEvents(st.events), st.info.Version, nil
}

// ListEvents returns up to limit events after afterSeq.
func (s *Store) ListEvents(ctx context.Context, streamID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[streamID]
	if !ok || afterSeq >= uint64(len(st.events)) {
		return nil, nil
	}
	out := st.events[afterSeq:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return cloneEvents(out), nil
}

// ListStreams returns stream heads ordered by id.
func (s *Store) ListStreams(ctx context.Context) ([]storage.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.StreamInfo, 0, len(s.streams))
	for _, st := range s.streams {
		out = append(out, st.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out, nil
}

func cloneEvents(events []event.Event) []event.Event {
	out := make([]event.Event, len(events))
	for i, evt := range events {
		evt.PayloadJSON = slices.Clone(evt.PayloadJSON)
		out[i] = evt
	}
	return out
}

func requireKey(values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return errors.New("key is required")
		}
	}
	return nil
}
