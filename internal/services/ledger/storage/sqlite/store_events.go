package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// Append commits events to one stream at expectedVersion.
func (s *Store) Append(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) (uint64, error) {
	versions, err := s.AppendBatch(ctx, []storage.StreamAppend{{StreamID: streamID, ExpectedVersion: expectedVersion, Events: events}})
	if err != nil {
		return 0, err
	}
	return versions[0], nil
}

// AppendBatch commits several streams in one transaction.
func (s *Store) AppendBatch(ctx context.Context, appends []storage.StreamAppend) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := storage.ValidateAppends(appends); err != nil {
		return nil, err
	}

	// Validate all events before opening a transaction.
	validated := make([][]event.Event, len(appends))
	for i, a := range appends {
		batch := make([]event.Event, len(a.Events))
		for j, evt := range a.Events {
			if s.registry != nil {
				v, err := s.registry.ValidateForAppend(evt)
				if err != nil {
					return nil, fmt.Errorf("%s event %d: %w", a.StreamID, j, err)
				}
				evt = v
			}
			if evt.Timestamp.IsZero() {
				evt.Timestamp = s.now()
			}
			batch[j] = evt
		}
		validated[i] = batch
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(s.now())
	versions := make([]uint64, len(appends))
	for i, a := range appends {
		next := a.ExpectedVersion + uint64(len(validated[i]))
		if err := advanceStream(ctx, tx, a, validated[i][0], next, now); err != nil {
			return nil, err
		}
		for j, evt := range validated[i] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO events (stream_id, seq, aggregate_type, entity_id, event_type, timestamp, payload_json)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.StreamID,
				int64(a.ExpectedVersion)+int64(j)+1,
				string(evt.AggregateType),
				evt.EntityID,
				string(evt.Type),
				toMillis(evt.Timestamp),
				evt.PayloadJSON,
			); err != nil {
				if isUniqueViolation(err) {
					return nil, conflictAt(ctx, tx, a)
				}
				return nil, fmt.Errorf("append event: %w", err)
			}
		}
		versions[i] = next
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return versions, nil
}

// advanceStream moves the stream head from a.ExpectedVersion to next, or
// reports a conflict when the head has moved.
func advanceStream(ctx context.Context, tx *sql.Tx, a storage.StreamAppend, first event.Event, next uint64, now int64) error {
	var (
		res sql.Result
		err error
	)
	if a.ExpectedVersion == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO streams (stream_id, aggregate_type, entity_id, version, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (stream_id) DO NOTHING`,
			a.StreamID, string(first.AggregateType), first.EntityID, int64(next), now,
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE streams SET version = ?, updated_at = ? WHERE stream_id = ? AND version = ?`,
			int64(next), now, a.StreamID, int64(a.ExpectedVersion),
		)
	}
	if err != nil {
		return fmt.Errorf("advance stream %s: %w", a.StreamID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance stream %s: %w", a.StreamID, err)
	}
	if affected != 1 {
		return conflictAt(ctx, tx, a)
	}
	return nil
}

func conflictAt(ctx context.Context, tx *sql.Tx, a storage.StreamAppend) error {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM streams WHERE stream_id = ?`, a.StreamID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read stream version: %w", err)
	}
	return &storage.ConflictError{StreamID: a.StreamID, Expected: a.ExpectedVersion, Actual: uint64(current)}
}

// Load returns every event of a stream and its version.
func (s *Store) Load(ctx context.Context, streamID string) ([]event.Event, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	events, err := s.queryEvents(ctx,
		`SELECT position, stream_id, seq, aggregate_type, entity_id, event_type, timestamp, payload_json
		   FROM events WHERE stream_id = ? ORDER BY seq`,
		streamID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("load stream %s: %w", streamID, err)
	}
	if len(events) == 0 {
		return nil, 0, nil
	}
	return events, events[len(events)-1].Seq, nil
}

// ListEvents returns up to limit events after afterSeq. A limit of zero or
// less returns the remainder of the stream.
func (s *Store) ListEvents(ctx context.Context, streamID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	events, err := s.queryEvents(ctx,
		`SELECT position, stream_id, seq, aggregate_type, entity_id, event_type, timestamp, payload_json
		   FROM events WHERE stream_id = ? AND seq > ? ORDER BY seq LIMIT ?`,
		streamID, int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", streamID, err)
	}
	return events, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			evt           event.Event
			position, seq int64
			aggregateType string
			eventType     string
			timestamp     int64
		)
		if err := rows.Scan(&position, &evt.StreamID, &seq, &aggregateType, &evt.EntityID, &eventType, &timestamp, &evt.PayloadJSON); err != nil {
			return nil, err
		}
		evt.Position = uint64(position)
		evt.Seq = uint64(seq)
		evt.AggregateType = event.AggregateType(aggregateType)
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(timestamp)
		events = append(events, evt)
	}
	return events, rows.Err()
}

// ListStreams returns stream heads ordered by id.
func (s *Store) ListStreams(ctx context.Context) ([]storage.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT stream_id, aggregate_type, entity_id, version, updated_at FROM streams ORDER BY stream_id`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var out []storage.StreamInfo
	for rows.Next() {
		var (
			info          storage.StreamInfo
			aggregateType string
			version       int64
			updatedAt     int64
		)
		if err := rows.Scan(&info.StreamID, &aggregateType, &info.EntityID, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("list streams: %w", err)
		}
		info.AggregateType = event.AggregateType(aggregateType)
		info.Version = uint64(version)
		info.UpdatedAt = fromMillis(updatedAt)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return out, nil
}
