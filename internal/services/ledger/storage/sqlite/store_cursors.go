package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

const cursorColumns = `consumer, stream_id, applied_seq, status, attempt_count, next_attempt_at, last_error, updated_at`

// GetCursor returns a consumer cursor.
func (s *Store) GetCursor(ctx context.Context, consumer, streamID string) (storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return storage.Cursor{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Cursor{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+cursorColumns+` FROM stream_cursors WHERE consumer = ? AND stream_id = ?`,
		consumer, streamID,
	)
	c, err := scanCursor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Cursor{}, storage.ErrNotFound
		}
		return storage.Cursor{}, fmt.Errorf("get cursor: %w", err)
	}
	return c, nil
}

// ListCursors returns every cursor of a consumer ordered by stream id.
func (s *Store) ListCursors(ctx context.Context, consumer string) ([]storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+cursorColumns+` FROM stream_cursors WHERE consumer = ? ORDER BY stream_id`,
		consumer,
	)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()
	var out []storage.Cursor
	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, fmt.Errorf("list cursors: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	return out, nil
}

// AdvanceCursor records seq as applied and clears retry state.
func (s *Store) AdvanceCursor(ctx context.Context, consumer, streamID string, seq uint64, at time.Time) error {
	return s.exec(ctx, "advance cursor",
		`INSERT INTO stream_cursors (`+cursorColumns+`)
		 VALUES (?, ?, ?, 'active', 0, 0, '', ?)
		 ON CONFLICT (consumer, stream_id) DO UPDATE SET
		   applied_seq = excluded.applied_seq,
		   status = 'active',
		   attempt_count = 0,
		   next_attempt_at = 0,
		   last_error = '',
		   updated_at = excluded.updated_at`,
		consumer, streamID, int64(seq), toMillis(at),
	)
}

// ScheduleRetry records a failed attempt without moving the cursor.
func (s *Store) ScheduleRetry(ctx context.Context, consumer, streamID string, attempts int, next time.Time, lastErr string, at time.Time) error {
	return s.exec(ctx, "schedule retry",
		`INSERT INTO stream_cursors (`+cursorColumns+`)
		 VALUES (?, ?, 0, 'active', ?, ?, ?, ?)
		 ON CONFLICT (consumer, stream_id) DO UPDATE SET
		   attempt_count = excluded.attempt_count,
		   next_attempt_at = excluded.next_attempt_at,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		consumer, streamID, attempts, toOptionalMillis(next), lastErr, toMillis(at),
	)
}

// HaltCursor stops the consumer on a stream until resumed.
func (s *Store) HaltCursor(ctx context.Context, consumer, streamID string, lastErr string, at time.Time) error {
	return s.exec(ctx, "halt cursor",
		`INSERT INTO stream_cursors (`+cursorColumns+`)
		 VALUES (?, ?, 0, 'halted', 0, 0, ?, ?)
		 ON CONFLICT (consumer, stream_id) DO UPDATE SET
		   status = 'halted',
		   next_attempt_at = 0,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		consumer, streamID, lastErr, toMillis(at),
	)
}

// ResumeCursor reactivates a cursor at its current position.
func (s *Store) ResumeCursor(ctx context.Context, consumer, streamID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE stream_cursors
		    SET status = 'active', attempt_count = 0, next_attempt_at = 0, last_error = '', updated_at = ?
		  WHERE consumer = ? AND stream_id = ?`,
		toMillis(at), consumer, streamID,
	)
	if err != nil {
		return fmt.Errorf("resume cursor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resume cursor: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ResetCursors deletes every cursor of a consumer.
func (s *Store) ResetCursors(ctx context.Context, consumer string) error {
	return s.exec(ctx, "reset cursors", `DELETE FROM stream_cursors WHERE consumer = ?`, consumer)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCursor(row rowScanner) (storage.Cursor, error) {
	var (
		c           storage.Cursor
		appliedSeq  int64
		status      string
		nextAttempt int64
		updatedAt   int64
	)
	if err := row.Scan(&c.Consumer, &c.StreamID, &appliedSeq, &status, &c.Attempts, &nextAttempt, &c.LastError, &updatedAt); err != nil {
		return storage.Cursor{}, err
	}
	c.AppliedSeq = uint64(appliedSeq)
	c.Status = storage.CursorStatus(status)
	c.NextAttemptAt = fromOptionalMillis(nextAttempt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}
