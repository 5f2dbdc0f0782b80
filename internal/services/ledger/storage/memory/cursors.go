package memory

import (
	"context"
	"sort"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// GetCursor returns a consumer cursor.
func (s *Store) GetCursor(ctx context.Context, consumer, streamID string) (storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return storage.Cursor{}, err
	}
	if err := requireKey(consumer, streamID); err != nil {
		return storage.Cursor{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[cursorKey{consumer, streamID}]
	if !ok {
		return storage.Cursor{}, storage.ErrNotFound
	}
	return c, nil
}

// ListCursors returns every cursor of a consumer ordered by stream id.
func (s *Store) ListCursors(ctx context.Context, consumer string) ([]storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Cursor
	for key, c := range s.cursors {
		if key.consumer == consumer {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out, nil
}

// AdvanceCursor records seq as applied.
func (s *Store) AdvanceCursor(ctx context.Context, consumer, streamID string, seq uint64, at time.Time) error {
	return s.updateCursor(ctx, consumer, streamID, func(c *storage.Cursor) {
		c.AppliedSeq = seq
		c.Status = storage.CursorActive
		c.Attempts = 0
		c.NextAttemptAt = time.Time{}
		c.LastError = ""
		c.UpdatedAt = at.UTC()
	})
}

// ScheduleRetry records a failed attempt.
func (s *Store) ScheduleRetry(ctx context.Context, consumer, streamID string, attempts int, next time.Time, lastErr string, at time.Time) error {
	return s.updateCursor(ctx, consumer, streamID, func(c *storage.Cursor) {
		c.Attempts = attempts
		c.NextAttemptAt = next.UTC()
		c.LastError = lastErr
		c.UpdatedAt = at.UTC()
	})
}

// HaltCursor stops the consumer on a stream.
func (s *Store) HaltCursor(ctx context.Context, consumer, streamID string, lastErr string, at time.Time) error {
	return s.updateCursor(ctx, consumer, streamID, func(c *storage.Cursor) {
		c.Status = storage.CursorHalted
		c.LastError = lastErr
		c.NextAttemptAt = time.Time{}
		c.UpdatedAt = at.UTC()
	})
}

// ResumeCursor reactivates a halted cursor.
func (s *Store) ResumeCursor(ctx context.Context, consumer, streamID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cursorKey{consumer, streamID}
	c, ok := s.cursors[key]
	if !ok {
		return storage.ErrNotFound
	}
	c.Status = storage.CursorActive
	c.Attempts = 0
	c.NextAttemptAt = time.Time{}
	c.LastError = ""
	c.UpdatedAt = at.UTC()
	s.cursors[key] = c
	return nil
}

// ResetCursors drops every cursor of a consumer.
func (s *Store) ResetCursors(ctx context.Context, consumer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cursors {
		if key.consumer == consumer {
			delete(s.cursors, key)
		}
	}
	return nil
}

func (s *Store) updateCursor(ctx context.Context, consumer, streamID string, mutate func(*storage.Cursor)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := requireKey(consumer, streamID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cursorKey{consumer, streamID}
	c, ok := s.cursors[key]
	if !ok {
		c = storage.Cursor{Consumer: consumer, StreamID: streamID, Status: storage.CursorActive}
	}
	mutate(&c)
	s.cursors[key] = c
	return nil
}
