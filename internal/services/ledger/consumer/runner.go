// Package consumer drives durable, per-stream cursor consumers over the
// ledger commit log.
//
// Each runner owns one cursor per stream. Events of a stream are handed to
// the handler strictly in sequence order. A transient handler failure keeps
// the cursor in place and is retried until it succeeds; a permanent one halts
// that stream only. Streams never block each other.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	foliootel "github.com/louisbranch/folio/internal/platform/otel"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

const (
	defaultBatchSize    = 64
	defaultPollInterval = 2 * time.Second
	defaultMaxIdle      = 30 * time.Second
	defaultSettleWait   = time.Minute
)

// ErrUnsettled reports streams still failing transiently when Settle gives up.
var ErrUnsettled = errors.New("streams still retrying")

// Handler applies one committed event.
type Handler interface {
	Handle(ctx context.Context, evt event.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt event.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, evt event.Event) error { return f(ctx, evt) }

// Store is the persistence a runner reads from and records progress in.
type Store interface {
	ListStreams(ctx context.Context) ([]storage.StreamInfo, error)
	ListEvents(ctx context.Context, streamID string, afterSeq uint64, limit int) ([]event.Event, error)
	storage.CursorStore
}

// Options tune a Runner. Zero values select defaults.
type Options struct {
	BatchSize int
	// PollInterval is the wait after a pass that applied events.
	PollInterval time.Duration
	// MaxIdleInterval caps the growing wait between idle passes.
	MaxIdleInterval time.Duration
	Clock           func() time.Time
	Logger          *zerolog.Logger
	Tracer          trace.Tracer
}

// Summary reports one pass over every stream.
type Summary struct {
	Streams int
	Applied int
	Retried int
	// Halted counts cursors halted during the pass.
	Halted int
	// Blocked counts streams skipped because their cursor was already halted.
	Blocked int
	// Waiting counts streams skipped because a retry is not yet due.
	Waiting int
}

// Runner is a named cursor consumer.
type Runner struct {
	name    string
	store   Store
	handler Handler

	batchSize int
	poll      time.Duration
	maxIdle   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRunner builds a runner whose cursors are stored under name.
func NewRunner(name string, store Store, handler Handler, opts Options) (*Runner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	if store == nil {
		return nil, errors.New("consumer store is required")
	}
	if handler == nil {
		return nil, errors.New("consumer handler is required")
	}
	r := &Runner{
		name:      name,
		store:     store,
		handler:   handler,
		batchSize: opts.BatchSize,
		poll:      opts.PollInterval,
		maxIdle:   opts.MaxIdleInterval,
		now:       opts.Clock,
		tracer:    opts.Tracer,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	if r.maxIdle < r.poll {
		r.maxIdle = max(defaultMaxIdle, r.poll)
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.Logger != nil {
		r.logger = opts.Logger.With().Str("consumer", name).Logger()
	} else {
		r.logger = zerolog.Nop()
	}
	if r.tracer == nil {
		r.tracer = foliootel.Tracer("consumer")
	}
	return r, nil
}

// Name returns the cursor namespace of the runner.
func (r *Runner) Name() string { return r.name }

// RunOnce processes up to one batch per stream.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	return r.runOnce(ctx, false)
}

// runOnce skips streams whose retry is not yet due unless immediate is set.
func (r *Runner) runOnce(ctx context.Context, immediate bool) (Summary, error) {
	streams, err := r.store.ListStreams(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list streams: %w", err)
	}
	var summary Summary
	summary.Streams = len(streams)
	for _, info := range streams {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := r.processStream(ctx, info, &summary, immediate); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// Drain repeats passes until one applies nothing. Streams waiting on a retry
// or halted are left behind.
func (r *Runner) Drain(ctx context.Context) (Summary, error) {
	var total Summary
	for {
		summary, err := r.RunOnce(ctx)
		total.add(summary)
		if err != nil {
			return total, err
		}
		if summary.Applied == 0 {
			return total, nil
		}
	}
}

// Settle drains every stream and keeps retrying transient failures, without
// waiting for their scheduled time, until a pass neither applies nor fails.
// Halted streams are left behind. It returns ErrUnsettled when a stream still
// fails after maxWait.
func (r *Runner) Settle(ctx context.Context, maxWait time.Duration) (Summary, error) {
	if maxWait <= 0 {
		maxWait = defaultSettleWait
	}
	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = 20 * time.Millisecond
	wait.MaxInterval = time.Second

	var total Summary
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		for {
			pass, err := r.runOnce(ctx, true)
			total.add(pass)
			switch {
			case err != nil:
				return struct{}{}, backoff.Permanent(err)
			case pass.Retried > 0:
				return struct{}{}, ErrUnsettled
			case pass.Applied == 0:
				return struct{}{}, nil
			}
		}
	}, backoff.WithBackOff(wait), backoff.WithMaxElapsedTime(maxWait))
	if err != nil {
		return total, fmt.Errorf("settle %s: %w", r.name, err)
	}
	return total, nil
}

func (s *Summary) add(pass Summary) {
	s.Streams = pass.Streams
	s.Applied += pass.Applied
	s.Retried += pass.Retried
	s.Halted += pass.Halted
	s.Blocked = pass.Blocked
	s.Waiting = pass.Waiting
}

// Run polls until ctx is done. Idle passes back off exponentially up to
// MaxIdleInterval; any applied event resets the wait.
func (r *Runner) Run(ctx context.Context) error {
	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = r.poll
	idle.MaxInterval = r.maxIdle
	idle.RandomizationFactor = 0

	r.logger.Info().Dur("poll_interval", r.poll).Msg("consumer started")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("consumer stopped")
			return nil
		case <-timer.C:
		}

		summary, err := r.RunOnce(ctx)
		wait := r.poll
		switch {
		case err != nil && ctx.Err() != nil:
			continue
		case err != nil:
			r.logger.Error().Err(err).Msg("consumer pass failed")
			wait = idle.NextBackOff()
		case summary.Applied > 0:
			idle.Reset()
			r.logger.Debug().Int("applied", summary.Applied).Int("streams", summary.Streams).Msg("consumer pass")
		default:
			wait = idle.NextBackOff()
		}
		timer.Reset(wait)
	}
}

// Resume reactivates a halted stream cursor at its current position.
func (r *Runner) Resume(ctx context.Context, streamID string) error {
	if err := r.store.ResumeCursor(ctx, r.name, streamID, r.now()); err != nil {
		return fmt.Errorf("resume %s/%s: %w", r.name, streamID, err)
	}
	r.logger.Info().Str("stream_id", streamID).Msg("cursor resumed")
	return nil
}

// Reset deletes every cursor of the runner so the next pass starts each
// stream from seq 1.
func (r *Runner) Reset(ctx context.Context) error {
	if err := r.store.ResetCursors(ctx, r.name); err != nil {
		return fmt.Errorf("reset %s cursors: %w", r.name, err)
	}
	return nil
}

func (r *Runner) processStream(ctx context.Context, info storage.StreamInfo, summary *Summary, immediate bool) error {
	cursor, err := r.store.GetCursor(ctx, r.name, info.StreamID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		cursor = storage.Cursor{Consumer: r.name, StreamID: info.StreamID, Status: storage.CursorActive}
	case err != nil:
		return fmt.Errorf("get cursor %s: %w", info.StreamID, err)
	}
	if cursor.Status == storage.CursorHalted {
		summary.Blocked++
		return nil
	}
	if cursor.AppliedSeq >= info.Version {
		return nil
	}
	now := r.now()
	if !immediate && !cursor.NextAttemptAt.IsZero() && now.Before(cursor.NextAttemptAt) {
		summary.Waiting++
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "consumer.stream", trace.WithAttributes(
		attribute.String("consumer", r.name),
		attribute.String("stream_id", info.StreamID),
		attribute.Int64("applied_seq", int64(cursor.AppliedSeq)),
	))
	defer span.End()

	events, err := r.store.ListEvents(ctx, info.StreamID, cursor.AppliedSeq, r.batchSize)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list events %s: %w", info.StreamID, err)
	}
	for _, evt := range events {
		if evt.Seq != cursor.AppliedSeq+1 {
			return r.halt(ctx, span, evt, fmt.Errorf("sequence gap: cursor at %d, next event %d", cursor.AppliedSeq, evt.Seq), summary)
		}
		handleErr := r.handler.Handle(ctx, evt)
		if handleErr == nil {
			if err := r.store.AdvanceCursor(ctx, r.name, info.StreamID, evt.Seq, r.now()); err != nil {
				return fmt.Errorf("advance cursor %s: %w", info.StreamID, err)
			}
			cursor.AppliedSeq = evt.Seq
			cursor.Attempts = 0
			summary.Applied++
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if IsPermanent(handleErr) {
			return r.halt(ctx, span, evt, handleErr, summary)
		}
		return r.retry(ctx, span, evt, cursor.Attempts+1, handleErr, summary)
	}
	span.SetAttributes(attribute.Int64("cursor_seq", int64(cursor.AppliedSeq)))
	return nil
}

func (r *Runner) retry(ctx context.Context, span trace.Span, evt event.Event, attempts int, cause error, summary *Summary) error {
	now := r.now()
	next := now.Add(RetryDelay(attempts))
	span.RecordError(cause)
	if err := r.store.ScheduleRetry(ctx, r.name, evt.StreamID, attempts, next, cause.Error(), now); err != nil {
		return fmt.Errorf("schedule retry %s: %w", evt.StreamID, err)
	}
	summary.Retried++
	r.logger.Warn().
		Err(cause).
		Str("stream_id", evt.StreamID).
		Uint64("seq", evt.Seq).
		Str("event_type", string(evt.Type)).
		Int("attempt", attempts).
		Time("next_attempt_at", next).
		Msg("event handling failed, retry scheduled")
	return nil
}

func (r *Runner) halt(ctx context.Context, span trace.Span, evt event.Event, cause error, summary *Summary) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "cursor halted")
	if err := r.store.HaltCursor(ctx, r.name, evt.StreamID, fmt.Sprintf("seq %d: %v", evt.Seq, cause), r.now()); err != nil {
		return fmt.Errorf("halt cursor %s: %w", evt.StreamID, err)
	}
	summary.Halted++
	r.logger.Error().
		Err(cause).
		Str("stream_id", evt.StreamID).
		Uint64("seq", evt.Seq).
		Str("event_type", string(evt.Type)).
		Msg("cursor halted")
	return nil
}
