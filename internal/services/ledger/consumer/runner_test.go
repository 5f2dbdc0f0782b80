package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
	"github.com/louisbranch/folio/internal/services/ledger/storage/memory"
	"github.com/louisbranch/folio/internal/services/ledger/storage/storagetest"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingHandler struct {
	seen []string
	fail func(evt event.Event) error
}

func (h *recordingHandler) Handle(_ context.Context, evt event.Event) error {
	if h.fail != nil {
		if err := h.fail(evt); err != nil {
			return err
		}
	}
	h.seen = append(h.seen, evt.StreamID+"#"+string(rune('0'+evt.Seq)))
	return nil
}

func seed(t *testing.T, store *memory.Store, id string, n int) {
	t.Helper()
	if _, err := store.Append(context.Background(), portfolio.StreamID(id), 0, storagetest.PortfolioEvents(t, id, n)); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newTestRunner(t *testing.T, store *memory.Store, handler Handler, clock *fakeClock, opts Options) *Runner {
	t.Helper()
	opts.Clock = clock.Now
	runner, err := NewRunner("projection", store, handler, opts)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

func TestNewRunnerRequiresCollaborators(t *testing.T) {
	store := memory.New()
	handler := HandlerFunc(func(context.Context, event.Event) error { return nil })
	if _, err := NewRunner("", store, handler, Options{}); err == nil {
		t.Fatal("expected name error")
	}
	if _, err := NewRunner("p", nil, handler, Options{}); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewRunner("p", store, nil, Options{}); err == nil {
		t.Fatal("expected handler error")
	}
}

func TestRunOnceAppliesInOrderAndIsResumable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", 3)
	seed(t, store, "b", 1)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	handler := &recordingHandler{}
	runner := newTestRunner(t, store, handler, clock, Options{})

	summary, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if diff := cmp.Diff(Summary{Streams: 2, Applied: 4}, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	want := []string{"portfolio-a#1", "portfolio-a#2", "portfolio-a#3", "portfolio-b#1"}
	if diff := cmp.Diff(want, handler.seen); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	summary, err = runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Applied != 0 {
		t.Fatalf("second pass applied %d events", summary.Applied)
	}

	cursor, err := store.GetCursor(ctx, "projection", "portfolio-a")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if cursor.AppliedSeq != 3 {
		t.Fatalf("applied seq = %d, want 3", cursor.AppliedSeq)
	}
}

func TestTransientFailureKeepsCursorAndRetries(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", 2)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	failing := true
	handler := &recordingHandler{fail: func(evt event.Event) error {
		if failing && evt.Seq == 2 {
			return errors.New("database is locked")
		}
		return nil
	}}
	runner := newTestRunner(t, store, handler, clock, Options{})

	summary, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Applied != 1 || summary.Retried != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	cursor, _ := store.GetCursor(ctx, "projection", "portfolio-a")
	if cursor.AppliedSeq != 1 || cursor.Attempts != 1 || cursor.Status != storage.CursorActive {
		t.Fatalf("cursor after failure = %+v", cursor)
	}
	if want := clock.now.Add(time.Second); !cursor.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", cursor.NextAttemptAt, want)
	}

	summary, _ = runner.RunOnce(ctx)
	if summary.Waiting != 1 || summary.Applied != 0 {
		t.Fatalf("pass before retry is due = %+v", summary)
	}

	failing = false
	clock.now = clock.now.Add(2 * time.Second)
	summary, err = runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("retry pass = %+v", summary)
	}
	cursor, _ = store.GetCursor(ctx, "projection", "portfolio-a")
	if cursor.AppliedSeq != 2 || cursor.Attempts != 0 || cursor.LastError != "" {
		t.Fatalf("cursor after retry = %+v", cursor)
	}
}

func TestPermanentFailureHaltsOnlyThatStream(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", 2)
	seed(t, store, "b", 2)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	broken := true
	handler := &recordingHandler{fail: func(evt event.Event) error {
		if broken && evt.StreamID == "portfolio-a" && evt.Seq == 1 {
			return Permanent(errors.New("unmapped event type"))
		}
		return nil
	}}
	runner := newTestRunner(t, store, handler, clock, Options{})

	summary, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Halted != 1 || summary.Applied != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	cursor, _ := store.GetCursor(ctx, "projection", "portfolio-a")
	if cursor.Status != storage.CursorHalted || cursor.AppliedSeq != 0 {
		t.Fatalf("halted cursor = %+v", cursor)
	}
	if cursor.LastError != "seq 1: unmapped event type" {
		t.Fatalf("last error = %q", cursor.LastError)
	}

	clock.now = clock.now.Add(time.Hour)
	summary, _ = runner.RunOnce(ctx)
	if summary.Blocked != 1 || summary.Applied != 0 {
		t.Fatalf("pass over halted stream = %+v", summary)
	}

	broken = false
	if err := runner.Resume(ctx, "portfolio-a"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	summary, err = runner.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if summary.Applied != 2 {
		t.Fatalf("applied after resume = %d, want 2", summary.Applied)
	}
}

func TestTransientFailureIsRetriedUntilItSucceeds(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", 1)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	down := true
	handler := &recordingHandler{fail: func(event.Event) error {
		if down {
			return errors.New("storage unavailable")
		}
		return nil
	}}
	runner := newTestRunner(t, store, handler, clock, Options{})

	for i := 1; i <= 20; i++ {
		summary, err := runner.RunOnce(ctx)
		if err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if summary.Halted != 0 || summary.Retried != 1 {
			t.Fatalf("pass %d = %+v", i, summary)
		}
		clock.now = clock.now.Add(10 * time.Minute)
	}
	cursor, _ := store.GetCursor(ctx, "projection", "portfolio-a")
	if cursor.Status != storage.CursorActive || cursor.Attempts != 20 {
		t.Fatalf("cursor after outage = %+v", cursor)
	}

	down = false
	summary, err := runner.RunOnce(ctx)
	if err != nil || summary.Applied != 1 {
		t.Fatalf("pass after recovery = %+v, %v", summary, err)
	}
}

func TestSettleRetriesWithoutWaitingForSchedule(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", 2)
	seed(t, store, "b", 2)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	failures := 1
	handler := &recordingHandler{fail: func(evt event.Event) error {
		if evt.StreamID == "portfolio-b" && evt.Seq == 1 && failures > 0 {
			failures--
			return errors.New("database is locked")
		}
		return nil
	}}
	runner := newTestRunner(t, store, handler, clock, Options{})

	summary, err := runner.Settle(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.Applied != 4 || summary.Retried != 1 || summary.Waiting != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	cursor, _ := store.GetCursor(ctx, "projection", "portfolio-b")
	if cursor.AppliedSeq != 2 || cursor.Attempts != 0 {
		t.Fatalf("cursor = %+v", cursor)
	}
}

func TestSettleGivesUpOnPersistentFailure(t *testing.T) {
	store := memory.New()
	seed(t, store, "a", 1)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	handler := &recordingHandler{fail: func(event.Event) error { return errors.New("disk full") }}
	runner := newTestRunner(t, store, handler, clock, Options{})

	_, err := runner.Settle(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, ErrUnsettled) {
		t.Fatalf("expected ErrUnsettled, got %v", err)
	}
	cursor, _ := store.GetCursor(context.Background(), "projection", "portfolio-a")
	if cursor.Status != storage.CursorActive {
		t.Fatalf("cursor must stay active, got %+v", cursor)
	}
}

func TestDrainCrossesBatchBoundaries(t *testing.T) {
	store := memory.New()
	seed(t, store, "a", 7)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	handler := &recordingHandler{}
	runner := newTestRunner(t, store, handler, clock, Options{BatchSize: 2})

	summary, err := runner.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if summary.Applied != 7 || len(handler.seen) != 7 {
		t.Fatalf("drain applied %d, handler saw %d", summary.Applied, len(handler.seen))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := memory.New()
	seed(t, store, "a", 1)
	ctx, cancel := context.WithCancel(context.Background())
	applied := make(chan struct{}, 1)
	handler := HandlerFunc(func(context.Context, event.Event) error {
		applied <- struct{}{}
		return nil
	})
	runner, err := NewRunner("outbox", store, handler, Options{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-applied:
	case <-time.After(5 * time.Second):
		t.Fatal("event was not applied")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{9, 256 * time.Second},
		{10, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.want {
			t.Fatalf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("bad payload")
	err := Permanent(base)
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("Permanent(%v) lost its identity", base)
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	if IsPermanent(base) {
		t.Fatal("plain error reported as permanent")
	}
}
