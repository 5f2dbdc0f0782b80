package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

type counter struct {
	Total int
	Types []event.Type
}

func foldCounter(state counter, evt event.Event) (counter, error) {
	if evt.Type == "counter.broken" {
		return state, errors.New("broken")
	}
	state.Total++
	state.Types = append(append([]event.Type(nil), state.Types...), evt.Type)
	return state, nil
}

type counterPayload struct{}

func (counterPayload) EventType() event.Type { return "counter.b" }

func testEvent(stream string, seq uint64, t event.Type) event.Event {
	return event.Event{
		StreamID:    stream,
		EntityID:    "c1",
		Seq:         seq,
		Type:        t,
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte("{}"),
	}
}

func TestReplayFoldsInOrder(t *testing.T) {
	root, err := Replay("counter", "c1", counter{}, []event.Event{
		testEvent("counter-c1", 1, "counter.a"),
		testEvent("counter-c1", 2, "counter.b"),
	}, foldCounter)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if root.Version != 2 || root.State.Total != 2 {
		t.Fatalf("unexpected root %+v", root)
	}
	if len(root.Uncommitted()) != 0 {
		t.Fatal("replayed root must have no pending events")
	}
}

func TestReplayRejectsGapsAndForeignStreams(t *testing.T) {
	_, err := Replay("counter", "c1", counter{}, []event.Event{
		testEvent("counter-c1", 1, "counter.a"),
		testEvent("counter-c1", 3, "counter.b"),
	}, foldCounter)
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}

	_, err = Replay("counter", "c1", counter{}, []event.Event{
		testEvent("counter-c2", 1, "counter.a"),
	}, foldCounter)
	if !errors.Is(err, ErrStreamMismatch) {
		t.Fatalf("expected ErrStreamMismatch, got %v", err)
	}
}

func TestRecordHasValueSemantics(t *testing.T) {
	base, err := Replay("counter", "c1", counter{}, []event.Event{testEvent("counter-c1", 1, "counter.a")}, foldCounter)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	next, evt, err := base.Record(counterPayload{}, time.Unix(10, 0), foldCounter)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if evt.Seq != 2 || evt.StreamID != "counter-c1" || evt.EntityID != "c1" {
		t.Fatalf("unexpected recorded event %+v", evt)
	}
	if base.Version != 1 || base.State.Total != 1 || len(base.Uncommitted()) != 0 {
		t.Fatalf("receiver mutated: %+v", base)
	}
	if next.Version != 2 || next.ExpectedVersion() != 1 {
		t.Fatalf("version=%d expected=%d", next.Version, next.ExpectedVersion())
	}

	again, _, err := next.RecordEvent(testEvent("counter-c1", 0, "counter.c"), foldCounter)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(next.Uncommitted()) != 1 || len(again.Uncommitted()) != 2 {
		t.Fatalf("pending slices alias: next=%d again=%d", len(next.Uncommitted()), len(again.Uncommitted()))
	}
	if again.ExpectedVersion() != 1 {
		t.Fatalf("expected version 1, got %d", again.ExpectedVersion())
	}

	committed := again.Committed()
	if len(committed.Uncommitted()) != 0 || committed.Version != 3 || committed.ExpectedVersion() != 3 {
		t.Fatalf("unexpected committed root %+v", committed)
	}
}

func TestRecordFoldFailureLeavesRootUnchanged(t *testing.T) {
	root := New("counter", "c1", counter{})
	same, _, err := root.RecordEvent(testEvent("counter-c1", 0, "counter.broken"), foldCounter)
	if err == nil {
		t.Fatal("expected fold error")
	}
	if same.Version != 0 || same.Exists() {
		t.Fatalf("unexpected root %+v", same)
	}
	if _, _, err := root.RecordEvent(testEvent("counter-c9", 0, "counter.a"), foldCounter); !errors.Is(err, ErrStreamMismatch) {
		t.Fatalf("expected ErrStreamMismatch, got %v", err)
	}
}
