package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/folio/internal/services/ledger/consumer"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
	"github.com/louisbranch/folio/internal/services/ledger/storage/memory"
	"github.com/louisbranch/folio/internal/services/ledger/storage/storagetest"
)

func committed(t *testing.T, store *memory.Store, id string, n int) []event.Event {
	t.Helper()
	ctx := context.Background()
	events := storagetest.PortfolioEvents(t, id, n)
	if _, err := store.Append(ctx, events[0].StreamID, 0, events); err != nil {
		t.Fatalf("append: %v", err)
	}
	stored, _, err := store.Load(ctx, events[0].StreamID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return stored
}

func TestNewMessage(t *testing.T) {
	evt := committed(t, memory.New(), "p1", 1)[0]
	msg, err := NewMessage(evt)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if msg.ID != "portfolio-p1/1" || msg.Topic != "portfolio.created" || msg.Position != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}

	evt.Seq = 0
	if _, err := NewMessage(evt); err == nil {
		t.Fatal("expected error for uncommitted event")
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	evt := committed(t, memory.New(), "p1", 1)[0]
	msg, err := NewMessage(evt)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	for _, name := range []string{CodecJSON, CodecMsgpack} {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(name)
			if err != nil {
				t.Fatalf("new codec: %v", err)
			}
			body, err := codec.Encode(msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := codec.Decode(body)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.ID != msg.ID || got.Seq != msg.Seq || !got.OccurredAt.Equal(msg.OccurredAt) || string(got.Payload) != string(msg.Payload) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, msg)
			}
		})
	}
	if _, err := NewCodec("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestRunnerPublishesInStreamOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	committed(t, store, "p1", 3)
	committed(t, store, "p2", 1)

	broker := NewMemoryBroker()
	publisher, err := NewPublisher(JSONCodec{}, broker)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	runner, err := NewRunner(store, publisher, consumer.Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if _, err := runner.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var ids []string
	for _, env := range broker.Envelopes() {
		ids = append(ids, env.MessageID)
	}
	want := []string{"portfolio-p1/1", "portfolio-p1/2", "portfolio-p1/3", "portfolio-p2/1"}
	if len(ids) != len(want) {
		t.Fatalf("published %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("published %v, want %v", ids, want)
		}
	}

	// Redelivery after a cursor reset is absorbed by the broker.
	if err := runner.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := runner.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := len(broker.Envelopes()); got != len(want) {
		t.Fatalf("expected %d envelopes after redelivery, got %d", len(want), got)
	}
}

type flakyBroker struct {
	failures int
	err      error
	inner    *MemoryBroker
}

func (b *flakyBroker) Publish(ctx context.Context, env Envelope) error {
	if b.failures > 0 {
		b.failures--
		return b.err
	}
	return b.inner.Publish(ctx, env)
}

func TestBrokerFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	committed(t, store, "p1", 1)

	broker := &flakyBroker{failures: 1, err: errors.New("broker unavailable"), inner: NewMemoryBroker()}
	publisher, _ := NewPublisher(JSONCodec{}, broker)
	runner, err := NewRunner(store, publisher, consumer.Options{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	summary, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Retried != 1 || summary.Halted != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	cursor, err := store.GetCursor(ctx, ConsumerName, "portfolio-p1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if cursor.Status != storage.CursorActive || cursor.Attempts != 1 {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
}

func TestPermanentBrokerFailureHalts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	committed(t, store, "p1", 1)

	broker := &flakyBroker{failures: 1, err: consumer.Permanent(errors.New("topic rejected")), inner: NewMemoryBroker()}
	publisher, _ := NewPublisher(MsgpackCodec{}, broker)
	runner, err := NewRunner(store, publisher, consumer.Options{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	summary, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Halted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestNewPublisherRequiresCollaborators(t *testing.T) {
	if _, err := NewPublisher(nil, NewMemoryBroker()); !errors.Is(err, ErrCodecRequired) {
		t.Fatalf("expected ErrCodecRequired, got %v", err)
	}
	if _, err := NewPublisher(JSONCodec{}, nil); !errors.Is(err, ErrBrokerRequired) {
		t.Fatalf("expected ErrBrokerRequired, got %v", err)
	}
}
