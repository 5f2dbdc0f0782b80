// Package storagetest holds behavioral checks shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// Factory returns a fresh empty store. Implementations register cleanup on t.
type Factory func(t *testing.T) storage.Store

var baseTime = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

// PortfolioEvents returns n portfolio events for id: one creation followed
// by renames.
func PortfolioEvents(t *testing.T, id string, n int) []event.Event {
	t.Helper()
	root, events, err := portfolio.Create(id, "Core", "", "USD", baseTime)
	if err != nil {
		t.Fatalf("create portfolio: %v", err)
	}
	for i := 1; i < n; i++ {
		var more []event.Event
		root, more, err = portfolio.Rename(root, "Core "+string(rune('A'+i)), baseTime.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("rename portfolio: %v", err)
		}
		events = append(events, more...)
	}
	return events
}

// Run executes every check against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("AppendAndLoad", func(t *testing.T) { testAppendAndLoad(t, newStore) })
	t.Run("AppendConflict", func(t *testing.T) { testAppendConflict(t, newStore) })
	t.Run("AppendBatchAtomic", func(t *testing.T) { testAppendBatchAtomic(t, newStore) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newStore) })
	t.Run("ListEvents", func(t *testing.T) { testListEvents(t, newStore) })
	t.Run("Cursors", func(t *testing.T) { testCursors(t, newStore) })
	t.Run("ReadModels", func(t *testing.T) { testReadModels(t, newStore) })
}

func testAppendAndLoad(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)

	events, version, err := store.Load(ctx, portfolio.StreamID("p1"))
	if err != nil {
		t.Fatalf("load empty stream: %v", err)
	}
	if len(events) != 0 || version != 0 {
		t.Fatalf("empty stream = %d events at version %d", len(events), version)
	}

	version, err = store.Append(ctx, portfolio.StreamID("p1"), 0, PortfolioEvents(t, "p1", 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if _, err := store.Append(ctx, portfolio.StreamID("p2"), 0, PortfolioEvents(t, "p2", 1)); err != nil {
		t.Fatalf("append p2: %v", err)
	}

	loaded, version, err := store.Load(ctx, portfolio.StreamID("p1"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 2 || len(loaded) != 2 {
		t.Fatalf("loaded %d events at version %d", len(loaded), version)
	}
	for i, evt := range loaded {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("event %d seq = %d", i, evt.Seq)
		}
		if evt.Position == 0 {
			t.Fatalf("event %d has no commit position", i)
		}
		if i > 0 && evt.Position <= loaded[i-1].Position {
			t.Fatalf("positions not increasing: %d then %d", loaded[i-1].Position, evt.Position)
		}
	}
	if loaded[0].Type != portfolio.EventTypeCreated || loaded[0].EntityID != "p1" {
		t.Fatalf("first event = %+v", loaded[0])
	}
	if !loaded[0].Timestamp.Equal(baseTime) {
		t.Fatalf("timestamp = %v, want %v", loaded[0].Timestamp, baseTime)
	}
	if _, err := portfolio.Load("p1", loaded); err != nil {
		t.Fatalf("replay loaded events: %v", err)
	}

	streams, err := store.ListStreams(ctx)
	if err != nil {
		t.Fatalf("list streams: %v", err)
	}
	var ids []string
	for _, s := range streams {
		ids = append(ids, s.StreamID)
	}
	if diff := cmp.Diff([]string{"portfolio-p1", "portfolio-p2"}, ids); diff != "" {
		t.Fatalf("streams mismatch (-want +got):\n%s", diff)
	}
	if streams[0].Version != 2 || streams[0].AggregateType != event.AggregatePortfolio {
		t.Fatalf("stream head = %+v", streams[0])
	}
}

func testAppendConflict(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	streamID := portfolio.StreamID("p1")
	events := PortfolioEvents(t, "p1", 2)

	if _, err := store.Append(ctx, streamID, 0, events[:1]); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := store.Append(ctx, streamID, 0, events[:1])
	if !storage.IsConflict(err) {
		t.Fatalf("stale append error = %v, want conflict", err)
	}
	var conflict *storage.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflict.Expected != 0 || conflict.Actual != 1 {
		t.Fatalf("conflict = %+v", conflict)
	}
	if _, err := store.Append(ctx, streamID, 5, events[1:]); !storage.IsConflict(err) {
		t.Fatalf("ahead append error = %v, want conflict", err)
	}
	_, version, err := store.Load(ctx, streamID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 1 {
		t.Fatalf("version after conflicts = %d, want 1", version)
	}
}

func testAppendBatchAtomic(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	p1 := PortfolioEvents(t, "p1", 1)
	p2 := PortfolioEvents(t, "p2", 1)

	if _, err := store.Append(ctx, portfolio.StreamID("p2"), 0, p2); err != nil {
		t.Fatalf("seed p2: %v", err)
	}
	_, err := store.AppendBatch(ctx, []storage.StreamAppend{
		{StreamID: portfolio.StreamID("p1"), ExpectedVersion: 0, Events: p1},
		{StreamID: portfolio.StreamID("p2"), ExpectedVersion: 0, Events: p2},
	})
	if !storage.IsConflict(err) {
		t.Fatalf("batch error = %v, want conflict", err)
	}
	if _, version, _ := store.Load(ctx, portfolio.StreamID("p1")); version != 0 {
		t.Fatalf("p1 version after failed batch = %d, want 0", version)
	}

	versions, err := store.AppendBatch(ctx, []storage.StreamAppend{
		{StreamID: portfolio.StreamID("p1"), ExpectedVersion: 0, Events: p1},
		{StreamID: portfolio.StreamID("p3"), ExpectedVersion: 0, Events: PortfolioEvents(t, "p3", 2)},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 2}, versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.AppendBatch(ctx, []storage.StreamAppend{
		{StreamID: portfolio.StreamID("p4"), Events: PortfolioEvents(t, "p4", 1)},
		{StreamID: portfolio.StreamID("p4"), ExpectedVersion: 1, Events: PortfolioEvents(t, "p4", 1)},
	}); err == nil {
		t.Fatal("expected duplicate stream error")
	}
}

func testConcurrentAppend(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	streamID := portfolio.StreamID("race")
	events := PortfolioEvents(t, "race", 1)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, streamID, 0, events)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case storage.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("wins = %d conflicts = %d", wins, conflicts)
	}
}

func testListEvents(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	streamID := portfolio.StreamID("p1")
	if _, err := store.Append(ctx, streamID, 0, PortfolioEvents(t, "p1", 5)); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, err := store.ListEvents(ctx, streamID, 1, 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var seqs []uint64
	for _, evt := range page {
		seqs = append(seqs, evt.Seq)
	}
	if diff := cmp.Diff([]uint64{2, 3}, seqs); diff != "" {
		t.Fatalf("seqs mismatch (-want +got):\n%s", diff)
	}

	rest, err := store.ListEvents(ctx, streamID, 3, 0)
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("rest = %d events, want 2", len(rest))
	}
	none, err := store.ListEvents(ctx, streamID, 5, 10)
	if err != nil {
		t.Fatalf("list past head: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("past head = %d events", len(none))
	}
}

func testCursors(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	at := baseTime

	if _, err := store.GetCursor(ctx, "projection", "portfolio-p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing cursor error = %v, want not found", err)
	}
	if err := store.AdvanceCursor(ctx, "projection", "portfolio-p1", 3, at); err != nil {
		t.Fatalf("advance: %v", err)
	}
	next := at.Add(2 * time.Second)
	if err := store.ScheduleRetry(ctx, "projection", "portfolio-p1", 2, next, "db busy", at); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}
	got, err := store.GetCursor(ctx, "projection", "portfolio-p1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	want := storage.Cursor{
		Consumer:      "projection",
		StreamID:      "portfolio-p1",
		AppliedSeq:    3,
		Status:        storage.CursorActive,
		Attempts:      2,
		NextAttemptAt: next,
		LastError:     "db busy",
		UpdatedAt:     at,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cursor mismatch (-want +got):\n%s", diff)
	}

	if err := store.HaltCursor(ctx, "projection", "portfolio-p1", "bad payload", at); err != nil {
		t.Fatalf("halt: %v", err)
	}
	got, _ = store.GetCursor(ctx, "projection", "portfolio-p1")
	if got.Status != storage.CursorHalted || got.AppliedSeq != 3 || got.LastError != "bad payload" {
		t.Fatalf("halted cursor = %+v", got)
	}

	if err := store.ResumeCursor(ctx, "projection", "portfolio-p1", at); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, _ = store.GetCursor(ctx, "projection", "portfolio-p1")
	if got.Status != storage.CursorActive || got.Attempts != 0 || got.LastError != "" {
		t.Fatalf("resumed cursor = %+v", got)
	}
	if err := store.ResumeCursor(ctx, "projection", "portfolio-missing", at); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("resume missing error = %v, want not found", err)
	}

	if err := store.AdvanceCursor(ctx, "outbox", "portfolio-p1", 1, at); err != nil {
		t.Fatalf("advance outbox: %v", err)
	}
	if err := store.ResetCursors(ctx, "projection"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	cursors, err := store.ListCursors(ctx, "projection")
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 0 {
		t.Fatalf("projection cursors after reset = %d", len(cursors))
	}
	cursors, _ = store.ListCursors(ctx, "outbox")
	if len(cursors) != 1 {
		t.Fatalf("outbox cursors = %d, want 1", len(cursors))
	}
}

func testReadModels(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)
	pf := storage.PortfolioRecord{
		ID:          "p1",
		Name:        "Core",
		Description: "long term",
		Currency:    "USD",
		Status:      portfolio.StatusOpen,
		Version:     3,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime.Add(time.Hour),
	}
	if err := store.PutPortfolio(ctx, pf); err != nil {
		t.Fatalf("put portfolio: %v", err)
	}
	gotPF, err := store.GetPortfolio(ctx, "p1")
	if err != nil {
		t.Fatalf("get portfolio: %v", err)
	}
	if diff := cmp.Diff(pf, gotPF); diff != "" {
		t.Fatalf("portfolio mismatch (-want +got):\n%s", diff)
	}
	if _, err := store.GetPortfolio(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing portfolio error = %v", err)
	}

	inv := storage.InvestmentRecord{ID: "p1.aapl", PortfolioID: "p1", Symbol: "AAPL", Name: "Apple", Kind: investment.KindStock, Currency: "USD", Version: 1, CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := store.PutInvestment(ctx, inv); err != nil {
		t.Fatalf("put investment: %v", err)
	}
	invs, err := store.ListInvestments(ctx, "p1")
	if err != nil || len(invs) != 1 || invs[0].Symbol != "AAPL" {
		t.Fatalf("list investments = %+v, %v", invs, err)
	}

	pos := storage.PositionRecord{PortfolioID: "p1", Symbol: "AAPL", InvestmentID: "p1.aapl", Quantity: decimal.RequireFromString("3.5"), UpdatedAt: baseTime}
	if err := store.PutPosition(ctx, pos); err != nil {
		t.Fatalf("put position: %v", err)
	}
	positions, err := store.ListPositions(ctx, "p1")
	if err != nil || len(positions) != 1 || !positions[0].Quantity.Equal(pos.Quantity) {
		t.Fatalf("list positions = %+v, %v", positions, err)
	}

	later := storage.TransactionRecord{
		ID: "t2", PortfolioID: "p1", InvestmentID: "p1.aapl", Symbol: "AAPL",
		Type: transaction.TypeSell, Date: baseTime.AddDate(0, 0, 2),
		Quantity: decimal.NewFromInt(1), Price: money.MustParse("150", "USD"),
		Fee: money.Zero("USD"), Amount: money.Zero("USD"), Currency: "USD",
		Status: transaction.StatusActive, Version: 1, Position: 4,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	earlier := later
	earlier.ID = "t1"
	earlier.Type = transaction.TypeBuy
	earlier.Date = baseTime
	earlier.Position = 9
	cancelled := earlier
	cancelled.ID = "t3"
	cancelled.Status = transaction.StatusCancelled
	cancelled.CancelReason = "typo"
	for _, rec := range []storage.TransactionRecord{later, earlier, cancelled} {
		if err := store.PutTransaction(ctx, rec); err != nil {
			t.Fatalf("put transaction %s: %v", rec.ID, err)
		}
	}
	gotTx, err := store.GetTransaction(ctx, "t2")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if !gotTx.Price.Equal(later.Price) || !gotTx.Date.Equal(later.Date) || gotTx.Type != transaction.TypeSell {
		t.Fatalf("transaction = %+v", gotTx)
	}

	txns, err := store.ListTransactions(ctx, storage.TransactionFilter{PortfolioID: "p1"})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	var ids []string
	for _, tx := range txns {
		ids = append(ids, tx.ID)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, ids); diff != "" {
		t.Fatalf("transaction order mismatch (-want +got):\n%s", diff)
	}
	all, _ := store.ListTransactions(ctx, storage.TransactionFilter{PortfolioID: "p1", IncludeCancelled: true})
	if len(all) != 3 {
		t.Fatalf("all transactions = %d, want 3", len(all))
	}

	if err := store.PutPortfolio(ctx, storage.PortfolioRecord{ID: "p2", Name: "Old", Currency: "EUR", Status: portfolio.StatusOpen, Version: 1, CreatedAt: baseTime, UpdatedAt: baseTime}); err != nil {
		t.Fatalf("put portfolio p2: %v", err)
	}
	if err := store.DeletePortfolio(ctx, "p2"); err != nil {
		t.Fatalf("delete portfolio: %v", err)
	}
	if err := store.DeletePortfolio(ctx, "p2"); err != nil {
		t.Fatalf("delete missing portfolio: %v", err)
	}
	if _, err := store.GetPortfolio(ctx, "p2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted portfolio error = %v", err)
	}

	if err := store.DeleteInvestment(ctx, "p1.aapl"); err != nil {
		t.Fatalf("delete investment: %v", err)
	}
	if err := store.DeletePosition(ctx, "p1", "AAPL"); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	if _, err := store.GetInvestment(ctx, "p1.aapl"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted investment error = %v", err)
	}

	if err := store.TruncateReadModels(ctx); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if list, _ := store.ListPortfolios(ctx); len(list) != 0 {
		t.Fatalf("portfolios after truncate = %d", len(list))
	}
	if list, _ := store.ListTransactions(ctx, storage.TransactionFilter{IncludeCancelled: true}); len(list) != 0 {
		t.Fatalf("transactions after truncate = %d", len(list))
	}
}
