package portfolio

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T) Root {
	t.Helper()
	root, events, err := Create("p1", "Retirement", "long term", "usd", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	return root.Committed()
}

func TestCreate(t *testing.T) {
	root, events, err := Create("p1", "  Retirement ", "", "usd", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	evt := events[0]
	if evt.Type != EventTypeCreated || evt.Seq != 1 || evt.StreamID != "portfolio-p1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if root.State.Name != "Retirement" || root.State.Currency != "USD" || !root.State.Open() {
		t.Fatalf("unexpected state %+v", root.State)
	}
	if root.ExpectedVersion() != 0 {
		t.Fatalf("expected version 0, got %d", root.ExpectedVersion())
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		title    string
		currency string
		code     apperrors.Code
	}{
		{"missing id", "", "Name", "USD", apperrors.CodePortfolioIDRequired},
		{"empty name", "p1", "  ", "USD", apperrors.CodePortfolioNameEmpty},
		{"bad currency", "p1", "Name", "ZZZ", apperrors.CodePortfolioInvalidCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, events, err := Create(tt.id, tt.title, "", tt.currency, now)
			if !apperrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if len(events) != 0 {
				t.Fatalf("expected no events, got %d", len(events))
			}
		})
	}
}

func TestRenameAndDescribe(t *testing.T) {
	root := mustCreate(t)

	renamed, events, err := Rename(root, "Pension", now)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventTypeRenamed || events[0].Seq != 2 {
		t.Fatalf("unexpected events %+v", events)
	}
	if renamed.State.Name != "Pension" || root.State.Name != "Retirement" {
		t.Fatalf("rename must not mutate receiver: old=%q new=%q", root.State.Name, renamed.State.Name)
	}

	same, events, err := Rename(renamed, "Pension", now)
	if err != nil || len(events) != 0 || same.Version != renamed.Version {
		t.Fatalf("expected no-op rename, got events=%d err=%v", len(events), err)
	}

	described, events, err := Describe(renamed, "growth", now)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(events) != 1 || described.State.Description != "growth" {
		t.Fatalf("unexpected describe result %+v", described.State)
	}
}

func TestClosedPortfolioRejectsChanges(t *testing.T) {
	root := mustCreate(t)
	closed, events, err := Close(root, now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(events) != 1 || closed.State.Status != StatusClosed {
		t.Fatalf("unexpected close result %+v", closed.State)
	}
	closed = closed.Committed()

	_, events, err = Rename(closed, "New name", now)
	if !apperrors.HasCode(err, apperrors.CodePortfolioClosed) {
		t.Fatalf("expected %s, got %v", apperrors.CodePortfolioClosed, err)
	}
	if len(events) != 0 {
		t.Fatal("expected no events on rejected rename")
	}
	if _, _, err := Describe(closed, "x", now); !apperrors.HasCode(err, apperrors.CodePortfolioClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if _, _, err := Close(closed, now); !apperrors.HasCode(err, apperrors.CodePortfolioClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if _, _, err := Rename(New("missing"), "x", now); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	root, created, err := Create("p1", "Retirement", "", "EUR", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	root, renamed, err := Rename(root, "Pension", now)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	root, closed, err := Close(root, now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	all := append(append(created, renamed...), closed...)

	loaded, err := Load("p1", all)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.State != root.State || loaded.Version != 3 {
		t.Fatalf("loaded %+v, want %+v", loaded.State, root.State)
	}
	if len(loaded.Uncommitted()) != 0 {
		t.Fatal("loaded root must have no pending events")
	}
}

func TestDecodeCoversEveryType(t *testing.T) {
	registry := event.NewRegistry()
	if err := Register(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, typ := range EventTypes() {
		evt := event.Event{Type: typ, PayloadJSON: []byte(`{"portfolio_id":"p1"}`)}
		payload, err := Decode(evt)
		if err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		if payload.EventType() != typ {
			t.Fatalf("decoded %s as %s", typ, payload.EventType())
		}
		if _, ok := registry.Definition(typ); !ok {
			t.Fatalf("type %s not registered", typ)
		}
	}
	if _, err := Decode(event.Event{Type: "portfolio.unknown", PayloadJSON: []byte("{}")}); err == nil {
		t.Fatal("expected unknown type error")
	}
}
