package transaction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// heldInvestment returns an investment holding 10 units bought on day 5.
func heldInvestment(t *testing.T) investment.State {
	t.Helper()
	owner, _, err := portfolio.Create("p1", "Core", "", "USD", now)
	if err != nil {
		t.Fatalf("create portfolio: %v", err)
	}
	inv, _, err := investment.Add(investment.New("p1.acme"), owner.State, investment.AddInput{Symbol: "ACME"}, now)
	if err != nil {
		t.Fatalf("add investment: %v", err)
	}
	inv, _, err = investment.Acquire(inv, owner.State, "t0", dec("10"), day(5), now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return inv.State
}

func TestRecordBuy(t *testing.T) {
	inv := heldInvestment(t)
	root, events, err := Record(New("t1"), inv, Input{
		Type:     "buy",
		Date:     day(6),
		Quantity: dec("4"),
		Price:    money.MustParse("101.5", "USD"),
		Fee:      money.Money{Amount: dec("1")},
		Amount:   money.MustParse("99", "USD"),
	}, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventTypeRecorded || events[0].StreamID != "transaction-t1" {
		t.Fatalf("unexpected events %+v", events)
	}
	s := root.State
	if s.Type != TypeBuy || s.Symbol != "ACME" || s.PortfolioID != "p1" || s.Status != StatusActive {
		t.Fatalf("unexpected state %+v", s)
	}
	if s.Fee.Currency != "USD" || !s.Fee.Amount.Equal(dec("1")) {
		t.Fatalf("fee not defaulted to investment currency: %+v", s.Fee)
	}
	if !s.Amount.IsZero() {
		t.Fatalf("trade amount should be zeroed, got %s", s.Amount.Amount)
	}
}

func TestRecordValidation(t *testing.T) {
	inv := heldInvestment(t)
	tests := []struct {
		name  string
		input Input
		code  apperrors.Code
	}{
		{"bad type", Input{Type: "SPLIT", Date: day(6)}, apperrors.CodeTransactionInvalidType},
		{"missing date", Input{Type: "BUY", Quantity: dec("1")}, apperrors.CodeTransactionDateRequired},
		{"future date", Input{Type: "BUY", Date: now.Add(time.Hour), Quantity: dec("1")}, apperrors.CodeTransactionFutureDate},
		{"zero quantity", Input{Type: "BUY", Date: day(6)}, apperrors.CodeTransactionInvalidQuantity},
		{"negative quantity", Input{Type: "SELL", Date: day(6), Quantity: dec("-1")}, apperrors.CodeTransactionInvalidQuantity},
		{"negative price", Input{Type: "BUY", Date: day(6), Quantity: dec("1"), Price: money.MustParse("-1", "USD")}, apperrors.CodeTransactionInvalidPrice},
		{"negative fee", Input{Type: "BUY", Date: day(6), Quantity: dec("1"), Fee: money.MustParse("-1", "USD")}, apperrors.CodeTransactionInvalidAmount},
		{"currency mismatch", Input{Type: "BUY", Date: day(6), Quantity: dec("1"), Price: money.MustParse("1", "EUR")}, apperrors.CodeTransactionCurrencyMismatch},
		{"sell before purchase", Input{Type: "SELL", Date: day(4), Quantity: dec("1")}, apperrors.CodeTransactionBeforePurchase},
		{"dividend before purchase", Input{Type: "DIVIDEND", Date: day(1), Amount: money.MustParse("3", "USD")}, apperrors.CodeTransactionBeforePurchase},
		{"dividend without amount", Input{Type: "DIVIDEND", Date: day(6)}, apperrors.CodeTransactionInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, events, err := Record(New("t1"), inv, tt.input, now)
			if !apperrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if len(events) != 0 {
				t.Fatal("expected no events")
			}
		})
	}
}

func TestRecordIncome(t *testing.T) {
	inv := heldInvestment(t)
	root, _, err := Record(New("t1"), inv, Input{
		Type:     "interest",
		Date:     day(10),
		Quantity: dec("5"),
		Amount:   money.MustParse("12.34", "usd"),
	}, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !root.State.Quantity.IsZero() || !root.State.Amount.Amount.Equal(dec("12.34")) {
		t.Fatalf("unexpected income state %+v", root.State)
	}
}

func TestRecordRequiresActiveInvestment(t *testing.T) {
	inv := heldInvestment(t)
	inv.Removed = true
	if _, _, err := Record(New("t1"), inv, Input{Type: "BUY", Date: day(6), Quantity: dec("1")}, now); !apperrors.HasCode(err, apperrors.CodeInvestmentRemoved) {
		t.Fatalf("expected removed investment error, got %v", err)
	}
	if _, _, err := Record(New("t1"), investment.State{}, Input{Type: "BUY", Date: day(6), Quantity: dec("1")}, now); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateAndCancel(t *testing.T) {
	inv := heldInvestment(t)
	root, _, err := Record(New("t1"), inv, Input{Type: "SELL", Date: day(6), Quantity: dec("4"), Price: money.MustParse("120", "USD")}, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	root = root.Committed()

	quantity := dec("3")
	notes := "  partial fill "
	updated, events, err := Update(root, inv, Changes{Quantity: &quantity, Notes: &notes}, now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventTypeUpdated || events[0].Seq != 2 {
		t.Fatalf("unexpected events %+v", events)
	}
	if !updated.State.Quantity.Equal(quantity) || updated.State.Notes != "partial fill" {
		t.Fatalf("unexpected state %+v", updated.State)
	}
	if !root.State.Quantity.Equal(dec("4")) {
		t.Fatal("update must not mutate receiver")
	}

	same, events, err := Update(updated, inv, Changes{Quantity: &quantity}, now)
	if err != nil || len(events) != 0 || same.Version != updated.Version {
		t.Fatalf("expected no-op update, got %d events err=%v", len(events), err)
	}

	bad := dec("0")
	if _, _, err := Update(updated, inv, Changes{Quantity: &bad}, now); !apperrors.HasCode(err, apperrors.CodeTransactionInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}

	cancelled, events, err := Cancel(updated, " duplicate ", now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(events) != 1 || cancelled.State.Status != StatusCancelled || cancelled.State.CancelReason != "duplicate" {
		t.Fatalf("unexpected cancel %+v", cancelled.State)
	}
	if _, _, err := Cancel(cancelled, "", now); !apperrors.HasCode(err, apperrors.CodeTransactionCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if _, _, err := Update(cancelled, inv, Changes{Quantity: &quantity}, now); !apperrors.HasCode(err, apperrors.CodeTransactionCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	inv := heldInvestment(t)
	root, recorded, err := Record(New("t1"), inv, Input{Type: "BUY", Date: day(6), Quantity: dec("2.5"), Price: money.MustParse("10.01", "USD")}, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	root, cancelled, err := Cancel(root, "typo", now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	loaded, err := Load("t1", append(recorded, cancelled...))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version != 2 || loaded.State.Status != StatusCancelled {
		t.Fatalf("unexpected loaded root %+v", loaded)
	}
	if !loaded.State.Quantity.Equal(root.State.Quantity) || !loaded.State.Price.Equal(root.State.Price) || !loaded.State.Date.Equal(root.State.Date) {
		t.Fatalf("loaded state %+v differs from %+v", loaded.State, root.State)
	}
}

func TestDecodeCoversEveryType(t *testing.T) {
	registry := event.NewRegistry()
	if err := Register(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, typ := range EventTypes() {
		payload, err := Decode(event.Event{Type: typ, PayloadJSON: []byte(`{"transaction_id":"t1"}`)})
		if err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		if payload.EventType() != typ {
			t.Fatalf("decoded %s as %s", typ, payload.EventType())
		}
	}
}
