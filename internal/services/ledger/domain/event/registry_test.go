package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testEvent(t Type) Event {
	return Event{
		StreamID:      "portfolio-p1",
		AggregateType: AggregatePortfolio,
		EntityID:      "p1",
		Type:          t,
		Timestamp:     time.Unix(0, 0).UTC(),
		PayloadJSON:   []byte("{}"),
	}
}

func TestRegistryValidateForAppend_UnknownType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.ValidateForAppend(testEvent("unknown.event"))
	if !errors.Is(err, ErrTypeUnknown) {
		t.Fatalf("expected ErrTypeUnknown, got %v", err)
	}
}

func TestRegistryValidateForAppend_AggregateMismatch(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{Type: "investment.added", Aggregate: AggregateInvestment}); err != nil {
		t.Fatalf("register type: %v", err)
	}

	_, err := registry.ValidateForAppend(testEvent("investment.added"))
	if !errors.Is(err, ErrAggregateMismatch) {
		t.Fatalf("expected ErrAggregateMismatch, got %v", err)
	}
}

func TestRegistryValidateForAppend_CanonicalizesPayloadJSON(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{Type: "portfolio.created", Aggregate: AggregatePortfolio}); err != nil {
		t.Fatalf("register type: %v", err)
	}

	evt := testEvent("portfolio.created")
	evt.PayloadJSON = []byte(`{"b":2, "a":0.10000000000000000001}`)

	normalized, err := registry.ValidateForAppend(evt)
	if err != nil {
		t.Fatalf("validate event: %v", err)
	}
	want := `{"a":0.10000000000000000001,"b":2}`
	if string(normalized.PayloadJSON) != want {
		t.Fatalf("PayloadJSON = %s, want %s", normalized.PayloadJSON, want)
	}
}

func TestRegistryValidateForAppend_InvalidPayload(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{Type: "portfolio.created", Aggregate: AggregatePortfolio}); err != nil {
		t.Fatalf("register type: %v", err)
	}

	for _, raw := range []string{"", "{", "[1,2]"} {
		evt := testEvent("portfolio.created")
		evt.PayloadJSON = []byte(raw)
		if _, err := registry.ValidateForAppend(evt); !errors.Is(err, ErrPayloadInvalid) {
			t.Fatalf("payload %q: expected ErrPayloadInvalid, got %v", raw, err)
		}
	}
}

func TestRegistryValidateForAppend_PayloadValidator(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{
		Type:      "portfolio.created",
		Aggregate: AggregatePortfolio,
		ValidatePayload: func(raw json.RawMessage) error {
			if string(raw) != `{"a":1,"b":2}` {
				return errors.New("payload not canonical")
			}
			return nil
		},
	}); err != nil {
		t.Fatalf("register type: %v", err)
	}

	evt := testEvent("portfolio.created")
	evt.PayloadJSON = []byte(`{"b":2,"a":1}`)
	if _, err := registry.ValidateForAppend(evt); err != nil {
		t.Fatalf("validate event: %v", err)
	}
}

func TestRegistryValidateForAppend_Addressing(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{Type: "portfolio.created", Aggregate: AggregatePortfolio}); err != nil {
		t.Fatalf("register type: %v", err)
	}

	evt := testEvent("portfolio.created")
	evt.StreamID = " "
	if _, err := registry.ValidateForAppend(evt); !errors.Is(err, ErrStreamIDRequired) {
		t.Fatalf("expected ErrStreamIDRequired, got %v", err)
	}
	evt = testEvent("portfolio.created")
	evt.EntityID = ""
	if _, err := registry.ValidateForAppend(evt); !errors.Is(err, ErrEntityIDRequired) {
		t.Fatalf("expected ErrEntityIDRequired, got %v", err)
	}
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	def := Definition{Type: "portfolio.closed", Aggregate: AggregatePortfolio}
	if err := registry.Register(def); err != nil {
		t.Fatalf("register type: %v", err)
	}
	if err := registry.Register(def); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := registry.Register(Definition{Aggregate: AggregatePortfolio}); !errors.Is(err, ErrTypeRequired) {
		t.Fatalf("expected ErrTypeRequired, got %v", err)
	}
	if got := registry.ListDefinitions(); len(got) != 1 {
		t.Fatalf("definitions length = %d, want 1", len(got))
	}
}

type testPayload struct {
	Name string `json:"name"`
}

func (testPayload) EventType() Type { return "portfolio.created" }

func TestNewAndDecode(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.FixedZone("x", 3600))
	evt, err := New(AggregatePortfolio, "p1", testPayload{Name: "Core"}, now)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if evt.StreamID != "portfolio-p1" {
		t.Fatalf("stream id = %q", evt.StreamID)
	}
	if evt.Type != "portfolio.created" {
		t.Fatalf("type = %q", evt.Type)
	}
	if !evt.Timestamp.Equal(now.Truncate(time.Millisecond)) || evt.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v", evt.Timestamp)
	}
	decoded, err := Decode[testPayload](evt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Name != "Core" {
		t.Fatalf("name = %q", decoded.Name)
	}
	if _, err := New(AggregatePortfolio, " ", testPayload{}, now); !errors.Is(err, ErrEntityIDRequired) {
		t.Fatalf("expected ErrEntityIDRequired, got %v", err)
	}
}
