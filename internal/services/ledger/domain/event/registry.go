package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Definition registers one event type.
type Definition struct {
	Type      Type
	Aggregate AggregateType
	// ValidatePayload optionally checks the canonical payload.
	ValidatePayload func(json.RawMessage) error
}

// Registry holds the closed set of event types the ledger may append.
type Registry struct {
	mu          sync.RWMutex
	definitions map[Type]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a definition. Registering the same type twice is an error.
func (r *Registry) Register(def Definition) error {
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if def.Aggregate == "" {
		return fmt.Errorf("register %s: aggregate is required", def.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("register %s: already registered", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Definition returns the registered definition for t.
func (r *Registry) Definition(t Type) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[t]
	return def, ok
}

// ListDefinitions returns definitions sorted by type.
func (r *Registry) ListDefinitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// ValidateForAppend checks addressing and payload and returns the event with
// a canonical payload encoding.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if strings.TrimSpace(evt.StreamID) == "" {
		return Event{}, ErrStreamIDRequired
	}
	if strings.TrimSpace(evt.EntityID) == "" {
		return Event{}, ErrEntityIDRequired
	}
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.Definition(evt.Type)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	if def.Aggregate != evt.AggregateType {
		return Event{}, fmt.Errorf("%w: %s on %s", ErrAggregateMismatch, evt.Type, evt.AggregateType)
	}
	canonical, err := canonicalJSON(evt.PayloadJSON)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(canonical); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
		}
	}
	evt.PayloadJSON = canonical
	return evt, nil
}

// canonicalJSON re-encodes raw with sorted object keys. Numbers keep their
// literal text.
func canonicalJSON(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, ok := value.(map[string]any); !ok {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return json.Marshal(value)
}
