package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/folio/internal/services/ledger/consumer"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// ConsumerName is the cursor namespace of the projection runner.
const ConsumerName = "projection"

// ErrUnhandledType reports an event with no projection handler.
var ErrUnhandledType = errors.New("event type has no projection handler")

// Applier applies committed events to read models.
type Applier struct {
	Store storage.ReadModelStore
}

// Handle applies evt. Unknown types, undecodable payloads and updates of
// missing rows are permanent; anything else the store returns is transient.
func (a Applier) Handle(ctx context.Context, evt event.Event) error {
	if a.Store == nil {
		return errors.New("read model store is not configured")
	}
	h, ok := handlers[evt.Type]
	if !ok {
		return consumer.Permanent(fmt.Errorf("%w: %s", ErrUnhandledType, evt.Type))
	}
	if evt.EntityID == "" {
		return consumer.Permanent(event.ErrEntityIDRequired)
	}
	if err := h.apply(a, ctx, evt); err != nil {
		if errors.Is(err, event.ErrPayloadInvalid) || errors.Is(err, storage.ErrNotFound) {
			return consumer.Permanent(fmt.Errorf("apply %s: %w", evt.Type, err))
		}
		return fmt.Errorf("apply %s: %w", evt.Type, err)
	}
	return nil
}

var _ consumer.Handler = Applier{}
