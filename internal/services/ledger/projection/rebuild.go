package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/folio/internal/services/ledger/consumer"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// Rebuild truncates every read model, resets the projection cursors and
// replays every stream from seq 1 through runner. Transient failures are
// retried until they clear or maxWait elapses, in which case the rebuild
// fails with consumer.ErrUnsettled.
func Rebuild(ctx context.Context, store storage.ReadModelStore, runner *consumer.Runner, maxWait time.Duration) (consumer.Summary, error) {
	if runner.Name() != ConsumerName {
		return consumer.Summary{}, fmt.Errorf("rebuild needs the %q runner, got %q", ConsumerName, runner.Name())
	}
	if err := store.TruncateReadModels(ctx); err != nil {
		return consumer.Summary{}, fmt.Errorf("truncate read models: %w", err)
	}
	if err := runner.Reset(ctx); err != nil {
		return consumer.Summary{}, err
	}
	summary, err := runner.Settle(ctx, maxWait)
	if err != nil {
		return summary, fmt.Errorf("replay streams: %w", err)
	}
	return summary, nil
}

// NewRunner builds the projection runner over store.
func NewRunner(store storage.Store, opts consumer.Options) (*consumer.Runner, error) {
	return consumer.NewRunner(ConsumerName, store, Applier{Store: store}, opts)
}
