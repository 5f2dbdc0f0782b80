package engine

import (
	"errors"

	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// ErrStoreRequired indicates a missing event store.
var ErrStoreRequired = errors.New("event store is required")

// IsRetryable reports whether err is a concurrency conflict the caller can
// resolve by re-issuing the command against fresh state. The engine itself
// never retries.
func IsRetryable(err error) bool {
	return storage.IsConflict(err)
}
