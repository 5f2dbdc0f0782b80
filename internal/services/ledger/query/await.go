package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// ErrNotCaughtUp reports a read model still behind the awaited version.
var ErrNotCaughtUp = errors.New("read model has not caught up")

// AwaitPortfolio polls the portfolio read model until it reaches minVersion
// or maxWait elapses. Callers use it to read their own writes.
func (s *Service) AwaitPortfolio(ctx context.Context, portfolioID string, minVersion uint64, maxWait time.Duration) (storage.PortfolioRecord, error) {
	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = 10 * time.Millisecond
	poll.MaxInterval = 250 * time.Millisecond

	rec, err := backoff.Retry(ctx, func() (storage.PortfolioRecord, error) {
		rec, err := s.store.GetPortfolio(ctx, portfolioID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return storage.PortfolioRecord{}, ErrNotCaughtUp
		case err != nil:
			return storage.PortfolioRecord{}, backoff.Permanent(err)
		case rec.Version < minVersion:
			return storage.PortfolioRecord{}, ErrNotCaughtUp
		}
		return rec, nil
	}, backoff.WithBackOff(poll), backoff.WithMaxElapsedTime(maxWait))
	if err != nil {
		return storage.PortfolioRecord{}, fmt.Errorf("await portfolio %s at version %d: %w", portfolioID, minVersion, err)
	}
	return rec, nil
}
