package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

func (s *Store) PutPortfolio(ctx context.Context, rec storage.PortfolioRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := requireKey(rec.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[rec.ID] = rec
	return nil
}

func (s *Store) GetPortfolio(ctx context.Context, id string) (storage.PortfolioRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PortfolioRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.portfolios[id]
	if !ok {
		return storage.PortfolioRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListPortfolios(ctx context.Context) ([]storage.PortfolioRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.PortfolioRecord, 0, len(s.portfolios))
	for _, rec := range s.portfolios {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeletePortfolio(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portfolios, id)
	return nil
}

func (s *Store) PutInvestment(ctx context.Context, rec storage.InvestmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := requireKey(rec.ID, rec.PortfolioID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.investments[rec.ID] = rec
	return nil
}

func (s *Store) GetInvestment(ctx context.Context, id string) (storage.InvestmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.InvestmentRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.investments[id]
	if !ok {
		return storage.InvestmentRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) DeleteInvestment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.investments, id)
	return nil
}

func (s *Store) ListInvestments(ctx context.Context, portfolioID string) ([]storage.InvestmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.InvestmentRecord
	for _, rec := range s.investments {
		if rec.PortfolioID == portfolioID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) PutPosition(ctx context.Context, rec storage.PositionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := requireKey(rec.PortfolioID, rec.Symbol); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[[2]string{rec.PortfolioID, rec.Symbol}] = rec
	return nil
}

func (s *Store) DeletePosition(ctx context.Context, portfolioID, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, [2]string{portfolioID, symbol})
	return nil
}

func (s *Store) ListPositions(ctx context.Context, portfolioID string) ([]storage.PositionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.PositionRecord
	for key, rec := range s.positions {
		if key[0] == portfolioID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) PutTransaction(ctx context.Context, rec storage.TransactionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := requireKey(rec.ID, rec.PortfolioID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[rec.ID] = rec
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (storage.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransactionRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.transactions[id]
	if !ok {
		return storage.TransactionRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]storage.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.TransactionRecord
	for _, rec := range s.transactions {
		if filter.PortfolioID != "" && rec.PortfolioID != filter.PortfolioID {
			continue
		}
		if filter.InvestmentID != "" && rec.InvestmentID != filter.InvestmentID {
			continue
		}
		if filter.Symbol != "" && !strings.EqualFold(rec.Symbol, filter.Symbol) {
			continue
		}
		if !filter.IncludeCancelled && rec.Status == transaction.StatusCancelled {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *Store) TruncateReadModels(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.portfolios)
	clear(s.investments)
	clear(s.positions)
	clear(s.transactions)
	return nil
}

var _ storage.Store = (*Store)(nil)
