package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/position"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// PriceSource quotes current unit prices by symbol. Symbols it cannot
// price are left out of the result.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// StaticPrices is a fixed price table keyed by upper-case symbol.
type StaticPrices map[string]decimal.Decimal

// Prices returns the known prices of symbols.
func (p StaticPrices) Prices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if price, ok := p[strings.ToUpper(symbol)]; ok {
			out[symbol] = price
		}
	}
	return out, nil
}

// ParsePrices reads SYMBOL=PRICE pairs.
func ParsePrices(pairs []string) (StaticPrices, error) {
	out := make(StaticPrices, len(pairs))
	for _, pair := range pairs {
		symbol, raw, ok := strings.Cut(pair, "=")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if !ok || symbol == "" {
			return nil, fmt.Errorf("price %q: want SYMBOL=PRICE", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair, err)
		}
		out[symbol] = price
	}
	return out, nil
}

// Positions replays the active transactions of a portfolio through the FIFO
// position engine and values them at prices. prices may be nil.
//
// The transaction read model may briefly hold a sale without the purchase
// that covers it while the projection is catching up. With WithProgress set,
// such a shortfall is reported as ErrNotCaughtUp (still matching the
// *position.InsufficientHoldingsError) so callers can retry.
func (s *Service) Positions(ctx context.Context, portfolioID string, prices PriceSource) ([]position.Position, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return nil, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio id is required")
	}
	records, err := s.store.ListTransactions(ctx, storage.TransactionFilter{PortfolioID: portfolioID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	ledger, err := s.ledger(portfolioID, records)
	if err != nil {
		var short *position.InsufficientHoldingsError
		if errors.As(err, &short) && s.projectionBehind(ctx) {
			return nil, fmt.Errorf("positions of %s: %w: %w", portfolioID, ErrNotCaughtUp, err)
		}
		return nil, err
	}
	quotes := map[string]decimal.Decimal{}
	if prices != nil {
		if quotes, err = prices.Prices(ctx, ledger.Symbols()); err != nil {
			return nil, fmt.Errorf("quote prices: %w", err)
		}
	}
	return ledger.Positions(quotes), nil
}

func (s *Service) ledger(portfolioID string, records []storage.TransactionRecord) (position.Ledger, error) {
	key := cacheKey(portfolioID, records)
	if s.cache != nil {
		if ledger, ok := s.cache.Get(key); ok {
			return ledger, nil
		}
	}
	ledger, err := position.Build(positionInputs(records))
	if errors.Is(err, money.ErrCurrencyMismatch) {
		return position.Ledger{}, apperrors.Wrap(apperrors.CodeTransactionCurrencyMismatch, err.Error(), err)
	}
	if err != nil {
		return position.Ledger{}, err
	}
	if s.cache != nil {
		s.cache.Put(key, ledger)
		s.logger.Debug().Str("portfolio_id", portfolioID).Int("transactions", len(records)).Msg("position ledger cached")
	}
	return ledger, nil
}

func cacheKey(portfolioID string, records []storage.TransactionRecord) position.CacheKey {
	key := position.CacheKey{PortfolioID: portfolioID, Count: len(records)}
	for _, rec := range records {
		if rec.Position > key.MaxPosition {
			key.MaxPosition = rec.Position
		}
		key.Revision += rec.Version
	}
	return key
}

// positionInputs keeps the read-model order, which breaks same-date ties by
// commit position.
func positionInputs(records []storage.TransactionRecord) []position.Transaction {
	out := make([]position.Transaction, 0, len(records))
	for _, rec := range records {
		out = append(out, position.Transaction{
			ID:       rec.ID,
			Symbol:   rec.Symbol,
			Type:     rec.Type,
			Date:     rec.Date,
			Quantity: rec.Quantity,
			Price:    rec.Price.Amount,
			Fee:      rec.Fee.Amount,
			Amount:   rec.Amount.Amount,
			Currency: rec.Currency,
		})
	}
	return out
}

// projectionBehind reports whether any transaction stream has events the
// projection has not applied yet.
func (s *Service) projectionBehind(ctx context.Context) bool {
	if s.progress == nil {
		return false
	}
	streams, err := s.progress.ListStreams(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("projection progress unavailable")
		return false
	}
	cursors, err := s.progress.ListCursors(ctx, s.consumer)
	if err != nil {
		s.logger.Warn().Err(err).Msg("projection progress unavailable")
		return false
	}
	applied := make(map[string]uint64, len(cursors))
	for _, c := range cursors {
		applied[c.StreamID] = c.AppliedSeq
	}
	for _, info := range streams {
		if info.AggregateType == event.AggregateTransaction && applied[info.StreamID] < info.Version {
			return true
		}
	}
	return false
}
