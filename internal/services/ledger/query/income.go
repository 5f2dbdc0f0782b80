package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// Income totals the dividends and interest of one symbol.
type Income struct {
	Symbol    string
	Currency  string
	Dividends money.Money
	Interest  money.Money
	Fees      money.Money
	// Net is dividends plus interest minus fees.
	Net      money.Money
	Payments int
}

func (inc *Income) add(rec storage.TransactionRecord) error {
	var err error
	if rec.Type == transaction.TypeDividend {
		inc.Dividends, err = inc.Dividends.Add(rec.Amount)
	} else {
		inc.Interest, err = inc.Interest.Add(rec.Amount)
	}
	if err != nil {
		return err
	}
	if inc.Fees, err = inc.Fees.Add(rec.Fee); err != nil {
		return err
	}
	inc.Payments++
	return nil
}

func (inc *Income) total() error {
	gross, err := inc.Dividends.Add(inc.Interest)
	if err != nil {
		return err
	}
	inc.Net, err = gross.Sub(inc.Fees)
	return err
}

// IncomeSummary totals active income transactions per symbol, sorted by
// symbol. Payments of one symbol in different currencies fail with
// CodeTransactionCurrencyMismatch.
func (s *Service) IncomeSummary(ctx context.Context, portfolioID string) ([]Income, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return nil, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio id is required")
	}
	records, err := s.store.ListTransactions(ctx, storage.TransactionFilter{PortfolioID: portfolioID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	bySymbol := make(map[string]*Income)
	for _, rec := range records {
		if !rec.Type.Income() {
			continue
		}
		inc, ok := bySymbol[rec.Symbol]
		if !ok {
			zero := money.Zero(rec.Currency)
			inc = &Income{Symbol: rec.Symbol, Currency: zero.Currency, Dividends: zero, Interest: zero, Fees: zero}
			bySymbol[rec.Symbol] = inc
		}
		if err := inc.add(rec); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeTransactionCurrencyMismatch,
				fmt.Sprintf("income of %s: transaction %s: %v", rec.Symbol, rec.ID, err), err)
		}
	}
	out := make([]Income, 0, len(bySymbol))
	for _, inc := range bySymbol {
		if err := inc.total(); err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
