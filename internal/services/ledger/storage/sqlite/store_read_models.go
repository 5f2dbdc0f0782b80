package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// PutPortfolio upserts a portfolio row.
func (s *Store) PutPortfolio(ctx context.Context, rec storage.PortfolioRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("portfolio id is required")
	}
	return s.exec(ctx, "put portfolio",
		`INSERT INTO portfolios (id, name, description, currency, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   currency = excluded.currency,
		   status = excluded.status,
		   version = excluded.version,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Description, rec.Currency, string(rec.Status), int64(rec.Version),
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
}

const portfolioColumns = `id, name, description, currency, status, version, created_at, updated_at`

// GetPortfolio returns one portfolio row.
func (s *Store) GetPortfolio(ctx context.Context, id string) (storage.PortfolioRecord, error) {
	if err := s.check(ctx); err != nil {
		return storage.PortfolioRecord{}, err
	}
	rec, err := scanPortfolio(s.sqlDB.QueryRowContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PortfolioRecord{}, storage.ErrNotFound
		}
		return storage.PortfolioRecord{}, fmt.Errorf("get portfolio: %w", err)
	}
	return rec, nil
}

// ListPortfolios returns every portfolio ordered by id.
func (s *Store) ListPortfolios(ctx context.Context) ([]storage.PortfolioRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	defer rows.Close()
	var out []storage.PortfolioRecord
	for rows.Next() {
		rec, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("list portfolios: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPortfolio(row rowScanner) (storage.PortfolioRecord, error) {
	var (
		rec                  storage.PortfolioRecord
		status               string
		version              int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Currency, &status, &version, &createdAt, &updatedAt); err != nil {
		return storage.PortfolioRecord{}, err
	}
	rec.Status = portfolio.Status(status)
	rec.Version = uint64(version)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// DeletePortfolio removes a portfolio row if present.
func (s *Store) DeletePortfolio(ctx context.Context, id string) error {
	return s.exec(ctx, "delete portfolio", `DELETE FROM portfolios WHERE id = ?`, id)
}

// PutInvestment upserts an investment row.
func (s *Store) PutInvestment(ctx context.Context, rec storage.InvestmentRecord) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.PortfolioID) == "" {
		return fmt.Errorf("investment and portfolio ids are required")
	}
	return s.exec(ctx, "put investment",
		`INSERT INTO investments (id, portfolio_id, symbol, name, kind, currency, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   portfolio_id = excluded.portfolio_id,
		   symbol = excluded.symbol,
		   name = excluded.name,
		   kind = excluded.kind,
		   currency = excluded.currency,
		   version = excluded.version,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.PortfolioID, rec.Symbol, rec.Name, string(rec.Kind), rec.Currency, int64(rec.Version),
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
}

const investmentColumns = `id, portfolio_id, symbol, name, kind, currency, version, created_at, updated_at`

// GetInvestment returns one investment row.
func (s *Store) GetInvestment(ctx context.Context, id string) (storage.InvestmentRecord, error) {
	if err := s.check(ctx); err != nil {
		return storage.InvestmentRecord{}, err
	}
	rec, err := scanInvestment(s.sqlDB.QueryRowContext(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.InvestmentRecord{}, storage.ErrNotFound
		}
		return storage.InvestmentRecord{}, fmt.Errorf("get investment: %w", err)
	}
	return rec, nil
}

// DeleteInvestment removes an investment row if present.
func (s *Store) DeleteInvestment(ctx context.Context, id string) error {
	return s.exec(ctx, "delete investment", `DELETE FROM investments WHERE id = ?`, id)
}

// ListInvestments returns a portfolio's investments ordered by symbol.
func (s *Store) ListInvestments(ctx context.Context, portfolioID string) ([]storage.InvestmentRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	defer rows.Close()
	var out []storage.InvestmentRecord
	for rows.Next() {
		rec, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("list investments: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanInvestment(row rowScanner) (storage.InvestmentRecord, error) {
	var (
		rec                  storage.InvestmentRecord
		kind                 string
		version              int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.PortfolioID, &rec.Symbol, &rec.Name, &kind, &rec.Currency, &version, &createdAt, &updatedAt); err != nil {
		return storage.InvestmentRecord{}, err
	}
	rec.Kind = investment.Kind(kind)
	rec.Version = uint64(version)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

// PutPosition upserts the held quantity of a symbol.
func (s *Store) PutPosition(ctx context.Context, rec storage.PositionRecord) error {
	if strings.TrimSpace(rec.PortfolioID) == "" || strings.TrimSpace(rec.Symbol) == "" {
		return fmt.Errorf("portfolio id and symbol are required")
	}
	return s.exec(ctx, "put position",
		`INSERT INTO positions (portfolio_id, symbol, investment_id, quantity, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (portfolio_id, symbol) DO UPDATE SET
		   investment_id = excluded.investment_id,
		   quantity = excluded.quantity,
		   updated_at = excluded.updated_at`,
		rec.PortfolioID, rec.Symbol, rec.InvestmentID, rec.Quantity.String(), toMillis(rec.UpdatedAt),
	)
}

// DeletePosition removes a position row if present.
func (s *Store) DeletePosition(ctx context.Context, portfolioID, symbol string) error {
	return s.exec(ctx, "delete position", `DELETE FROM positions WHERE portfolio_id = ? AND symbol = ?`, portfolioID, symbol)
}

// ListPositions returns a portfolio's positions ordered by symbol.
func (s *Store) ListPositions(ctx context.Context, portfolioID string) ([]storage.PositionRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT portfolio_id, symbol, investment_id, quantity, updated_at
		   FROM positions WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()
	var out []storage.PositionRecord
	for rows.Next() {
		var (
			rec       storage.PositionRecord
			quantity  string
			updatedAt int64
		)
		if err := rows.Scan(&rec.PortfolioID, &rec.Symbol, &rec.InvestmentID, &quantity, &updatedAt); err != nil {
			return nil, fmt.Errorf("list positions: %w", err)
		}
		if rec.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("list positions: quantity %q: %w", quantity, err)
		}
		rec.UpdatedAt = fromMillis(updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutTransaction upserts a transaction row.
func (s *Store) PutTransaction(ctx context.Context, rec storage.TransactionRecord) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.PortfolioID) == "" {
		return fmt.Errorf("transaction and portfolio ids are required")
	}
	return s.exec(ctx, "put transaction",
		`INSERT INTO transactions (
		   id, portfolio_id, investment_id, symbol, type, date,
		   quantity, price, fee, amount, currency, notes,
		   status, cancel_reason, version, position, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   type = excluded.type,
		   date = excluded.date,
		   quantity = excluded.quantity,
		   price = excluded.price,
		   fee = excluded.fee,
		   amount = excluded.amount,
		   currency = excluded.currency,
		   notes = excluded.notes,
		   status = excluded.status,
		   cancel_reason = excluded.cancel_reason,
		   version = excluded.version,
		   position = excluded.position,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.PortfolioID, rec.InvestmentID, rec.Symbol, string(rec.Type), toMillis(rec.Date),
		rec.Quantity.String(), rec.Price.Amount.String(), rec.Fee.Amount.String(), rec.Amount.Amount.String(),
		rec.Currency, rec.Notes, string(rec.Status), rec.CancelReason, int64(rec.Version), int64(rec.Position),
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
}

const transactionColumns = `id, portfolio_id, investment_id, symbol, type, date,
	quantity, price, fee, amount, currency, notes,
	status, cancel_reason, version, position, created_at, updated_at`

// GetTransaction returns one transaction row.
func (s *Store) GetTransaction(ctx context.Context, id string) (storage.TransactionRecord, error) {
	if err := s.check(ctx); err != nil {
		return storage.TransactionRecord{}, err
	}
	rec, err := scanTransaction(s.sqlDB.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TransactionRecord{}, storage.ErrNotFound
		}
		return storage.TransactionRecord{}, fmt.Errorf("get transaction: %w", err)
	}
	return rec, nil
}

// ListTransactions returns matching rows ordered by date then commit position.
func (s *Store) ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]storage.TransactionRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if filter.PortfolioID != "" {
		where = append(where, "portfolio_id = ?")
		args = append(args, filter.PortfolioID)
	}
	if filter.InvestmentID != "" {
		where = append(where, "investment_id = ?")
		args = append(args, filter.InvestmentID)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ? COLLATE NOCASE")
		args = append(args, filter.Symbol)
	}
	if !filter.IncludeCancelled {
		where = append(where, "status <> ?")
		args = append(args, string(transaction.StatusCancelled))
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, position`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var out []storage.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (storage.TransactionRecord, error) {
	var (
		rec                          storage.TransactionRecord
		txType, status               string
		date, createdAt, updatedAt   int64
		version, position            int64
		quantity, price, fee, amount string
	)
	if err := row.Scan(
		&rec.ID, &rec.PortfolioID, &rec.InvestmentID, &rec.Symbol, &txType, &date,
		&quantity, &price, &fee, &amount, &rec.Currency, &rec.Notes,
		&status, &rec.CancelReason, &version, &position, &createdAt, &updatedAt,
	); err != nil {
		return storage.TransactionRecord{}, err
	}
	var err error
	if rec.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return storage.TransactionRecord{}, fmt.Errorf("quantity %q: %w", quantity, err)
	}
	if rec.Price, err = parseMoney(price, rec.Currency); err != nil {
		return storage.TransactionRecord{}, err
	}
	if rec.Fee, err = parseMoney(fee, rec.Currency); err != nil {
		return storage.TransactionRecord{}, err
	}
	if rec.Amount, err = parseMoney(amount, rec.Currency); err != nil {
		return storage.TransactionRecord{}, err
	}
	rec.Type = transaction.Type(txType)
	rec.Status = transaction.Status(status)
	rec.Date = fromMillis(date)
	rec.Version = uint64(version)
	rec.Position = uint64(position)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

func parseMoney(amount, currency string) (money.Money, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return money.Money{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	return money.Money{Amount: value, Currency: currency}, nil
}

// TruncateReadModels deletes every read model row in one transaction.
func (s *Store) TruncateReadModels(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"transactions", "positions", "investments", "portfolios"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ready()
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
