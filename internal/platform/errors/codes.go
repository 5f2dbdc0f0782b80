// Package errors provides structured domain errors with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Portfolio errors
	CodePortfolioIDRequired      Code = "PORTFOLIO_ID_REQUIRED"
	CodePortfolioNameEmpty       Code = "PORTFOLIO_NAME_EMPTY"
	CodePortfolioInvalidCurrency Code = "PORTFOLIO_INVALID_CURRENCY"
	CodePortfolioAlreadyExists   Code = "PORTFOLIO_ALREADY_EXISTS"
	CodePortfolioClosed          Code = "PORTFOLIO_CLOSED"

	// Investment errors
	CodeInvestmentIDRequired        Code = "INVESTMENT_ID_REQUIRED"
	CodeInvestmentSymbolEmpty       Code = "INVESTMENT_SYMBOL_EMPTY"
	CodeInvestmentNameEmpty         Code = "INVESTMENT_NAME_EMPTY"
	CodeInvestmentInvalidType       Code = "INVESTMENT_INVALID_TYPE"
	CodeInvestmentInvalidCurrency   Code = "INVESTMENT_INVALID_CURRENCY"
	CodeInvestmentAlreadyExists     Code = "INVESTMENT_ALREADY_EXISTS"
	CodeInvestmentRemoved           Code = "INVESTMENT_REMOVED"
	CodeInvestmentHoldingsRemaining Code = "INVESTMENT_HOLDINGS_REMAINING"

	// Transaction errors
	CodeTransactionIDRequired          Code = "TRANSACTION_ID_REQUIRED"
	CodeTransactionInvalidType         Code = "TRANSACTION_INVALID_TYPE"
	CodeTransactionInvalidQuantity     Code = "TRANSACTION_INVALID_QUANTITY"
	CodeTransactionInvalidPrice        Code = "TRANSACTION_INVALID_PRICE"
	CodeTransactionInvalidAmount       Code = "TRANSACTION_INVALID_AMOUNT"
	CodeTransactionCurrencyMismatch    Code = "TRANSACTION_CURRENCY_MISMATCH"
	CodeTransactionDateRequired        Code = "TRANSACTION_DATE_REQUIRED"
	CodeTransactionFutureDate          Code = "TRANSACTION_FUTURE_DATE"
	CodeTransactionBeforePurchase      Code = "TRANSACTION_BEFORE_PURCHASE"
	CodeTransactionInsufficientHolding Code = "TRANSACTION_INSUFFICIENT_HOLDINGS"
	CodeTransactionAlreadyExists       Code = "TRANSACTION_ALREADY_EXISTS"
	CodeTransactionCancelled           Code = "TRANSACTION_CANCELLED"
	CodeTransactionNoChanges           Code = "TRANSACTION_NO_CHANGES"

	// Storage errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
)
