package ynab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized = errors.New("ynab: unauthorized")
	ErrNotFound     = errors.New("ynab: resource not found")
)

// RateLimitError carries the Retry-After hint from a 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ynab: rate limited, retry after %s", e.RetryAfter)
}

// ImportSplit is one allocation of a split import item.
type ImportSplit struct {
	CategoryID string
	Amount     decimal.Decimal
	Memo       string
}

// ImportItem is one transaction to create in YNAB. TransactionID is our id;
// it keys the duplicate report back to the review set.
type ImportItem struct {
	TransactionID string
	BankID        string
	Date          time.Time
	Amount        decimal.Decimal
	Payee         string
	Memo          string
	CategoryID    string
	Splits        []ImportSplit
}

// ImportRequest is a batch create against one budget account.
type ImportRequest struct {
	BudgetID  string
	AccountID string
	Items     []ImportItem
}

// ImportResult is the partial-success shape of an import: what was created,
// keyed back to our transaction ids, and which transactions YNAB already knew.
type ImportResult struct {
	CreatedCount            int
	CreatedIDs              map[string]string // our transaction id → YNAB transaction id
	DuplicateTransactionIDs []string
}

// Client is the budgeting-system surface the sync service consumes.
// ForceImport resubmits with bumped import ids so YNAB accepts rows it had
// flagged duplicate.
type Client interface {
	ListCategories(ctx context.Context, budgetID string) ([]Category, error)
	ImportTransactions(ctx context.Context, req ImportRequest) (ImportResult, error)
	ForceImport(ctx context.Context, req ImportRequest) (ImportResult, error)
}

// Milliunits converts a decimal amount to the YNAB wire unit.
func Milliunits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(1000)).IntPart()
}

// ImportID derives the stable YNAB import id for a bank transaction.
// occurrence > 1 marks a deliberate reimport of a flagged duplicate.
func ImportID(bankID string, occurrence int) string {
	if occurrence <= 1 {
		return "BB:" + bankID
	}
	return fmt.Sprintf("BB:%s:%d", bankID, occurrence)
}
