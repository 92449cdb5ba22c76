// Package banking talks to the Comdirect REST API: OAuth login, the push-TAN
// session challenge, and the account transaction feed.
package banking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors the sync service maps onto session failures.
var (
	ErrAuthFailed     = errors.New("bank authentication failed")
	ErrTanTimeout     = errors.New("TAN confirmation timed out")
	ErrTanNotApproved = errors.New("TAN challenge not approved")
	ErrSessionExpired = errors.New("bank session expired")
)

// Transaction is one bank-side booking. Immutable once fetched.
type Transaction struct {
	ID          string
	Payee       string
	Memo        string
	BookingDate time.Time
	Amount      decimal.Decimal
	Currency    string
	DeepLink    string
}

// ChallengeRef identifies an outstanding push-TAN challenge.
type ChallengeRef struct {
	ID   string
	Type string
}

// Client is the surface the sync service consumes. StartAuth performs the
// OAuth login and triggers the push-TAN challenge; ConfirmTan blocks until the
// user approved it on their device (or the bank reports a timeout).
type Client interface {
	StartAuth(ctx context.Context, sessionID string) (ChallengeRef, error)
	ConfirmTan(ctx context.Context, sessionID string) error
	FetchTransactions(ctx context.Context, sessionID string) ([]Transaction, error)
}
