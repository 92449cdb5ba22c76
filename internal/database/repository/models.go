package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a sync session.
type SessionStatus string

const (
	SessionAwaitingBankAuth SessionStatus = "awaiting_bank_auth"
	SessionAwaitingTan      SessionStatus = "awaiting_tan"
	SessionFetching         SessionStatus = "fetching_transactions"
	SessionReviewing        SessionStatus = "reviewing_transactions"
	SessionImporting        SessionStatus = "importing_to_ynab"
	SessionCompleted        SessionStatus = "completed"
	SessionFailed           SessionStatus = "failed"
)

// Terminal reports whether the session can no longer advance.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// TxStatus is the review state of one transaction within a session.
type TxStatus string

const (
	TxPending           TxStatus = "pending"
	TxAutoCategorized   TxStatus = "auto_categorized"
	TxManualCategorized TxStatus = "manual_categorized"
	TxNeedsAttention    TxStatus = "needs_attention"
	TxSkipped           TxStatus = "skipped"
	TxImported          TxStatus = "imported"
)

// DuplicateStatus classifies a transaction against prior imports. It is set
// server-side during fetch and import, never computed in the TUI.
type DuplicateStatus string

const (
	NotDuplicate       DuplicateStatus = "not_duplicate"
	PossibleDuplicate  DuplicateStatus = "possible_duplicate"
	ConfirmedDuplicate DuplicateStatus = "confirmed_duplicate"
)

// Session represents a sessions row.
type Session struct {
	ID               string
	Status           SessionStatus
	FailureReason    *string
	ChallengeRef     *string
	TransactionCount int
	ImportedCount    int
	SkippedCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction represents a session_transactions row plus its splits.
type Transaction struct {
	ID              string
	SessionID       string
	BankID          string
	Payee           string
	Memo            string
	BookingDate     time.Time
	Amount          decimal.Decimal
	Currency        string
	Status          TxStatus
	CategoryID      *string
	CategoryName    *string
	DuplicateStatus DuplicateStatus
	DuplicateDetail *string
	ExternalLink    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Splits          []Split
}

// Split represents one allocation of a split transaction.
type Split struct {
	ID            string
	TransactionID string
	CategoryID    string
	CategoryName  string
	Amount        decimal.Decimal
	Memo          string
	Position      int
}

// Rule represents a categorization rule row.
type Rule struct {
	ID            string
	Name          string
	Pattern       string
	PatternType   string
	TargetField   string
	CategoryID    string
	PayeeOverride *string
	CreatedAt     time.Time
}

// ImportedRecord is one prior import, kept for duplicate classification.
type ImportedRecord struct {
	ID          string
	SourceHash  string
	Payee       string
	BookingDate time.Time
	Amount      decimal.Decimal
	Currency    string
	YnabID      string
	ImportedAt  time.Time
}
