// Package service holds the authoritative sync semantics. Every mutation the
// TUI performs round-trips through here and gets the canonical row back; the
// TUI never computes persisted state itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rommsen/budgetbuddy/internal/banking"
	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/rules"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

// ErrInvalidState is returned when an operation does not fit the session's
// current status.
var ErrInvalidState = errors.New("invalid session state")

// SyncService orchestrates one bank-to-budget sync session end to end.
type SyncService struct {
	Sessions     *repository.SessionRepo
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
	History      *repository.HistoryRepo
	Bank         banking.Client
	Budget       ynab.Client
	BudgetID     string
	AccountID    string
	Log          logrus.FieldLogger

	catMu    sync.Mutex
	catNames map[string]string
}

// CurrentSession returns the active (non-terminal) session, or nil.
func (s *SyncService) CurrentSession(ctx context.Context) (*repository.Session, error) {
	sess, err := s.Sessions.Current(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Session reloads one session from the store.
func (s *SyncService) Session(ctx context.Context, id string) (repository.Session, error) {
	return s.Sessions.Get(ctx, id)
}

// StartSync creates a session and immediately initiates bank auth. On success
// the session sits in awaiting_tan with the push challenge outstanding.
func (s *SyncService) StartSync(ctx context.Context) (repository.Session, error) {
	sess := repository.Session{ID: uuid.NewString(), Status: repository.SessionAwaitingBankAuth}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return repository.Session{}, err
	}
	s.Log.WithField("session", sess.ID).Info("sync session started")

	ref, err := s.Bank.StartAuth(ctx, sess.ID)
	if err != nil {
		return repository.Session{}, s.fail(ctx, sess.ID, fmt.Errorf("bank auth: %w", err))
	}
	if err := s.Sessions.SetChallengeRef(ctx, sess.ID, ref.ID); err != nil {
		return repository.Session{}, err
	}
	if err := s.Sessions.UpdateStatus(ctx, sess.ID, repository.SessionAwaitingTan, nil); err != nil {
		return repository.Session{}, err
	}
	return s.Sessions.Get(ctx, sess.ID)
}

// ConfirmTan waits for the user's TAN approval, then fetches the transaction
// set, applies stored rules and duplicate classification, and moves the
// session to reviewing. A TAN timeout fails the session like any other error.
func (s *SyncService) ConfirmTan(ctx context.Context, sessionID string) error {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != repository.SessionAwaitingTan {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidState, repository.SessionAwaitingTan, sess.Status)
	}

	if err := s.Bank.ConfirmTan(ctx, sessionID); err != nil {
		return s.fail(ctx, sessionID, fmt.Errorf("TAN confirmation: %w", err))
	}
	if err := s.Sessions.UpdateStatus(ctx, sessionID, repository.SessionFetching, nil); err != nil {
		return err
	}

	if err := s.fetchAndStore(ctx, sessionID); err != nil {
		return s.fail(ctx, sessionID, fmt.Errorf("transaction fetch: %w", err))
	}
	return s.Sessions.UpdateStatus(ctx, sessionID, repository.SessionReviewing, nil)
}

// SessionTransactions returns the working set for review.
func (s *SyncService) SessionTransactions(ctx context.Context, sessionID string) ([]repository.Transaction, error) {
	return s.Transactions.ListBySession(ctx, sessionID)
}

// CancelSync discards the session and its transactions unconditionally.
func (s *SyncService) CancelSync(ctx context.Context, sessionID string) error {
	s.Log.WithField("session", sessionID).Info("sync session cancelled")
	return s.Sessions.Delete(ctx, sessionID)
}

func (s *SyncService) fetchAndStore(ctx context.Context, sessionID string) error {
	bankTxs, err := s.Bank.FetchTransactions(ctx, sessionID)
	if err != nil {
		return err
	}
	storedRules, err := s.Rules.List(ctx)
	if err != nil {
		return err
	}

	txs := make([]repository.Transaction, 0, len(bankTxs))
	skipped := 0
	for _, bt := range bankTxs {
		tx := repository.Transaction{
			ID:              uuid.NewString(),
			SessionID:       sessionID,
			BankID:          bt.ID,
			Payee:           bt.Payee,
			Memo:            bt.Memo,
			BookingDate:     bt.BookingDate,
			Amount:          bt.Amount,
			Currency:        bt.Currency,
			Status:          repository.TxPending,
			DuplicateStatus: repository.NotDuplicate,
			ExternalLink:    bt.DeepLink,
		}
		s.applyRules(tx.Payee, tx.Memo, storedRules, &tx)
		if err := s.classifyDuplicate(ctx, &tx); err != nil {
			return err
		}
		txs = append(txs, tx)
	}
	if err := s.Transactions.BulkInsert(ctx, txs); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"session": sessionID, "count": len(txs)}).Info("transactions fetched")
	return s.Sessions.SetCounters(ctx, sessionID, len(txs), 0, skipped)
}

// applyRules auto-categorizes with the first matching stored rule.
func (s *SyncService) applyRules(payee, memo string, storedRules []repository.Rule, tx *repository.Transaction) {
	for _, r := range storedRules {
		match := rules.Match(rules.Rule{
			Pattern:     r.Pattern,
			PatternType: rules.PatternType(r.PatternType),
			TargetField: rules.TargetField(r.TargetField),
			CategoryID:  r.CategoryID,
		}, rules.Candidate{Payee: payee, Memo: memo})
		if !match {
			continue
		}
		catID := r.CategoryID
		tx.CategoryID = &catID
		if name, ok := s.categoryName(catID); ok {
			tx.CategoryName = &name
		}
		tx.Status = repository.TxAutoCategorized
		if r.PayeeOverride != nil && *r.PayeeOverride != "" {
			tx.Payee = *r.PayeeOverride
		}
		return
	}
}

// fail persists the failure reason and returns the original error.
func (s *SyncService) fail(ctx context.Context, sessionID string, cause error) error {
	reason := cause.Error()
	s.Log.WithField("session", sessionID).WithError(cause).Error("session failed")
	if err := s.Sessions.UpdateStatus(ctx, sessionID, repository.SessionFailed, &reason); err != nil {
		s.Log.WithError(err).Error("could not persist session failure")
	}
	return cause
}

// Categories lists budget categories, cached for the process lifetime.
func (s *SyncService) Categories(ctx context.Context) ([]ynab.Category, error) {
	cats, err := s.Budget.ListCategories(ctx, s.BudgetID)
	if err != nil {
		return nil, err
	}
	s.catMu.Lock()
	s.catNames = make(map[string]string, len(cats))
	for _, c := range cats {
		s.catNames[c.ID] = c.Name
	}
	s.catMu.Unlock()
	return cats, nil
}

func (s *SyncService) categoryName(id string) (string, bool) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	name, ok := s.catNames[id]
	return name, ok
}
