package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

// Import sends every eligible transaction of the session to YNAB. Eligible
// means not skipped, not already imported, not needs_attention, and carrying
// either a category or a split set. The result is partial-success shaped:
// created count plus the ids YNAB already knew.
func (s *SyncService) Import(ctx context.Context, sessionID string) (ynab.ImportResult, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return ynab.ImportResult{}, err
	}
	if sess.Status != repository.SessionReviewing {
		return ynab.ImportResult{}, fmt.Errorf("%w: expected %s, got %s", ErrInvalidState, repository.SessionReviewing, sess.Status)
	}
	if err := s.Sessions.UpdateStatus(ctx, sessionID, repository.SessionImporting, nil); err != nil {
		return ynab.ImportResult{}, err
	}

	txs, err := s.Transactions.ListBySession(ctx, sessionID)
	if err != nil {
		return ynab.ImportResult{}, err
	}
	var eligible []repository.Transaction
	skipped := 0
	for _, tx := range txs {
		switch tx.Status {
		case repository.TxSkipped:
			skipped++
		case repository.TxImported, repository.TxNeedsAttention:
		default:
			if tx.CategoryID != nil || len(tx.Splits) > 0 {
				eligible = append(eligible, tx)
			}
		}
	}

	result, err := s.Budget.ImportTransactions(ctx, ynab.ImportRequest{
		BudgetID:  s.BudgetID,
		AccountID: s.AccountID,
		Items:     importItems(eligible),
	})
	if err != nil {
		return ynab.ImportResult{}, s.fail(ctx, sessionID, fmt.Errorf("import: %w", err))
	}

	dup := map[string]bool{}
	for _, id := range result.DuplicateTransactionIDs {
		dup[id] = true
	}
	var created []repository.Transaction
	for _, tx := range eligible {
		if dup[tx.ID] {
			detail := "already present in YNAB"
			if err := s.Transactions.SetDuplicate(ctx, tx.ID, repository.ConfirmedDuplicate, &detail); err != nil {
				return ynab.ImportResult{}, err
			}
			continue
		}
		created = append(created, tx)
	}
	if err := s.recordImported(ctx, created, result.CreatedIDs); err != nil {
		return ynab.ImportResult{}, err
	}

	if err := s.Sessions.SetCounters(ctx, sessionID, len(txs), sess.ImportedCount+len(created), skipped); err != nil {
		return ynab.ImportResult{}, err
	}
	if err := s.Sessions.UpdateStatus(ctx, sessionID, repository.SessionCompleted, nil); err != nil {
		return ynab.ImportResult{}, err
	}
	s.Log.WithFields(logrus.Fields{
		"session":    sessionID,
		"created":    result.CreatedCount,
		"duplicates": len(result.DuplicateTransactionIDs),
	}).Info("import completed")
	return result, nil
}

// ForceImportDuplicates resubmits exactly the given transaction ids with
// bumped import ids so YNAB accepts them despite the earlier duplicate flag.
func (s *SyncService) ForceImportDuplicates(ctx context.Context, sessionID string, txIDs []string) (int, error) {
	var items []repository.Transaction
	for _, id := range txIDs {
		tx, err := s.Transactions.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		items = append(items, tx)
	}

	result, err := s.Budget.ForceImport(ctx, ynab.ImportRequest{
		BudgetID:  s.BudgetID,
		AccountID: s.AccountID,
		Items:     importItems(items),
	})
	if err != nil {
		return 0, err
	}
	count := result.CreatedCount
	if err := s.recordImported(ctx, items, result.CreatedIDs); err != nil {
		return 0, err
	}

	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if err := s.Sessions.SetCounters(ctx, sessionID, sess.TransactionCount, sess.ImportedCount+count, sess.SkippedCount); err != nil {
		return 0, err
	}
	s.Log.WithFields(logrus.Fields{"session": sessionID, "count": count}).Info("forced duplicate reimport")
	return count, nil
}

// recordImported writes the history rows that feed duplicate classification.
// ynabIDs keys our transaction ids to the ids YNAB assigned on creation.
func (s *SyncService) recordImported(ctx context.Context, txs []repository.Transaction, ynabIDs map[string]string) error {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
		rec := repository.ImportedRecord{
			ID:          uuid.NewString(),
			SourceHash:  sourceHash(tx.BankID, tx.BookingDate, tx.Amount.String(), tx.Currency),
			Payee:       tx.Payee,
			BookingDate: tx.BookingDate,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			YnabID:      ynabIDs[tx.ID],
		}
		if err := s.History.Record(ctx, rec); err != nil {
			return err
		}
	}
	return s.Transactions.MarkImported(ctx, ids)
}

func importItems(txs []repository.Transaction) []ynab.ImportItem {
	items := make([]ynab.ImportItem, 0, len(txs))
	for _, tx := range txs {
		item := ynab.ImportItem{
			TransactionID: tx.ID,
			BankID:        tx.BankID,
			Date:          tx.BookingDate,
			Amount:        tx.Amount,
			Payee:         tx.Payee,
			Memo:          tx.Memo,
		}
		if len(tx.Splits) > 0 {
			for _, sp := range tx.Splits {
				item.Splits = append(item.Splits, ynab.ImportSplit{
					CategoryID: sp.CategoryID,
					Amount:     sp.Amount,
					Memo:       sp.Memo,
				})
			}
		} else if tx.CategoryID != nil {
			item.CategoryID = *tx.CategoryID
		}
		items = append(items, item)
	}
	return items
}
