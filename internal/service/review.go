package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
)

var (
	// ErrSplitTooSmall rejects split sets with fewer than two allocations.
	ErrSplitTooSmall = fmt.Errorf("a split needs at least two allocations")
	// ErrSplitUncategorized rejects allocations without a category; splits
	// drive the import, so every line must name where its amount goes.
	ErrSplitUncategorized = fmt.Errorf("every split allocation needs a category")
)

// Categorize assigns or clears the single category of one transaction and
// returns the canonical row. A skipped transaction stays skipped; a category
// id the budget does not know yields needs_attention. Category and splits are
// mutually exclusive import drivers, so any existing splits are cleared.
func (s *SyncService) Categorize(ctx context.Context, txID string, categoryID *string) (repository.Transaction, error) {
	tx, err := s.Transactions.Get(ctx, txID)
	if err != nil {
		return repository.Transaction{}, err
	}

	var catName *string
	status := repository.TxPending
	if categoryID != nil {
		status = repository.TxManualCategorized
		if name, ok := s.categoryName(*categoryID); ok {
			catName = &name
		} else {
			status = repository.TxNeedsAttention
		}
	}
	if tx.Status == repository.TxSkipped {
		status = repository.TxSkipped
	}

	if len(tx.Splits) > 0 {
		if err := s.Transactions.ClearSplits(ctx, txID, status); err != nil {
			return repository.Transaction{}, err
		}
	}
	if err := s.Transactions.UpdateReview(ctx, txID, status, categoryID, catName); err != nil {
		return repository.Transaction{}, err
	}
	return s.Transactions.Get(ctx, txID)
}

// Skip marks the transaction skipped. Skip is sticky: category changes do not
// undo it, only Unskip does.
func (s *SyncService) Skip(ctx context.Context, txID string) (repository.Transaction, error) {
	if err := s.Transactions.SetStatus(ctx, txID, repository.TxSkipped); err != nil {
		return repository.Transaction{}, err
	}
	return s.Transactions.Get(ctx, txID)
}

// Unskip restores the transaction to a status derived from what it still
// carries; a previously assigned category is kept, never re-derived.
func (s *SyncService) Unskip(ctx context.Context, txID string) (repository.Transaction, error) {
	tx, err := s.Transactions.Get(ctx, txID)
	if err != nil {
		return repository.Transaction{}, err
	}
	status := repository.TxPending
	if tx.CategoryID != nil || len(tx.Splits) > 0 {
		status = repository.TxManualCategorized
	}
	if err := s.Transactions.SetStatus(ctx, txID, status); err != nil {
		return repository.Transaction{}, err
	}
	return s.Transactions.Get(ctx, txID)
}

// Split replaces the transaction's allocation set. The single category is
// cleared because the splits drive the import from then on.
func (s *SyncService) Split(ctx context.Context, txID string, splits []repository.Split) (repository.Transaction, error) {
	if len(splits) < 2 {
		return repository.Transaction{}, ErrSplitTooSmall
	}
	for _, sp := range splits {
		if sp.CategoryID == "" {
			return repository.Transaction{}, ErrSplitUncategorized
		}
	}
	tx, err := s.Transactions.Get(ctx, txID)
	if err != nil {
		return repository.Transaction{}, err
	}
	status := repository.TxManualCategorized
	if tx.Status == repository.TxSkipped {
		status = repository.TxSkipped
	}
	for i := range splits {
		if splits[i].CategoryName == "" {
			if name, ok := s.categoryName(splits[i].CategoryID); ok {
				splits[i].CategoryName = name
			}
		}
	}
	if err := s.Transactions.ReplaceSplits(ctx, txID, status, splits); err != nil {
		return repository.Transaction{}, err
	}
	return s.Transactions.Get(ctx, txID)
}

// ClearSplit removes all allocations.
func (s *SyncService) ClearSplit(ctx context.Context, txID string) (repository.Transaction, error) {
	tx, err := s.Transactions.Get(ctx, txID)
	if err != nil {
		return repository.Transaction{}, err
	}
	status := repository.TxPending
	if tx.Status == repository.TxSkipped {
		status = repository.TxSkipped
	}
	if err := s.Transactions.ClearSplits(ctx, txID, status); err != nil {
		return repository.Transaction{}, err
	}
	return s.Transactions.Get(ctx, txID)
}

// BulkCategorize applies one category to many transactions, used by the rule
// fan-out. Skipped rows keep their skip.
func (s *SyncService) BulkCategorize(ctx context.Context, txIDs []string, categoryID string) ([]repository.Transaction, error) {
	var catName *string
	status := repository.TxAutoCategorized
	if name, ok := s.categoryName(categoryID); ok {
		catName = &name
	} else {
		status = repository.TxNeedsAttention
	}

	out := make([]repository.Transaction, 0, len(txIDs))
	for _, id := range txIDs {
		tx, err := s.Transactions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		rowStatus := status
		if tx.Status == repository.TxSkipped {
			rowStatus = repository.TxSkipped
		}
		if err := s.Transactions.UpdateReview(ctx, id, rowStatus, &categoryID, catName); err != nil {
			return nil, err
		}
		updated, err := s.Transactions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// RuleCreateRequest is the inline rule form payload.
type RuleCreateRequest struct {
	Name          string
	Pattern       string
	PatternType   string
	TargetField   string
	CategoryID    string
	PayeeOverride string
}

// CreateRule persists a rule for future fetches.
func (s *SyncService) CreateRule(ctx context.Context, req RuleCreateRequest) (repository.Rule, error) {
	if req.Pattern == "" {
		return repository.Rule{}, fmt.Errorf("rule pattern must not be blank")
	}
	rule := repository.Rule{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Pattern:     req.Pattern,
		PatternType: req.PatternType,
		TargetField: req.TargetField,
		CategoryID:  req.CategoryID,
	}
	if req.PayeeOverride != "" {
		override := req.PayeeOverride
		rule.PayeeOverride = &override
	}
	if err := s.Rules.Add(ctx, rule); err != nil {
		return repository.Rule{}, err
	}
	s.Log.WithFields(logrus.Fields{"rule": rule.ID, "pattern": rule.Pattern}).Info("rule created")
	return rule, nil
}
