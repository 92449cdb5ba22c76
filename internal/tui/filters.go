package tui

import (
	"github.com/rommsen/budgetbuddy/internal/database/repository"
)

// ---------------------------------------------------------------------------
// Filter/view projection: derived, never mutating.
// ---------------------------------------------------------------------------

type viewFilter int

const (
	filterAll viewFilter = iota
	filterPending
	filterCategorized
	filterNeedsAttention
	filterSkipped
	filterDuplicates
	filterCount
)

func (f viewFilter) String() string {
	switch f {
	case filterPending:
		return "pending"
	case filterCategorized:
		return "categorized"
	case filterNeedsAttention:
		return "needs attention"
	case filterSkipped:
		return "skipped"
	case filterDuplicates:
		return "duplicates"
	default:
		return "all"
	}
}

func (f viewFilter) accepts(tx repository.Transaction) bool {
	switch f {
	case filterPending:
		return tx.Status == repository.TxPending
	case filterCategorized:
		return tx.Status == repository.TxAutoCategorized || tx.Status == repository.TxManualCategorized
	case filterNeedsAttention:
		return tx.Status == repository.TxNeedsAttention
	case filterSkipped:
		return tx.Status == repository.TxSkipped
	case filterDuplicates:
		return tx.DuplicateStatus != repository.NotDuplicate
	default:
		return true
	}
}

func (a *App) visibleTransactions() []repository.Transaction {
	txs, ok := a.transactions.Get()
	if !ok {
		return nil
	}
	if a.filter == filterAll {
		return txs
	}
	var out []repository.Transaction
	for _, tx := range txs {
		if a.filter.accepts(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func (a *App) cycleFilter() {
	a.filter = (a.filter + 1) % filterCount
	a.clampCursor()
}

func (a *App) clampCursor() {
	n := len(a.visibleTransactions())
	if a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

type reviewCounts struct {
	total          int
	pending        int
	categorized    int
	needsAttention int
	skipped        int
	imported       int
	possibleDup    int
	confirmedDup   int
}

func (a *App) counts() reviewCounts {
	var c reviewCounts
	txs, ok := a.transactions.Get()
	if !ok {
		return c
	}
	c.total = len(txs)
	for _, tx := range txs {
		switch tx.Status {
		case repository.TxPending:
			c.pending++
		case repository.TxAutoCategorized, repository.TxManualCategorized:
			c.categorized++
		case repository.TxNeedsAttention:
			c.needsAttention++
		case repository.TxSkipped:
			c.skipped++
		case repository.TxImported:
			c.imported++
		}
		switch tx.DuplicateStatus {
		case repository.PossibleDuplicate:
			c.possibleDup++
		case repository.ConfirmedDuplicate:
			c.confirmedDup++
		}
	}
	return c
}
