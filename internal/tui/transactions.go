package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
)

// ---------------------------------------------------------------------------
// Reconciliation store: optimistic-update-then-reconcile row operations.
//
// Every mutation applies a local guess immediately, dispatches the
// authoritative call, and on success swaps in the server's canonical row. On
// failure the guess is discarded wholesale by reloading the list, so the
// model never stays diverged from server truth.
// ---------------------------------------------------------------------------

// beginRowOp registers the pending marker for a row, or refuses when another
// operation on the same row is still in flight.
func (a *App) beginRowOp(txID string, op rowOp) (ok bool, cmd tea.Cmd) {
	if prev, busy := a.pendingOps[txID]; busy {
		return false, toastCmd(toastWarning, "Hold on, a "+string(prev)+" for this transaction is still running")
	}
	a.pendingOps[txID] = op
	return true, nil
}

func (a *App) categorize(txID string, categoryID *string) (tea.Model, tea.Cmd) {
	ok, warn := a.beginRowOp(txID, opCategorize)
	if !ok {
		return a, warn
	}

	// Optimistic guess, mirroring the server's derivation.
	a.patchRow(txID, func(tx *repository.Transaction) {
		tx.CategoryID = categoryID
		tx.CategoryName = nil
		tx.Splits = nil
		if categoryID != nil {
			if name := a.categoryNameFor(*categoryID); name != "" {
				tx.CategoryName = &name
			}
		}
		if tx.Status != repository.TxSkipped {
			if categoryID != nil {
				tx.Status = repository.TxManualCategorized
			} else {
				tx.Status = repository.TxPending
			}
		}
	})
	if categoryID != nil {
		a.manualIDs[txID] = struct{}{}
	} else {
		delete(a.manualIDs, txID)
	}

	sessionID := a.sessionID()
	return a, func() tea.Msg {
		tx, err := a.svc.Categorize(a.ctx, txID, categoryID)
		return rowOpMsg{op: opCategorize, sessionID: sessionID, txID: txID, tx: tx, err: err}
	}
}

func (a *App) skip(txID string) (tea.Model, tea.Cmd) {
	ok, warn := a.beginRowOp(txID, opSkip)
	if !ok {
		return a, warn
	}
	a.patchRow(txID, func(tx *repository.Transaction) {
		tx.Status = repository.TxSkipped
	})
	sessionID := a.sessionID()
	return a, func() tea.Msg {
		tx, err := a.svc.Skip(a.ctx, txID)
		return rowOpMsg{op: opSkip, sessionID: sessionID, txID: txID, tx: tx, err: err}
	}
}

func (a *App) unskip(txID string) (tea.Model, tea.Cmd) {
	ok, warn := a.beginRowOp(txID, opUnskip)
	if !ok {
		return a, warn
	}
	a.patchRow(txID, func(tx *repository.Transaction) {
		if tx.CategoryID != nil || len(tx.Splits) > 0 {
			tx.Status = repository.TxManualCategorized
		} else {
			tx.Status = repository.TxPending
		}
	})
	sessionID := a.sessionID()
	return a, func() tea.Msg {
		tx, err := a.svc.Unskip(a.ctx, txID)
		return rowOpMsg{op: opUnskip, sessionID: sessionID, txID: txID, tx: tx, err: err}
	}
}

func (a *App) clearSplit(txID string) (tea.Model, tea.Cmd) {
	ok, warn := a.beginRowOp(txID, opClearSplit)
	if !ok {
		return a, warn
	}
	a.patchRow(txID, func(tx *repository.Transaction) {
		tx.Splits = nil
		if tx.Status != repository.TxSkipped {
			tx.Status = repository.TxPending
		}
	})
	sessionID := a.sessionID()
	return a, func() tea.Msg {
		tx, err := a.svc.ClearSplit(a.ctx, txID)
		return rowOpMsg{op: opClearSplit, sessionID: sessionID, txID: txID, tx: tx, err: err}
	}
}

// bulkCategorize is the rule fan-out target. No optimistic phase: the match
// set can be large and the rows were not individually touched by the user.
func (a *App) bulkCategorize(txIDs []string, categoryID string) tea.Cmd {
	sessionID := a.sessionID()
	return func() tea.Msg {
		txs, err := a.svc.BulkCategorize(a.ctx, txIDs, categoryID)
		return bulkCategorizedMsg{sessionID: sessionID, txs: txs, err: err}
	}
}

func (a *App) handleRowOp(msg rowOpMsg) (tea.Model, tea.Cmd) {
	if msg.sessionID != a.sessionID() {
		return a, nil // stale response after cancel, drop it
	}
	if msg.op == opSplit {
		// The split editor survives a failed save so the user can retry.
		return a.handleSplitResult(msg)
	}
	delete(a.pendingOps, msg.txID)
	if msg.err != nil {
		// Discard the optimistic guess by reloading ground truth.
		a.transactions = Loading[[]repository.Transaction]()
		return a, tea.Batch(
			toastCmd(toastError, "Could not "+string(msg.op)+": "+msg.err.Error()),
			a.loadTransactions(msg.sessionID),
		)
	}
	a.replaceRow(msg.tx)
	return a, nil
}

func (a *App) handleBulkCategorized(msg bulkCategorizedMsg) (tea.Model, tea.Cmd) {
	if msg.sessionID != a.sessionID() {
		return a, nil
	}
	if msg.err != nil {
		a.transactions = Loading[[]repository.Transaction]()
		return a, tea.Batch(
			toastCmd(toastError, "Applying rule failed: "+msg.err.Error()),
			a.loadTransactions(msg.sessionID),
		)
	}
	for _, tx := range msg.txs {
		a.replaceRow(tx)
	}
	return a, nil
}
