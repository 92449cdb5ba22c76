package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
)

// ---------------------------------------------------------------------------
// Split editor: transient sub-state decomposing one transaction's amount into
// multiple category allocations. All amount arithmetic is decimal-exact and
// the remaining amount is maintained by delta, not by re-summing.
// ---------------------------------------------------------------------------

type splitField int

const (
	splitFieldNone splitField = iota
	splitFieldAmount
	splitFieldMemo
)

type splitAllocation struct {
	categoryID   string
	categoryName string
	amount       decimal.Decimal
	memo         string
}

type splitEditState struct {
	txID      string
	original  decimal.Decimal
	currency  string
	splits    []splitAllocation
	remaining decimal.Decimal
	cursor    int
	saving    bool
	editing   splitField
	input     textinput.Model
}

// newSplitEdit seeds the editor from the transaction's existing splits.
func newSplitEdit(tx repository.Transaction) *splitEditState {
	st := &splitEditState{
		txID:      tx.ID,
		original:  tx.Amount,
		currency:  tx.Currency,
		remaining: tx.Amount,
		input:     textinput.New(),
	}
	for _, sp := range tx.Splits {
		st.splits = append(st.splits, splitAllocation{
			categoryID:   sp.CategoryID,
			categoryName: sp.CategoryName,
			amount:       sp.Amount,
			memo:         sp.Memo,
		})
		st.remaining = st.remaining.Sub(sp.Amount)
	}
	if len(st.splits) == 0 {
		st.splits = []splitAllocation{{}, {}}
	}
	return st
}

func (s *splitEditState) addSplit() {
	s.splits = append(s.splits, splitAllocation{})
	s.cursor = len(s.splits) - 1
}

func (s *splitEditState) removeSplit(i int) {
	if i < 0 || i >= len(s.splits) {
		return
	}
	s.remaining = s.remaining.Add(s.splits[i].amount)
	s.splits = append(s.splits[:i], s.splits[i+1:]...)
	if s.cursor >= len(s.splits) && s.cursor > 0 {
		s.cursor--
	}
}

func (s *splitEditState) updateAmount(i int, v decimal.Decimal) {
	if i < 0 || i >= len(s.splits) {
		return
	}
	s.remaining = s.remaining.Sub(v.Sub(s.splits[i].amount))
	s.splits[i].amount = v
}

func (s *splitEditState) updateMemo(i int, memo string) {
	if i < 0 || i >= len(s.splits) {
		return
	}
	s.splits[i].memo = memo
}

func (s *splitEditState) setCategory(i int, id, name string) {
	if i < 0 || i >= len(s.splits) {
		return
	}
	s.splits[i].categoryID = id
	s.splits[i].categoryName = name
}

func (s *splitEditState) balanced() bool {
	return s.remaining.IsZero()
}

// openSplitEdit opens the editor for the transaction under the cursor.
func (a *App) openSplitEdit() (tea.Model, tea.Cmd) {
	tx, ok := a.currentTx()
	if !ok {
		return a, nil
	}
	if tx.Status == repository.TxImported {
		return a, toastCmd(toastWarning, "Already imported, nothing to split")
	}
	a.splitEdit = newSplitEdit(tx)
	return a, nil
}

// saveSplits dispatches the authoritative call. The minimum-allocations check
// is the only local one; everything else is the service's call, and the editor
// survives a rejection so the user can fix it up.
func (a *App) saveSplits() (tea.Model, tea.Cmd) {
	st := a.splitEdit
	if st == nil {
		return a, nil
	}
	if len(st.splits) < 2 {
		return a, toastCmd(toastWarning, "A split needs at least two allocations")
	}
	ok, warn := a.beginRowOp(st.txID, opSplit)
	if !ok {
		return a, warn
	}
	st.saving = true

	splits := make([]repository.Split, 0, len(st.splits))
	for _, sp := range st.splits {
		splits = append(splits, repository.Split{
			CategoryID:   sp.categoryID,
			CategoryName: sp.categoryName,
			Amount:       sp.amount,
			Memo:         sp.memo,
		})
	}
	txID := st.txID
	sessionID := a.sessionID()
	return a, func() tea.Msg {
		tx, err := a.svc.Split(a.ctx, txID, splits)
		return rowOpMsg{op: opSplit, sessionID: sessionID, txID: txID, tx: tx, err: err}
	}
}

// handleSplitResult closes the editor on success and keeps it (with the
// user's data intact) on failure so they can retry.
func (a *App) handleSplitResult(msg rowOpMsg) (tea.Model, tea.Cmd) {
	delete(a.pendingOps, msg.txID)
	if a.splitEdit != nil && a.splitEdit.txID == msg.txID {
		a.splitEdit.saving = false
	}
	if msg.err != nil {
		return a, toastCmd(toastError, "Saving split failed: "+msg.err.Error())
	}
	a.replaceRow(msg.tx)
	a.splitEdit = nil
	return a, toastCmd(toastSuccess, "Split saved")
}
