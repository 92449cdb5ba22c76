package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

// ---------------------------------------------------------------------------
// Session state machine: commands
// ---------------------------------------------------------------------------

func (a *App) loadCurrentSession() tea.Cmd {
	return func() tea.Msg {
		sess, err := a.svc.CurrentSession(a.ctx)
		return sessionLoadedMsg{session: sess, err: err}
	}
}

func (a *App) reloadSession(id string) tea.Cmd {
	return func() tea.Msg {
		sess, err := a.svc.Session(a.ctx, id)
		if err != nil {
			return sessionLoadedMsg{err: err}
		}
		return sessionLoadedMsg{session: &sess}
	}
}

func (a *App) loadCategories() tea.Cmd {
	return func() tea.Msg {
		cats, err := a.svc.Categories(a.ctx)
		return categoriesLoadedMsg{cats: cats, err: err}
	}
}

func (a *App) loadTransactions(sessionID string) tea.Cmd {
	return func() tea.Msg {
		txs, err := a.svc.SessionTransactions(a.ctx, sessionID)
		return transactionsLoadedMsg{sessionID: sessionID, txs: txs, err: err}
	}
}

// startSync requests a fresh session; bank auth is initiated server-side
// before the result comes back.
func (a *App) startSync() (tea.Model, tea.Cmd) {
	if sess, ok := a.session.Get(); ok && !sess.Status.Terminal() {
		return a, toastCmd(toastWarning, "A sync session is already running")
	}
	a.resetWorkingSet()
	a.session = Loading[repository.Session]()
	return a, func() tea.Msg {
		sess, err := a.svc.StartSync(a.ctx)
		return syncStartedMsg{session: sess, err: err}
	}
}

// confirmTan dispatches the TAN confirmation exactly once: while a call is in
// flight the token is set and further presses are no-ops.
func (a *App) confirmTan() (tea.Model, tea.Cmd) {
	if a.tanToken != "" {
		return a, nil
	}
	sess, ok := a.session.Get()
	if !ok || sess.Status != repository.SessionAwaitingTan {
		return a, toastCmd(toastWarning, "No TAN confirmation pending")
	}
	token := uuid.NewString()
	a.tanToken = token
	sessionID := sess.ID
	return a, func() tea.Msg {
		err := a.svc.ConfirmTan(a.ctx, sessionID)
		return tanConfirmedMsg{sessionID: sessionID, token: token, err: err}
	}
}

func (a *App) cancelSync() (tea.Model, tea.Cmd) {
	sess, ok := a.session.Get()
	if !ok {
		return a, nil
	}
	sessionID := sess.ID
	return a, func() tea.Msg {
		return cancelDoneMsg{err: a.svc.CancelSync(a.ctx, sessionID)}
	}
}

func (a *App) startImport() (tea.Model, tea.Cmd) {
	sess, ok := a.session.Get()
	if !ok || sess.Status != repository.SessionReviewing {
		return a, toastCmd(toastWarning, "Nothing to import yet")
	}
	sessionID := sess.ID
	a.patchSessionStatus(repository.SessionImporting)
	return a, func() tea.Msg {
		result, err := a.svc.Import(a.ctx, sessionID)
		return importDoneMsg{sessionID: sessionID, result: result, err: err}
	}
}

// forceImportDuplicates resubmits exactly the ids the last import flagged.
// Without a known list there is nothing trustworthy to resubmit.
func (a *App) forceImportDuplicates() (tea.Model, tea.Cmd) {
	if !a.duplicates.known {
		return a, toastCmd(toastWarning, "No duplicates reported by the last import")
	}
	if len(a.duplicates.ids) == 0 {
		return a, nil
	}
	sessionID := a.sessionID()
	ids := a.duplicates.ids
	a.duplicates = noDuplicatesKnown() // cleared on dispatch, independent of outcome
	return a, func() tea.Msg {
		count, err := a.svc.ForceImportDuplicates(a.ctx, sessionID, ids)
		return forceImportDoneMsg{sessionID: sessionID, count: count, err: err}
	}
}

// ---------------------------------------------------------------------------
// Session state machine: message handlers
// ---------------------------------------------------------------------------

func (a *App) handleSessionLoaded(msg sessionLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.session = Failure[repository.Session](msg.err.Error())
		return a, toastCmd(toastError, "Loading session failed: "+msg.err.Error())
	}
	if msg.session == nil {
		a.session = NotAsked[repository.Session]()
		return a, nil
	}
	a.session = Success(*msg.session)
	// A failed session is not toasted here. The operation that failed already
	// reported its error, and the view renders the persisted reason.
	switch msg.session.Status {
	case repository.SessionReviewing, repository.SessionImporting, repository.SessionCompleted:
		if a.transactions.IsNotAsked() {
			a.transactions = Loading[[]repository.Transaction]()
			return a, a.loadTransactions(msg.session.ID)
		}
	}
	return a, nil
}

func (a *App) handleSyncStarted(msg syncStartedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.session = Failure[repository.Session](msg.err.Error())
		return a, toastCmd(toastError, "Starting sync failed: "+msg.err.Error())
	}
	a.session = Success(msg.session)
	return a, toastCmd(toastInfo, "Approve the TAN push in your banking app, then confirm here")
}

func (a *App) handleTanConfirmed(msg tanConfirmedMsg) (tea.Model, tea.Cmd) {
	if msg.token == a.tanToken {
		a.tanToken = ""
	}
	if msg.sessionID != a.sessionID() {
		return a, nil // session was cancelled while the call was in flight
	}
	if msg.err != nil {
		// Reload from source of truth rather than assuming failed locally.
		return a, tea.Batch(
			toastCmd(toastError, "TAN confirmation failed: "+msg.err.Error()),
			a.reloadSession(msg.sessionID),
		)
	}
	a.transactions = Loading[[]repository.Transaction]()
	return a, tea.Batch(a.reloadSession(msg.sessionID), a.loadTransactions(msg.sessionID))
}

func (a *App) handleTransactionsLoaded(msg transactionsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.sessionID != a.sessionID() {
		return a, nil
	}
	if msg.err != nil {
		a.transactions = Failure[[]repository.Transaction](msg.err.Error())
		return a, toastCmd(toastError, "Loading transactions failed: "+msg.err.Error())
	}
	// A full reload supersedes any outstanding optimistic edits, including
	// the manual marks: a row that no longer carries a category loses the mark.
	a.pendingOps = map[string]rowOp{}
	categorized := map[string]struct{}{}
	for _, tx := range msg.txs {
		if tx.CategoryID != nil {
			categorized[tx.ID] = struct{}{}
		}
	}
	for id := range a.manualIDs {
		if _, ok := categorized[id]; !ok {
			delete(a.manualIDs, id)
		}
	}
	a.transactions = Success(msg.txs)
	a.clampCursor()
	return a, nil
}

func (a *App) handleCategoriesLoaded(msg categoriesLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.categories = Failure[[]ynab.Category](msg.err.Error())
		return a, toastCmd(toastError, "Loading categories failed: "+msg.err.Error())
	}
	a.categories = Success(msg.cats)
	return a, nil
}

func (a *App) handleImportDone(msg importDoneMsg) (tea.Model, tea.Cmd) {
	if msg.sessionID != a.sessionID() {
		return a, nil
	}
	if msg.err != nil {
		return a, tea.Batch(
			toastCmd(toastError, "Import failed: "+msg.err.Error()),
			a.reloadSession(msg.sessionID),
		)
	}
	a.transactions = Loading[[]repository.Transaction]()
	cmds := []tea.Cmd{a.reloadSession(msg.sessionID), a.loadTransactions(msg.sessionID)}
	if len(msg.result.DuplicateTransactionIDs) > 0 {
		a.duplicates = knownDuplicates(msg.result.DuplicateTransactionIDs)
		cmds = append(cmds, toastCmd(toastWarning, fmt.Sprintf(
			"%d imported, %d already exist in YNAB (press f to import them anyway)",
			msg.result.CreatedCount, len(msg.result.DuplicateTransactionIDs))))
	} else {
		a.duplicates = noDuplicatesKnown()
		cmds = append(cmds, toastCmd(toastSuccess, fmt.Sprintf("%d transactions imported", msg.result.CreatedCount)))
	}
	return a, tea.Batch(cmds...)
}

func (a *App) handleForceImportDone(msg forceImportDoneMsg) (tea.Model, tea.Cmd) {
	if msg.sessionID != a.sessionID() {
		return a, nil
	}
	if msg.err != nil {
		return a, tea.Batch(
			toastCmd(toastError, "Forced import failed: "+msg.err.Error()),
			a.loadTransactions(msg.sessionID),
		)
	}
	a.transactions = Loading[[]repository.Transaction]()
	return a, tea.Batch(
		toastCmd(toastSuccess, fmt.Sprintf("%d duplicates imported anyway", msg.count)),
		a.reloadSession(msg.sessionID),
		a.loadTransactions(msg.sessionID),
	)
}

func (a *App) handleCancelDone(msg cancelDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return a, toastCmd(toastError, "Cancelling failed: "+msg.err.Error())
	}
	a.session = NotAsked[repository.Session]()
	a.resetWorkingSet()
	return a, toastCmd(toastInfo, "Sync cancelled")
}

// resetWorkingSet clears every slice of state scoped to one session. Late
// responses from the old session no longer match and are dropped.
func (a *App) resetWorkingSet() {
	a.transactions = NotAsked[[]repository.Transaction]()
	a.pendingOps = map[string]rowOp{}
	a.manualIDs = map[string]struct{}{}
	a.duplicates = noDuplicatesKnown()
	a.splitEdit = nil
	a.ruleForm = nil
	a.picker = nil
	a.tanToken = ""
	a.cursor = 0
}

func (a *App) patchSessionStatus(status repository.SessionStatus) {
	sess, ok := a.session.Get()
	if !ok {
		return
	}
	sess.Status = status
	a.session = Success(sess)
}
