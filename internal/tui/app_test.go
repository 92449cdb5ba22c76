package tui

import (
	"context"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/service"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

// fakeService records calls and answers from preset fields. Tests drive the
// model's methods directly and deliver the resulting messages by hand, so
// everything stays on one goroutine.
type fakeService struct {
	calls []string

	current    *repository.Session
	sessions   map[string]repository.Session
	startSess  repository.Session
	startErr   error
	confirmErr error
	txs        []repository.Transaction
	txsErr     error
	cats       []ynab.Category

	rowResult repository.Transaction
	rowErr    error

	bulkResult []repository.Transaction
	bulkErr    error
	gotBulkIDs []string

	rule    repository.Rule
	ruleErr error
	gotRule service.RuleCreateRequest

	importResult ynab.ImportResult
	importErr    error
	forceCount   int
	forceErr     error
	gotForceIDs  []string

	gotSplits []repository.Split
}

func newFakeService() *fakeService {
	return &fakeService{sessions: map[string]repository.Session{}}
}

func (f *fakeService) count(method string) int {
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeService) CurrentSession(context.Context) (*repository.Session, error) {
	f.calls = append(f.calls, "CurrentSession")
	return f.current, nil
}

func (f *fakeService) Session(_ context.Context, id string) (repository.Session, error) {
	f.calls = append(f.calls, "Session")
	sess, ok := f.sessions[id]
	if !ok {
		return repository.Session{}, repository.ErrNotFound
	}
	return sess, nil
}

func (f *fakeService) StartSync(context.Context) (repository.Session, error) {
	f.calls = append(f.calls, "StartSync")
	return f.startSess, f.startErr
}

func (f *fakeService) ConfirmTan(context.Context, string) error {
	f.calls = append(f.calls, "ConfirmTan")
	return f.confirmErr
}

func (f *fakeService) SessionTransactions(context.Context, string) ([]repository.Transaction, error) {
	f.calls = append(f.calls, "SessionTransactions")
	return f.txs, f.txsErr
}

func (f *fakeService) CancelSync(context.Context, string) error {
	f.calls = append(f.calls, "CancelSync")
	return nil
}

func (f *fakeService) Categorize(_ context.Context, _ string, _ *string) (repository.Transaction, error) {
	f.calls = append(f.calls, "Categorize")
	return f.rowResult, f.rowErr
}

func (f *fakeService) Skip(context.Context, string) (repository.Transaction, error) {
	f.calls = append(f.calls, "Skip")
	return f.rowResult, f.rowErr
}

func (f *fakeService) Unskip(context.Context, string) (repository.Transaction, error) {
	f.calls = append(f.calls, "Unskip")
	return f.rowResult, f.rowErr
}

func (f *fakeService) Split(_ context.Context, _ string, splits []repository.Split) (repository.Transaction, error) {
	f.calls = append(f.calls, "Split")
	f.gotSplits = splits
	return f.rowResult, f.rowErr
}

func (f *fakeService) ClearSplit(context.Context, string) (repository.Transaction, error) {
	f.calls = append(f.calls, "ClearSplit")
	return f.rowResult, f.rowErr
}

func (f *fakeService) BulkCategorize(_ context.Context, txIDs []string, _ string) ([]repository.Transaction, error) {
	f.calls = append(f.calls, "BulkCategorize")
	f.gotBulkIDs = txIDs
	return f.bulkResult, f.bulkErr
}

func (f *fakeService) CreateRule(_ context.Context, req service.RuleCreateRequest) (repository.Rule, error) {
	f.calls = append(f.calls, "CreateRule")
	f.gotRule = req
	return f.rule, f.ruleErr
}

func (f *fakeService) Import(context.Context, string) (ynab.ImportResult, error) {
	f.calls = append(f.calls, "Import")
	return f.importResult, f.importErr
}

func (f *fakeService) ForceImportDuplicates(_ context.Context, _ string, txIDs []string) (int, error) {
	f.calls = append(f.calls, "ForceImportDuplicates")
	f.gotForceIDs = txIDs
	return f.forceCount, f.forceErr
}

func (f *fakeService) Categories(context.Context) ([]ynab.Category, error) {
	f.calls = append(f.calls, "Categories")
	return f.cats, nil
}

func newTestApp(f *fakeService) *App {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(context.Background(), f, log)
}

// runCmd executes a command tree and flattens the produced messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

// settle delivers a command's messages and every follow-up until quiet.
func settle(a *App, cmd tea.Cmd) {
	queue := runCmd(cmd)
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		_, next := a.Update(msg)
		queue = append(queue, runCmd(next)...)
	}
}

func lastToast(t *testing.T, a *App) toast {
	t.Helper()
	require.NotEmpty(t, a.toasts)
	return a.toasts[len(a.toasts)-1]
}

func reviewingSession(id string) repository.Session {
	return repository.Session{ID: id, Status: repository.SessionReviewing}
}

func pendingTx(id, payee, amount string) repository.Transaction {
	return repository.Transaction{
		ID:          id,
		SessionID:   "sess-1",
		BankID:      "bank-" + id,
		Payee:       payee,
		BookingDate: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Currency:    "EUR",
		Status:      repository.TxPending,
	}
}

func TestConfirmTanDispatchedExactlyOnce(t *testing.T) {
	f := newFakeService()
	a := newTestApp(f)
	a.session = Success(repository.Session{ID: "sess-1", Status: repository.SessionAwaitingTan})
	f.sessions["sess-1"] = reviewingSession("sess-1")

	_, first := a.confirmTan()
	require.NotNil(t, first)
	assert.NotEmpty(t, a.tanToken)

	// A second press while the call is in flight is a no-op.
	_, second := a.confirmTan()
	assert.Nil(t, second)

	settle(a, first)
	assert.Equal(t, 1, f.count("ConfirmTan"))
	assert.Empty(t, a.tanToken, "token cleared once the result arrived")
}

func TestConfirmTanWithoutPendingChallenge(t *testing.T) {
	f := newFakeService()
	a := newTestApp(f)
	a.session = Success(reviewingSession("sess-1"))

	_, cmd := a.confirmTan()
	settle(a, cmd)
	assert.Zero(t, f.count("ConfirmTan"))
	assert.Equal(t, toastWarning, lastToast(t, a).severity)
}

func TestConfirmTanFailureReloadsSession(t *testing.T) {
	f := newFakeService()
	f.confirmErr = assert.AnError
	f.sessions["sess-1"] = repository.Session{ID: "sess-1", Status: repository.SessionAwaitingTan}
	a := newTestApp(f)
	a.session = Success(f.sessions["sess-1"])

	_, cmd := a.confirmTan()
	settle(a, cmd)

	// The model reloads ground truth instead of assuming failure locally.
	assert.Equal(t, 1, f.count("Session"))
	sess, ok := a.session.Get()
	require.True(t, ok)
	assert.Equal(t, repository.SessionAwaitingTan, sess.Status)
	assert.Empty(t, a.tanToken)
}

func TestConfirmTanFailureToastedExactlyOnce(t *testing.T) {
	f := newFakeService()
	f.confirmErr = assert.AnError
	reason := "TAN confirmation: " + assert.AnError.Error()
	f.sessions["sess-1"] = repository.Session{ID: "sess-1", Status: repository.SessionFailed, FailureReason: &reason}
	a := newTestApp(f)
	a.session = Success(repository.Session{ID: "sess-1", Status: repository.SessionAwaitingTan})

	_, cmd := a.confirmTan()
	settle(a, cmd)

	sess, ok := a.session.Get()
	require.True(t, ok)
	assert.Equal(t, repository.SessionFailed, sess.Status)

	// The operation handler reports the error; the reload delivering the
	// failed session must not repeat it.
	errToasts := 0
	for _, ts := range a.toasts {
		if ts.severity == toastError {
			errToasts++
		}
	}
	assert.Equal(t, 1, errToasts)
}

func TestStaleTanResultDropped(t *testing.T) {
	f := newFakeService()
	a := newTestApp(f)
	a.session = Success(repository.Session{ID: "sess-2", Status: repository.SessionAwaitingTan})

	settle(a, func() tea.Msg {
		return tanConfirmedMsg{sessionID: "sess-old", token: "stale"}
	})
	assert.Zero(t, f.count("Session"))
	assert.Zero(t, f.count("SessionTransactions"))
}

func TestStartSyncRejectedWhileSessionActive(t *testing.T) {
	f := newFakeService()
	a := newTestApp(f)
	a.session = Success(reviewingSession("sess-1"))

	_, cmd := a.startSync()
	settle(a, cmd)
	assert.Zero(t, f.count("StartSync"))
	assert.Equal(t, toastWarning, lastToast(t, a).severity)
}

func TestStartSyncAfterTerminalSession(t *testing.T) {
	f := newFakeService()
	f.startSess = repository.Session{ID: "sess-2", Status: repository.SessionAwaitingTan}
	a := newTestApp(f)
	a.session = Success(repository.Session{ID: "sess-1", Status: repository.SessionCompleted})
	a.duplicates = knownDuplicates([]string{"t1"})

	_, cmd := a.startSync()
	settle(a, cmd)
	assert.Equal(t, 1, f.count("StartSync"))
	sess, ok := a.session.Get()
	require.True(t, ok)
	assert.Equal(t, "sess-2", sess.ID)
	assert.False(t, a.duplicates.known, "working set reset on restart")
}

func TestImportDoneReportsDuplicates(t *testing.T) {
	f := newFakeService()
	f.sessions["sess-1"] = repository.Session{ID: "sess-1", Status: repository.SessionCompleted}
	a := newTestApp(f)
	a.session = Success(reviewingSession("sess-1"))
	a.transactions = Success([]repository.Transaction{pendingTx("t1", "REWE", "-5.00")})

	settle(a, func() tea.Msg {
		return importDoneMsg{
			sessionID: "sess-1",
			result:    ynab.ImportResult{CreatedCount: 5, DuplicateTransactionIDs: []string{"t7", "t9"}},
		}
	})

	assert.True(t, a.duplicates.known)
	assert.Equal(t, []string{"t7", "t9"}, a.duplicates.ids)
	msg := lastToast(t, a)
	assert.Equal(t, toastWarning, msg.severity)
	assert.Contains(t, msg.text, "5 imported, 2 already exist in YNAB")
}

func TestForceImportSendsExactlyTheReportedIDs(t *testing.T) {
	f := newFakeService()
	f.forceCount = 2
	f.sessions["sess-1"] = repository.Session{ID: "sess-1", Status: repository.SessionCompleted}
	a := newTestApp(f)
	a.session = Success(repository.Session{ID: "sess-1", Status: repository.SessionCompleted})
	a.duplicates = knownDuplicates([]string{"t7", "t9"})

	_, cmd := a.forceImportDuplicates()
	assert.False(t, a.duplicates.known, "set cleared on dispatch, not on response")
	settle(a, cmd)

	assert.Equal(t, 1, f.count("ForceImportDuplicates"))
	assert.Equal(t, []string{"t7", "t9"}, f.gotForceIDs)

	// A second press finds no known list and never reaches the service.
	_, cmd = a.forceImportDuplicates()
	settle(a, cmd)
	assert.Equal(t, 1, f.count("ForceImportDuplicates"))
	assert.Equal(t, toastWarning, lastToast(t, a).severity)
}

func TestForceImportWithoutKnownListRejected(t *testing.T) {
	f := newFakeService()
	a := newTestApp(f)
	a.session = Success(repository.Session{ID: "sess-1", Status: repository.SessionCompleted})
	// Duplicate badges in the list are not enough; only the server's report
	// after an import names ids worth resubmitting.
	tx := pendingTx("t1", "REWE", "-5.00")
	tx.DuplicateStatus = repository.ConfirmedDuplicate
	a.transactions = Success([]repository.Transaction{tx})

	_, cmd := a.forceImportDuplicates()
	settle(a, cmd)
	assert.Zero(t, f.count("ForceImportDuplicates"))
	assert.Equal(t, toastWarning, lastToast(t, a).severity)
}

func TestCancelDoneResetsWorkingSet(t *testing.T) {
	f := newFakeService()
	a := newTestApp(f)
	a.session = Success(reviewingSession("sess-1"))
	a.transactions = Success([]repository.Transaction{pendingTx("t1", "REWE", "-5.00")})
	a.pendingOps["t1"] = opSkip
	a.manualIDs["t1"] = struct{}{}
	a.duplicates = knownDuplicates([]string{"t1"})
	a.tanToken = "tok"

	settle(a, func() tea.Msg { return cancelDoneMsg{} })

	assert.True(t, a.session.IsNotAsked())
	assert.True(t, a.transactions.IsNotAsked())
	assert.Empty(t, a.pendingOps)
	assert.Empty(t, a.manualIDs)
	assert.False(t, a.duplicates.known)
	assert.Empty(t, a.tanToken)
}
