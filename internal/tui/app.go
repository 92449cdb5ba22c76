// Package tui is the interactive review surface: an Elm-style model driving
// one sync session from bank auth through TAN confirmation, transaction
// review and the final YNAB import.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/service"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

// Service is the authoritative sync surface the model dispatches to. All
// calls run off the event loop; results re-enter as messages.
type Service interface {
	CurrentSession(ctx context.Context) (*repository.Session, error)
	Session(ctx context.Context, id string) (repository.Session, error)
	StartSync(ctx context.Context) (repository.Session, error)
	ConfirmTan(ctx context.Context, sessionID string) error
	SessionTransactions(ctx context.Context, sessionID string) ([]repository.Transaction, error)
	CancelSync(ctx context.Context, sessionID string) error
	Categorize(ctx context.Context, txID string, categoryID *string) (repository.Transaction, error)
	Skip(ctx context.Context, txID string) (repository.Transaction, error)
	Unskip(ctx context.Context, txID string) (repository.Transaction, error)
	Split(ctx context.Context, txID string, splits []repository.Split) (repository.Transaction, error)
	ClearSplit(ctx context.Context, txID string) (repository.Transaction, error)
	BulkCategorize(ctx context.Context, txIDs []string, categoryID string) ([]repository.Transaction, error)
	CreateRule(ctx context.Context, req service.RuleCreateRequest) (repository.Rule, error)
	Import(ctx context.Context, sessionID string) (ynab.ImportResult, error)
	ForceImportDuplicates(ctx context.Context, sessionID string, txIDs []string) (int, error)
	Categories(ctx context.Context) ([]ynab.Category, error)
}

// duplicateSet is what the model knows about duplicate ids after an import:
// either nothing yet, or the precise list the server reported.
type duplicateSet struct {
	known bool
	ids   []string
}

func noDuplicatesKnown() duplicateSet { return duplicateSet{} }

func knownDuplicates(ids []string) duplicateSet {
	return duplicateSet{known: true, ids: ids}
}

// App is the model. All mutation happens on the bubbletea loop.
type App struct {
	ctx context.Context
	svc Service
	log logrus.FieldLogger

	width  int
	height int

	session      RemoteData[repository.Session]
	transactions RemoteData[[]repository.Transaction]
	categories   RemoteData[[]ynab.Category]

	// tanToken guards against double-submitting the TAN confirmation: set
	// when the call is dispatched, cleared when its result returns.
	tanToken string

	// pendingOps marks rows with an authoritative call outstanding. A second
	// edit on such a row is rejected instead of risking a stale overwrite.
	pendingOps map[string]rowOp

	// manualIDs gates the inline-rule affordance to rows the user
	// categorized by hand.
	manualIDs map[string]struct{}

	duplicates duplicateSet

	splitEdit *splitEditState
	ruleForm  *ruleFormState
	picker    *categoryPicker

	cursor int
	filter viewFilter
	toasts []toast

	keys keyMap
	spin spinner.Model
}

// New builds the model.
func New(ctx context.Context, svc Service, log logrus.FieldLogger) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &App{
		ctx:          ctx,
		svc:          svc,
		log:          log,
		session:      NotAsked[repository.Session](),
		transactions: NotAsked[[]repository.Transaction](),
		categories:   NotAsked[[]ynab.Category](),
		pendingOps:   map[string]rowOp{},
		manualIDs:    map[string]struct{}{},
		duplicates:   noDuplicatesKnown(),
		keys:         defaultKeyMap(),
		spin:         sp,
	}
}

func (a *App) Init() tea.Cmd {
	a.session = Loading[repository.Session]()
	a.categories = Loading[[]ynab.Category]()
	return tea.Batch(a.loadCurrentSession(), a.loadCategories(), a.spin.Tick)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	case toastMsg:
		a.toasts = append(a.toasts, toast(msg))
		return a, nil
	case sessionLoadedMsg:
		return a.handleSessionLoaded(msg)
	case syncStartedMsg:
		return a.handleSyncStarted(msg)
	case tanConfirmedMsg:
		return a.handleTanConfirmed(msg)
	case transactionsLoadedMsg:
		return a.handleTransactionsLoaded(msg)
	case categoriesLoadedMsg:
		return a.handleCategoriesLoaded(msg)
	case rowOpMsg:
		return a.handleRowOp(msg)
	case bulkCategorizedMsg:
		return a.handleBulkCategorized(msg)
	case ruleSavedMsg:
		return a.handleRuleSaved(msg)
	case importDoneMsg:
		return a.handleImportDone(msg)
	case forceImportDoneMsg:
		return a.handleForceImportDone(msg)
	case cancelDoneMsg:
		return a.handleCancelDone(msg)
	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

// sessionID returns the active session id, or empty.
func (a *App) sessionID() string {
	sess, ok := a.session.Get()
	if !ok {
		return ""
	}
	return sess.ID
}

// currentTx returns the transaction under the cursor in the filtered view.
func (a *App) currentTx() (repository.Transaction, bool) {
	visible := a.visibleTransactions()
	if a.cursor < 0 || a.cursor >= len(visible) {
		return repository.Transaction{}, false
	}
	return visible[a.cursor], true
}

// replaceRow swaps the canonical copy of one row into the working set.
func (a *App) replaceRow(tx repository.Transaction) {
	txs, ok := a.transactions.Get()
	if !ok {
		return
	}
	out := make([]repository.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		if out[i].ID == tx.ID {
			out[i] = tx
			break
		}
	}
	a.transactions = Success(out)
}

// patchRow applies an optimistic local edit to one row.
func (a *App) patchRow(txID string, patch func(*repository.Transaction)) {
	txs, ok := a.transactions.Get()
	if !ok {
		return
	}
	out := make([]repository.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		if out[i].ID == txID {
			patch(&out[i])
			break
		}
	}
	a.transactions = Success(out)
}

func (a *App) categoryNameFor(id string) string {
	cats, ok := a.categories.Get()
	if !ok {
		return ""
	}
	for _, c := range cats {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}
