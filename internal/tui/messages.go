package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

type sessionLoadedMsg struct {
	session *repository.Session // nil when no active session
	err     error
}

type syncStartedMsg struct {
	session repository.Session
	err     error
}

type tanConfirmedMsg struct {
	sessionID string
	token     string
	err       error
}

type transactionsLoadedMsg struct {
	sessionID string
	txs       []repository.Transaction
	err       error
}

type categoriesLoadedMsg struct {
	cats []ynab.Category
	err  error
}

// rowOp identifies which per-row mutation produced a rowOpMsg.
type rowOp string

const (
	opCategorize rowOp = "categorize"
	opSkip       rowOp = "skip"
	opUnskip     rowOp = "unskip"
	opSplit      rowOp = "split"
	opClearSplit rowOp = "clear split"
)

type rowOpMsg struct {
	op        rowOp
	sessionID string
	txID      string
	tx        repository.Transaction
	err       error
}

type bulkCategorizedMsg struct {
	sessionID string
	txs       []repository.Transaction
	err       error
}

type ruleSavedMsg struct {
	rule       repository.Rule
	categoryID string
	err        error
}

type importDoneMsg struct {
	sessionID string
	result    ynab.ImportResult
	err       error
}

type forceImportDoneMsg struct {
	sessionID string
	count     int
	err       error
}

type cancelDoneMsg struct {
	err error
}

// toastSeverity ranks user-facing notifications.
type toastSeverity int

const (
	toastInfo toastSeverity = iota
	toastSuccess
	toastWarning
	toastError
)

type toast struct {
	text     string
	severity toastSeverity
}

type toastMsg toast

func toastCmd(severity toastSeverity, text string) tea.Cmd {
	return func() tea.Msg { return toastMsg{text: text, severity: severity} }
}
