package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/rules"
	"github.com/rommsen/budgetbuddy/internal/service"
)

// ---------------------------------------------------------------------------
// Inline rule creator: turn one manual categorization into a reusable rule
// and immediately fan it out over the other pending transactions.
// ---------------------------------------------------------------------------

const ruleNameMaxLen = 30

type ruleFormField int

const (
	ruleFieldPattern ruleFormField = iota
	ruleFieldName
	ruleFieldPayee
	ruleFieldCount
)

type ruleFormState struct {
	txID          string
	pattern       string
	patternType   rules.PatternType
	targetField   rules.TargetField
	categoryID    string
	categoryName  string
	name          string
	payeeOverride string
	saving        bool
	focus         ruleFormField
	input         textinput.Model
}

// newRuleForm prefills from the transaction: the full payee becomes the
// pattern, a truncated version the display name.
func newRuleForm(tx repository.Transaction) *ruleFormState {
	catID, catName := "", ""
	if tx.CategoryID != nil {
		catID = *tx.CategoryID
	}
	if tx.CategoryName != nil {
		catName = *tx.CategoryName
	}
	in := textinput.New()
	in.SetValue(tx.Payee)
	in.Focus()
	return &ruleFormState{
		txID:         tx.ID,
		pattern:      tx.Payee,
		patternType:  rules.MatchContains,
		targetField:  rules.FieldCombined,
		categoryID:   catID,
		categoryName: catName,
		name:         ruleNameFor(tx.Payee),
		input:        in,
	}
}

func ruleNameFor(payee string) string {
	name := strings.TrimSpace(payee)
	if r := []rune(name); len(r) > ruleNameMaxLen {
		name = string(r[:ruleNameMaxLen]) + "…"
	}
	return name
}

// openRuleForm opens the creator for the transaction under the cursor. Only
// manually categorized rows qualify.
func (a *App) openRuleForm() (tea.Model, tea.Cmd) {
	tx, ok := a.currentTx()
	if !ok {
		return a, nil
	}
	if _, manual := a.manualIDs[tx.ID]; !manual || tx.CategoryID == nil {
		return a, toastCmd(toastWarning, "Categorize the transaction manually first")
	}
	a.ruleForm = newRuleForm(tx)
	return a, nil
}

// saveInlineRule rejects a blank pattern locally; otherwise it persists the
// rule. The fan-out runs once the save comes back.
func (a *App) saveInlineRule() (tea.Model, tea.Cmd) {
	st := a.ruleForm
	if st == nil || st.saving {
		return a, nil
	}
	if strings.TrimSpace(st.pattern) == "" {
		return a, toastCmd(toastWarning, "Rule pattern must not be blank")
	}
	st.saving = true
	req := service.RuleCreateRequest{
		Name:          st.name,
		Pattern:       st.pattern,
		PatternType:   string(st.patternType),
		TargetField:   string(st.targetField),
		CategoryID:    st.categoryID,
		PayeeOverride: st.payeeOverride,
	}
	categoryID := st.categoryID
	return a, func() tea.Msg {
		rule, err := a.svc.CreateRule(a.ctx, req)
		return ruleSavedMsg{rule: rule, categoryID: categoryID, err: err}
	}
}

func (a *App) handleRuleSaved(msg ruleSavedMsg) (tea.Model, tea.Cmd) {
	if a.ruleForm != nil {
		a.ruleForm.saving = false
	}
	if msg.err != nil {
		return a, toastCmd(toastError, "Saving rule failed: "+msg.err.Error())
	}
	a.ruleForm = nil

	cmds := []tea.Cmd{toastCmd(toastSuccess, "Rule \""+msg.rule.Name+"\" created")}
	if matches := a.ruleMatches(msg.rule); len(matches) > 0 {
		// Zero matches is a silent no-op; any matches get one bulk call.
		cmds = append(cmds, a.bulkCategorize(matches, msg.categoryID))
	}
	return a, tea.Batch(cmds...)
}

// ruleMatches previews the rule over every pending, uncategorized
// transaction in the working set.
func (a *App) ruleMatches(rule repository.Rule) []string {
	txs, ok := a.transactions.Get()
	if !ok {
		return nil
	}
	r := rules.Rule{
		Pattern:     rule.Pattern,
		PatternType: rules.PatternType(rule.PatternType),
		TargetField: rules.TargetField(rule.TargetField),
		CategoryID:  rule.CategoryID,
	}
	var out []string
	for _, tx := range txs {
		if tx.Status != repository.TxPending || tx.CategoryID != nil {
			continue
		}
		if rules.Match(r, rules.Candidate{Payee: tx.Payee, Memo: tx.Memo}) {
			out = append(out, tx.ID)
		}
	}
	return out
}
