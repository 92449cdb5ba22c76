package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/rules"
)

// handleKey routes key input by overlay precedence: picker, split editor,
// rule form, then the main view.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Quit) && a.picker == nil && a.splitEdit == nil && a.ruleForm == nil {
		return a, tea.Quit
	}
	switch {
	case a.picker != nil:
		return a.updatePicker(msg)
	case a.splitEdit != nil:
		return a.updateSplitEditor(msg)
	case a.ruleForm != nil:
		return a.updateRuleForm(msg)
	}
	return a.updateMain(msg)
}

func (a *App) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Start):
		return a.startSync()
	case key.Matches(msg, a.keys.ConfirmTan):
		return a.confirmTan()
	case key.Matches(msg, a.keys.Cancel):
		return a.cancelSync()
	case key.Matches(msg, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil
	case key.Matches(msg, a.keys.Down):
		if a.cursor < len(a.visibleTransactions())-1 {
			a.cursor++
		}
		return a, nil
	case key.Matches(msg, a.keys.Filter):
		a.cycleFilter()
		return a, nil
	case key.Matches(msg, a.keys.Categorize):
		if tx, ok := a.currentTx(); ok {
			a.openPickerForTx(tx.ID)
		}
		return a, nil
	case key.Matches(msg, a.keys.ClearCat):
		if tx, ok := a.currentTx(); ok {
			return a.categorize(tx.ID, nil)
		}
		return a, nil
	case key.Matches(msg, a.keys.Skip):
		if tx, ok := a.currentTx(); ok {
			return a.skip(tx.ID)
		}
		return a, nil
	case key.Matches(msg, a.keys.Unskip):
		if tx, ok := a.currentTx(); ok {
			if tx.Status != repository.TxSkipped {
				return a, nil
			}
			return a.unskip(tx.ID)
		}
		return a, nil
	case key.Matches(msg, a.keys.Split):
		return a.openSplitEdit()
	case key.Matches(msg, a.keys.ClearSplit):
		if tx, ok := a.currentTx(); ok && len(tx.Splits) > 0 {
			return a.clearSplit(tx.ID)
		}
		return a, nil
	case key.Matches(msg, a.keys.Rule):
		return a.openRuleForm()
	case key.Matches(msg, a.keys.Import):
		return a.startImport()
	case key.Matches(msg, a.keys.ForceImport):
		return a.forceImportDuplicates()
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Category picker
// ---------------------------------------------------------------------------

func (a *App) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := a.picker
	switch msg.String() {
	case "esc":
		a.picker = nil
		return a, nil
	case "up":
		if p.cursor > 0 {
			p.cursor--
		}
		return a, nil
	case "down":
		if p.cursor < len(a.pickerChoices())-1 {
			p.cursor++
		}
		return a, nil
	case "backspace":
		if len(p.query) > 0 {
			p.query = p.query[:len(p.query)-1]
			p.cursor = 0
		}
		return a, nil
	case "enter":
		choices := a.pickerChoices()
		if p.cursor < 0 || p.cursor >= len(choices) {
			return a, nil
		}
		chosen := choices[p.cursor]
		a.picker = nil
		switch p.target {
		case pickForSplitRow:
			if a.splitEdit != nil {
				a.splitEdit.setCategory(p.splitIndex, chosen.ID, chosen.Name)
			}
			return a, nil
		default:
			id := chosen.ID
			return a.categorize(p.txID, &id)
		}
	}
	if len(msg.Runes) > 0 {
		p.query += string(msg.Runes)
		p.cursor = 0
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Split editor
// ---------------------------------------------------------------------------

func (a *App) updateSplitEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := a.splitEdit
	if st.saving {
		return a, nil
	}

	// A field edit is in progress: the textinput owns the keys.
	if st.editing != splitFieldNone {
		switch msg.String() {
		case "esc":
			st.editing = splitFieldNone
			return a, nil
		case "enter":
			return a.commitSplitField()
		}
		var cmd tea.Cmd
		st.input, cmd = st.input.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "esc":
		a.splitEdit = nil
		return a, nil
	case "up":
		if st.cursor > 0 {
			st.cursor--
		}
		return a, nil
	case "down":
		if st.cursor < len(st.splits)-1 {
			st.cursor++
		}
		return a, nil
	case "a":
		st.addSplit()
		return a, nil
	case "d":
		st.removeSplit(st.cursor)
		return a, nil
	case "c":
		a.openPickerForSplit(st.cursor)
		return a, nil
	case "e":
		st.editing = splitFieldAmount
		st.input.SetValue(st.splits[st.cursor].amount.String())
		st.input.Focus()
		return a, nil
	case "m":
		st.editing = splitFieldMemo
		st.input.SetValue(st.splits[st.cursor].memo)
		st.input.Focus()
		return a, nil
	case "enter":
		return a.saveSplits()
	}
	return a, nil
}

func (a *App) commitSplitField() (tea.Model, tea.Cmd) {
	st := a.splitEdit
	value := st.input.Value()
	switch st.editing {
	case splitFieldAmount:
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return a, toastCmd(toastWarning, "Not a valid amount: "+value)
		}
		st.updateAmount(st.cursor, amount)
	case splitFieldMemo:
		st.updateMemo(st.cursor, value)
	}
	st.editing = splitFieldNone
	return a, nil
}

// ---------------------------------------------------------------------------
// Inline rule form
// ---------------------------------------------------------------------------

func (a *App) updateRuleForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := a.ruleForm
	if st.saving {
		return a, nil
	}
	switch msg.String() {
	case "esc":
		a.ruleForm = nil
		return a, nil
	case "enter":
		a.syncRuleInput()
		return a.saveInlineRule()
	case "tab":
		a.syncRuleInput()
		st.focus = (st.focus + 1) % ruleFieldCount
		switch st.focus {
		case ruleFieldName:
			st.input.SetValue(st.name)
		case ruleFieldPayee:
			st.input.SetValue(st.payeeOverride)
		default:
			st.input.SetValue(st.pattern)
		}
		return a, nil
	case "ctrl+t":
		st.patternType = nextPatternType(st.patternType)
		return a, nil
	case "ctrl+f":
		st.targetField = nextTargetField(st.targetField)
		return a, nil
	}
	var cmd tea.Cmd
	st.input, cmd = st.input.Update(msg)
	a.syncRuleInput()
	return a, cmd
}

// syncRuleInput copies the shared textinput back into the focused field.
func (a *App) syncRuleInput() {
	st := a.ruleForm
	switch st.focus {
	case ruleFieldName:
		st.name = st.input.Value()
	case ruleFieldPayee:
		st.payeeOverride = st.input.Value()
	default:
		st.pattern = st.input.Value()
	}
}

func nextPatternType(t rules.PatternType) rules.PatternType {
	switch t {
	case rules.MatchContains:
		return rules.MatchExact
	case rules.MatchExact:
		return rules.MatchRegex
	default:
		return rules.MatchContains
	}
}

func nextTargetField(f rules.TargetField) rules.TargetField {
	switch f {
	case rules.FieldCombined:
		return rules.FieldPayee
	case rules.FieldPayee:
		return rules.FieldMemo
	default:
		return rules.FieldCombined
	}
}
