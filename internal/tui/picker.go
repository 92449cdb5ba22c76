package tui

import (
	"strings"

	"github.com/rommsen/budgetbuddy/internal/ynab"
)

// categoryPicker is a small filterable category list, used both for
// categorizing a transaction and for assigning a split allocation.
type pickerTarget int

const (
	pickForTransaction pickerTarget = iota
	pickForSplitRow
)

type categoryPicker struct {
	target     pickerTarget
	txID       string
	splitIndex int
	cursor     int
	query      string
}

func (a *App) openPickerForTx(txID string) {
	a.picker = &categoryPicker{target: pickForTransaction, txID: txID}
}

func (a *App) openPickerForSplit(index int) {
	a.picker = &categoryPicker{target: pickForSplitRow, splitIndex: index}
}

// pickerChoices filters categories by the typed query.
func (a *App) pickerChoices() []ynab.Category {
	cats, ok := a.categories.Get()
	if !ok {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(a.picker.query))
	if q == "" {
		return cats
	}
	var out []ynab.Category
	for _, c := range cats {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.GroupName), q) {
			out = append(out, c)
		}
	}
	return out
}
