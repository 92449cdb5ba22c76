package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start       key.Binding
	ConfirmTan  key.Binding
	Cancel      key.Binding
	Up          key.Binding
	Down        key.Binding
	Categorize  key.Binding
	ClearCat    key.Binding
	Skip        key.Binding
	Unskip      key.Binding
	Split       key.Binding
	ClearSplit  key.Binding
	Rule        key.Binding
	Import      key.Binding
	ForceImport key.Binding
	Filter      key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Start:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start sync")),
		ConfirmTan:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "TAN confirmed")),
		Cancel:      key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "cancel sync")),
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Categorize:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "categorize")),
		ClearCat:    key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "clear category")),
		Skip:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "skip")),
		Unskip:      key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unskip")),
		Split:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "split")),
		ClearSplit:  key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "clear split")),
		Rule:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "create rule")),
		Import:      key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import to YNAB")),
		ForceImport: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "import duplicates")),
		Filter:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "filter")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
