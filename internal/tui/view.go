package tui

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
)

func (a *App) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("BudgetBuddy") + dimStyle.Render("  comdirect → YNAB") + "\n\n")

	switch {
	case a.picker != nil:
		b.WriteString(a.viewPicker())
	case a.splitEdit != nil:
		b.WriteString(a.viewSplitEditor())
	case a.ruleForm != nil:
		b.WriteString(a.viewRuleForm())
	default:
		b.WriteString(a.viewMain())
	}

	b.WriteString("\n" + a.viewToasts())
	b.WriteString("\n" + footerStyle.Render(a.footerHelp()))
	return b.String()
}

func (a *App) viewMain() string {
	if a.session.IsLoading() {
		return a.spin.View() + " loading session…"
	}
	if a.session.IsFailure() {
		return errorStyle.Render("Session error: " + a.session.Err())
	}
	sess, ok := a.session.Get()
	if !ok {
		return "No sync running.\n\n" + dimStyle.Render("Press s to pull transactions from your bank.")
	}

	switch sess.Status {
	case repository.SessionAwaitingBankAuth:
		return a.spin.View() + " authenticating with comdirect…"
	case repository.SessionAwaitingTan:
		return warningStyle.Render("Waiting for TAN approval.") +
			"\n\nOpen your photoTAN app and approve the push notification,\nthen press " +
			headerStyle.Render("t") + " to continue."
	case repository.SessionFetching:
		return a.spin.View() + " fetching transactions…"
	case repository.SessionFailed:
		reason := "unknown reason"
		if sess.FailureReason != nil {
			reason = *sess.FailureReason
		}
		return errorStyle.Render("Sync failed: "+reason) + "\n\n" + dimStyle.Render("Press s to start over.")
	case repository.SessionCompleted:
		summary := fmt.Sprintf("Sync complete: %d fetched, %d imported, %d skipped.",
			sess.TransactionCount, sess.ImportedCount, sess.SkippedCount)
		body := successStyle.Render(summary)
		if a.duplicates.known && len(a.duplicates.ids) > 0 {
			body += "\n" + warningStyle.Render(fmt.Sprintf("%d duplicates held back — press f to import them anyway.", len(a.duplicates.ids)))
		}
		return body + "\n\n" + a.viewTransactions()
	default:
		return a.viewTransactions()
	}
}

func (a *App) viewTransactions() string {
	if a.transactions.IsLoading() {
		return a.spin.View() + " loading transactions…"
	}
	if a.transactions.IsFailure() {
		return errorStyle.Render("Transactions error: " + a.transactions.Err())
	}
	visible := a.visibleTransactions()
	c := a.counts()

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Transactions — filter: %s", a.filter)) +
		dimStyle.Render(fmt.Sprintf("   %d total · %d pending · %d categorized · %d skipped · %d dup",
			c.total, c.pending, c.categorized, c.skipped, c.possibleDup+c.confirmedDup)) + "\n\n")

	if len(visible) == 0 {
		b.WriteString(dimStyle.Render("  nothing here"))
		return b.String()
	}
	for i, tx := range visible {
		b.WriteString(a.renderRow(i, tx) + "\n")
	}
	return b.String()
}

func (a *App) renderRow(i int, tx repository.Transaction) string {
	prefix := "  "
	if i == a.cursor {
		prefix = cursorStyle.Render("> ")
	}
	date := tx.BookingDate.Format("02.01.2006")
	amount := formatAmount(tx.Amount, tx.Currency)

	category := dimStyle.Render("—")
	switch {
	case len(tx.Splits) > 0:
		category = fmt.Sprintf("split ×%d", len(tx.Splits))
	case tx.CategoryName != nil:
		category = *tx.CategoryName
	case tx.CategoryID != nil:
		category = *tx.CategoryID
	}

	line := fmt.Sprintf("%s%s  %-28s %12s  %-22s %s",
		prefix, date, truncate(tx.Payee, 28), amount, truncate(category, 22), a.renderBadges(tx))
	if tx.Status == repository.TxSkipped {
		return skippedStyle.Render(line)
	}
	return line
}

func (a *App) renderBadges(tx repository.Transaction) string {
	var badges []string
	switch tx.Status {
	case repository.TxAutoCategorized:
		badges = append(badges, dimStyle.Render("[auto]"))
	case repository.TxManualCategorized:
		badges = append(badges, successStyle.Render("[manual]"))
	case repository.TxNeedsAttention:
		badges = append(badges, errorStyle.Render("[attention]"))
	case repository.TxImported:
		badges = append(badges, successStyle.Render("[imported]"))
	}
	switch tx.DuplicateStatus {
	case repository.PossibleDuplicate:
		badges = append(badges, warningStyle.Render("[dup?]"))
	case repository.ConfirmedDuplicate:
		badges = append(badges, errorStyle.Render("[dup]"))
	}
	if _, busy := a.pendingOps[tx.ID]; busy {
		badges = append(badges, dimStyle.Render("…"))
	}
	return strings.Join(badges, " ")
}

func (a *App) viewPicker() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Pick a category") + "  " + dimStyle.Render("type to filter · enter to select · esc to close") + "\n")
	b.WriteString(dimStyle.Render("filter: ") + a.picker.query + "\n\n")
	choices := a.pickerChoices()
	if a.categories.IsFailure() {
		b.WriteString(errorStyle.Render("Categories unavailable: " + a.categories.Err()))
	}
	for i, c := range choices {
		prefix := "  "
		if i == a.picker.cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", prefix, c.Name, dimStyle.Render(c.GroupName)))
	}
	return modalStyle.Render(b.String())
}

func (a *App) viewSplitEditor() string {
	st := a.splitEdit
	var b strings.Builder
	b.WriteString(headerStyle.Render("Split transaction") + "\n")
	b.WriteString(fmt.Sprintf("Original amount: %s\n\n", formatAmount(st.original, st.currency)))

	for i, sp := range st.splits {
		prefix := "  "
		if i == st.cursor {
			prefix = cursorStyle.Render("> ")
		}
		category := sp.categoryName
		if category == "" {
			category = dimStyle.Render("(no category)")
		}
		line := fmt.Sprintf("%s%-24s %12s  %s", prefix, truncate(category, 24), formatAmount(sp.amount, st.currency), sp.memo)
		if i == st.cursor && st.editing != splitFieldNone {
			line += "  " + st.input.View()
		}
		b.WriteString(line + "\n")
	}

	remaining := formatAmount(st.remaining, st.currency)
	if st.balanced() {
		b.WriteString("\nRemaining: " + successStyle.Render(remaining) + "\n")
	} else {
		b.WriteString("\nRemaining: " + warningStyle.Render(remaining) + "\n")
	}
	if st.saving {
		b.WriteString(a.spin.View() + " saving…\n")
	}
	b.WriteString(dimStyle.Render("a add · d delete · c category · e amount · m memo · enter save · esc close"))
	return modalStyle.Render(b.String())
}

func (a *App) viewRuleForm() string {
	st := a.ruleForm
	render := func(f ruleFormField, label, value string) string {
		if st.focus == f {
			return cursorStyle.Render("> ") + label + st.input.View() + "\n"
		}
		return "  " + label + value + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Create rule") + "  " + dimStyle.Render("for "+st.categoryName) + "\n\n")
	b.WriteString(render(ruleFieldPattern, "Pattern:  ", st.pattern))
	b.WriteString(render(ruleFieldName, "Name:     ", st.name))
	b.WriteString(render(ruleFieldPayee, "Payee →   ", st.payeeOverride))
	b.WriteString(fmt.Sprintf("  Match:    %s on %s\n", st.patternType, st.targetField))
	if st.saving {
		b.WriteString("\n" + a.spin.View() + " saving…\n")
	}
	b.WriteString("\n" + dimStyle.Render("tab next field · ctrl+t match type · ctrl+f target · enter save · esc close"))
	return modalStyle.Render(b.String())
}

func (a *App) viewToasts() string {
	if len(a.toasts) == 0 {
		return ""
	}
	last := a.toasts[len(a.toasts)-1]
	switch last.severity {
	case toastError:
		return errorStyle.Render("✗ " + last.text)
	case toastWarning:
		return warningStyle.Render("! " + last.text)
	case toastSuccess:
		return successStyle.Render("✓ " + last.text)
	default:
		return dimStyle.Render("· " + last.text)
	}
}

func (a *App) footerHelp() string {
	sess, ok := a.session.Get()
	if !ok {
		return "s start sync · q quit"
	}
	switch sess.Status {
	case repository.SessionAwaitingTan:
		return "t TAN confirmed · X cancel · q quit"
	case repository.SessionReviewing:
		return "c categorize · x skip · p split · r rule · i import · tab filter · X cancel · q quit"
	case repository.SessionCompleted:
		return "f import duplicates · s new sync · q quit"
	default:
		return "q quit"
	}
}

func formatAmount(v decimal.Decimal, currency string) string {
	s := v.StringFixed(2) + " " + currency
	if v.IsNegative() {
		return amountNegStyle.Render(s)
	}
	return amountPosStyle.Render(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
