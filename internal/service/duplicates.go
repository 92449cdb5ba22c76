package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/rommsen/budgetbuddy/internal/database/repository"
)

const fuzzyWindowDays = 7

// classifyDuplicate checks a freshly fetched transaction against the import
// history. An exact hash hit is a confirmed duplicate; same amount within the
// date window plus a close payee is a possible one.
func (s *SyncService) classifyDuplicate(ctx context.Context, tx *repository.Transaction) error {
	hash := sourceHash(tx.BankID, tx.BookingDate, tx.Amount.String(), tx.Currency)
	if rec, err := s.History.FindByHash(ctx, hash); err != nil {
		return err
	} else if rec != nil {
		detail := rec.YnabID
		tx.DuplicateStatus = repository.ConfirmedDuplicate
		tx.DuplicateDetail = &detail
		return nil
	}

	cutoff := tx.BookingDate.AddDate(0, 0, -fuzzyWindowDays)
	recent, err := s.History.ListSince(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, rec := range recent {
		if !rec.Amount.Equal(tx.Amount) || rec.Currency != tx.Currency {
			continue
		}
		if daysApart(rec.BookingDate, tx.BookingDate) > fuzzyWindowDays {
			continue
		}
		if !payeesClose(rec.Payee, tx.Payee) {
			continue
		}
		reason := fmt.Sprintf("similar to %q imported on %s", rec.Payee, rec.BookingDate.Format("2006-01-02"))
		tx.DuplicateStatus = repository.PossibleDuplicate
		tx.DuplicateDetail = &reason
		return nil
	}
	return nil
}

func payeesClose(a, b string) bool {
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return a == b
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxlen := len(a)
	if len(b) > maxlen {
		maxlen = len(b)
	}
	return float64(dist)/float64(maxlen) < 0.4
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func sourceHash(bankID string, date time.Time, amount, currency string) string {
	sum := sha256.Sum256([]byte(bankID + "|" + date.Format("2006-01-02") + "|" + amount + "|" + currency))
	return hex.EncodeToString(sum[:])
}
