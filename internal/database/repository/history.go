package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryRepo stores prior imports for duplicate classification.
type HistoryRepo struct{ db *sql.DB }

func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) Record(ctx context.Context, rec ImportedRecord) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO imported_history(id, source_hash, payee, booking_date, amount, currency, ynab_id)
	VALUES(?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SourceHash, rec.Payee, rec.BookingDate, rec.Amount.String(), rec.Currency, rec.YnabID)
	return err
}

// ListSince returns imports booked on or after cutoff.
func (r *HistoryRepo) ListSince(ctx context.Context, cutoff time.Time) ([]ImportedRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, source_hash, payee, booking_date, amount, currency, ynab_id, imported_at
	FROM imported_history WHERE booking_date >= ? ORDER BY booking_date
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// FindByHash returns the record with the given source hash, if any.
func (r *HistoryRepo) FindByHash(ctx context.Context, hash string) (*ImportedRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, source_hash, payee, booking_date, amount, currency, ynab_id, imported_at
	FROM imported_history WHERE source_hash = ? LIMIT 1
	`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs, err := collectRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func collectRecords(rows *sql.Rows) ([]ImportedRecord, error) {
	var out []ImportedRecord
	for rows.Next() {
		var rec ImportedRecord
		var amount string
		if err := rows.Scan(&rec.ID, &rec.SourceHash, &rec.Payee, &rec.BookingDate, &amount,
			&rec.Currency, &rec.YnabID, &rec.ImportedAt); err != nil {
			return nil, err
		}
		var err error
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("history %s amount: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
