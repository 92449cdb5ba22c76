package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rommsen/budgetbuddy/internal/database"
)

// TransactionRepo stores session transactions and their splits.
type TransactionRepo struct{ db *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const txCols = `id, session_id, bank_id, payee, memo, booking_date, amount, currency, status,
	category_id, category_name, duplicate_status, duplicate_detail, external_link, created_at, updated_at`

// BulkInsert writes all fetched transactions in one tx.
func (r *TransactionRepo) BulkInsert(ctx context.Context, txs []Transaction) error {
	return database.WithTx(ctx, r.db, func(dbtx *sql.Tx) error {
		stmt, err := dbtx.PrepareContext(ctx, `
		INSERT INTO session_transactions(id, session_id, bank_id, payee, memo, booking_date, amount, currency,
			status, category_id, category_name, duplicate_status, duplicate_detail, external_link)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range txs {
			if _, err := stmt.ExecContext(ctx, t.ID, t.SessionID, t.BankID, t.Payee, t.Memo,
				t.BookingDate, t.Amount.String(), t.Currency, t.Status, t.CategoryID, t.CategoryName,
				t.DuplicateStatus, t.DuplicateDetail, t.ExternalLink); err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.BankID, err)
			}
		}
		return nil
	})
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txCols+` FROM session_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row.Scan)
	if err != nil {
		return Transaction{}, err
	}
	splits, err := r.splitsFor(ctx, []string{t.ID})
	if err != nil {
		return Transaction{}, err
	}
	t.Splits = splits[t.ID]
	return t, nil
}

// ListBySession returns the full working set, oldest booking first.
func (r *TransactionRepo) ListBySession(ctx context.Context, sessionID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+txCols+` FROM session_transactions WHERE session_id = ? ORDER BY booking_date, bank_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	var ids []string
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	splits, err := r.splitsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Splits = splits[out[i].ID]
	}
	return out, nil
}

// UpdateReview sets the review fields (status, category) on one row.
func (r *TransactionRepo) UpdateReview(ctx context.Context, id string, status TxStatus, categoryID, categoryName *string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE session_transactions SET status = ?, category_id = ?, category_name = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, status, categoryID, categoryName, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStatus changes only the review status.
func (r *TransactionRepo) SetStatus(ctx context.Context, id string, status TxStatus) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE session_transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetDuplicate records the server-side duplicate classification.
func (r *TransactionRepo) SetDuplicate(ctx context.Context, id string, status DuplicateStatus, detail *string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE session_transactions SET duplicate_status = ?, duplicate_detail = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, status, detail, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ReplaceSplits swaps the allocation set for one transaction and clears its
// single category, since splits drive the import from then on.
func (r *TransactionRepo) ReplaceSplits(ctx context.Context, txID string, status TxStatus, splits []Split) error {
	return database.WithTx(ctx, r.db, func(dbtx *sql.Tx) error {
		if _, err := dbtx.ExecContext(ctx, `DELETE FROM transaction_splits WHERE transaction_id = ?`, txID); err != nil {
			return err
		}
		for i, s := range splits {
			id := s.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO transaction_splits(id, transaction_id, category_id, category_name, amount, memo, position)
			VALUES(?, ?, ?, ?, ?, ?, ?)
			`, id, txID, s.CategoryID, s.CategoryName, s.Amount.String(), s.Memo, i); err != nil {
				return err
			}
		}
		res, err := dbtx.ExecContext(ctx, `
		UPDATE session_transactions SET status = ?, category_id = NULL, category_name = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		`, status, txID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// ClearSplits deletes all allocations for one transaction.
func (r *TransactionRepo) ClearSplits(ctx context.Context, txID string, status TxStatus) error {
	return database.WithTx(ctx, r.db, func(dbtx *sql.Tx) error {
		if _, err := dbtx.ExecContext(ctx, `DELETE FROM transaction_splits WHERE transaction_id = ?`, txID); err != nil {
			return err
		}
		res, err := dbtx.ExecContext(ctx, `
		UPDATE session_transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, status, txID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// MarkImported flips the given ids to imported in one tx.
func (r *TransactionRepo) MarkImported(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(dbtx *sql.Tx) error {
		for _, id := range ids {
			if _, err := dbtx.ExecContext(ctx, `
			UPDATE session_transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
			`, TxImported, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TransactionRepo) splitsFor(ctx context.Context, txIDs []string) (map[string][]Split, error) {
	out := map[string][]Split{}
	if len(txIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(txIDs)), ",")
	args := make([]any, len(txIDs))
	for i, id := range txIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, transaction_id, category_id, category_name, amount, memo, position
	FROM transaction_splits WHERE transaction_id IN (`+placeholders+`) ORDER BY transaction_id, position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s Split
		var amount string
		if err := rows.Scan(&s.ID, &s.TransactionID, &s.CategoryID, &s.CategoryName, &amount, &s.Memo, &s.Position); err != nil {
			return nil, err
		}
		s.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("split %s amount: %w", s.ID, err)
		}
		out[s.TransactionID] = append(out[s.TransactionID], s)
	}
	return out, rows.Err()
}

func scanTransaction(scan func(dest ...any) error) (Transaction, error) {
	var t Transaction
	var amount string
	err := scan(&t.ID, &t.SessionID, &t.BankID, &t.Payee, &t.Memo, &t.BookingDate, &amount, &t.Currency,
		&t.Status, &t.CategoryID, &t.CategoryName, &t.DuplicateStatus, &t.DuplicateDetail,
		&t.ExternalLink, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	return t, nil
}
