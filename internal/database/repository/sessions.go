package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SessionRepo stores sync sessions.
type SessionRepo struct{ db *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionCols = `id, status, failure_reason, challenge_ref, transaction_count, imported_count, skipped_count, created_at, updated_at`

func (r *SessionRepo) Create(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sessions(id, status, failure_reason, challenge_ref, transaction_count, imported_count, skipped_count)
	VALUES(?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Status, s.FailureReason, s.ChallengeRef, s.TransactionCount, s.ImportedCount, s.SkippedCount)
	return err
}

func (r *SessionRepo) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// Current returns the most recent non-terminal session, or ErrNotFound.
func (r *SessionRepo) Current(ctx context.Context) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+sessionCols+` FROM sessions
	WHERE status NOT IN (?, ?)
	ORDER BY created_at DESC LIMIT 1
	`, SessionCompleted, SessionFailed)
	return scanSession(row)
}

// UpdateStatus moves the session to status and records the failure reason
// (nil clears it).
func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status SessionStatus, reason *string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE sessions SET status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, reason, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SessionRepo) SetChallengeRef(ctx context.Context, id, ref string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE sessions SET challenge_ref = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, ref, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SessionRepo) SetCounters(ctx context.Context, id string, total, imported, skipped int) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE sessions SET transaction_count = ?, imported_count = ?, skipped_count = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, total, imported, skipped, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the session; transactions and splits cascade.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func scanSession(row *sql.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Status, &s.FailureReason, &s.ChallengeRef,
		&s.TransactionCount, &s.ImportedCount, &s.SkippedCount, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
