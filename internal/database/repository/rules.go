package repository

import (
	"context"
	"database/sql"
)

// RuleRepo stores categorization rules.
type RuleRepo struct{ db *sql.DB }

func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

func (r *RuleRepo) Add(ctx context.Context, rule Rule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO rules(id, name, pattern, pattern_type, target_field, category_id, payee_override)
	VALUES(?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, rule.Pattern, rule.PatternType, rule.TargetField, rule.CategoryID, rule.PayeeOverride)
	return err
}

// List returns rules oldest first; application stops at the first match, so
// the oldest matching rule wins.
func (r *RuleRepo) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, pattern, pattern_type, target_field, category_id, payee_override, created_at
	FROM rules ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Pattern, &rule.PatternType, &rule.TargetField,
			&rule.CategoryID, &rule.PayeeOverride, &rule.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
