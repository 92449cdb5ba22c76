// Package rules implements pattern matching of categorization rules against
// bank transactions. Matching is pure and deterministic so the TUI can preview
// which pending transactions a new rule would touch.
package rules

import (
	"regexp"
	"strings"
)

// PatternType selects how Pattern is compared.
type PatternType string

const (
	MatchContains PatternType = "contains"
	MatchExact    PatternType = "exact"
	MatchRegex    PatternType = "regex"
)

// TargetField selects which transaction text the pattern runs against.
type TargetField string

const (
	FieldPayee    TargetField = "payee"
	FieldMemo     TargetField = "memo"
	FieldCombined TargetField = "combined"
)

// Rule is the read model used for matching.
type Rule struct {
	Pattern     string
	PatternType PatternType
	TargetField TargetField
	CategoryID  string
}

// Candidate is the text a rule is evaluated against.
type Candidate struct {
	Payee string
	Memo  string
}

// Match reports whether rule applies to the candidate. Contains and exact
// comparisons lower both sides; regex runs case-insensitively on the original
// text. A malformed regex never matches.
func Match(rule Rule, c Candidate) bool {
	text := targetText(rule.TargetField, c)
	switch rule.PatternType {
	case MatchExact:
		return strings.ToLower(text) == strings.ToLower(rule.Pattern)
	case MatchRegex:
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	default:
		return strings.Contains(strings.ToLower(text), strings.ToLower(rule.Pattern))
	}
}

func targetText(field TargetField, c Candidate) string {
	switch field {
	case FieldMemo:
		return c.Memo
	case FieldCombined:
		return c.Payee + " " + c.Memo
	default:
		return c.Payee
	}
}
