// Package sql guards the generic tabular query call.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyQuery indicates nothing but whitespace was supplied.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrNotReadOnly indicates the statement is not a SELECT.
	ErrNotReadOnly = errors.New("only SELECT statements are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize strips the trailing semicolon and rejects anything
// that still contains a statement separator outside string literals.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// ValidateReadOnly is ValidateAndNormalize plus a check that the single
// statement is a SELECT (optionally behind a WITH clause).
func ValidateReadOnly(sqlQuery string) ValidationResult {
	res := ValidateAndNormalize(sqlQuery)
	if res.Error != nil {
		return res
	}
	if !isSelect(res.NormalizedSQL) {
		return ValidationResult{Error: ErrNotReadOnly}
	}
	return res
}

var writeKeywords = []string{"insert", "update", "delete", "merge", "drop", "alter", "truncate", "create", "grant", "revoke"}

func isSelect(sqlQuery string) bool {
	fields := strings.Fields(strings.ToLower(sqlQuery))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "select":
		return true
	case "with":
		// A CTE may wrap a data-modifying statement.
		for _, f := range fields[1:] {
			word := strings.TrimLeft(f, "(")
			for _, kw := range writeKeywords {
				if word == kw {
					return false
				}
			}
		}
		return true
	default:
		return false
	}
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prev := rune(0)
	for _, c := range sqlQuery {
		switch state {
		case stateNormal:
			switch c {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// '' re-enters on the next quote, which keeps us inside the literal.
			if c == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = c
	}
	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
