package repositories

import (
	"context"
	"fmt"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	sqlguard "github.com/nivaasika/nivaasika-engine/pkg/sql"
)

// QueryRepository runs read-only ad hoc queries and returns column names and rows.
type QueryRepository interface {
	// Query executes a single SELECT with positional ($n) arguments.
	// Statements that are not a single SELECT, and string arguments that
	// look like SQL injection, are rejected with a ValidationError.
	Query(ctx context.Context, sql string, args ...any) (*models.QueryResult, error)
}

type queryRepository struct {
	maxRows int
}

// DefaultMaxRows caps the rows returned by QueryRepository.Query.
const DefaultMaxRows = 1000

// NewQueryRepository creates a new QueryRepository.
func NewQueryRepository() QueryRepository {
	return &queryRepository{maxRows: DefaultMaxRows}
}

var _ QueryRepository = (*queryRepository)(nil)

func (r *queryRepository) Query(ctx context.Context, sql string, args ...any) (*models.QueryResult, error) {
	validated := sqlguard.ValidateReadOnly(sql)
	if validated.Error != nil {
		return nil, apperrors.NewValidationError("query", validated.Error.Error())
	}
	if injected := sqlguard.CheckArgs(args); injected != nil {
		return nil, apperrors.NewValidationError("args", injected.Error())
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, validated.NormalizedSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &models.QueryResult{
		Columns: make([]string, len(fields)),
		Rows:    make([][]any, 0),
	}
	for i, f := range fields {
		result.Columns[i] = f.Name
	}

	for rows.Next() {
		if len(result.Rows) >= r.maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
