package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// SummaryRepository provides data access for inspection summaries.
type SummaryRepository interface {
	Create(ctx context.Context, s *models.InspectionSummary) error
	GetByProperty(ctx context.Context, propertyID string) (*models.InspectionSummary, error)
}

type summaryRepository struct{}

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository() SummaryRepository {
	return &summaryRepository{}
}

var _ SummaryRepository = (*summaryRepository)(nil)

func (r *summaryRepository) Create(ctx context.Context, s *models.InspectionSummary) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO inspection_summaries
			(summary_id, property_id, summary_text, total_defects,
			 critical_issues, affected_rooms, inspector_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := scope.Conn.QueryRow(ctx, query,
		s.ID, s.PropertyID, s.SummaryText, s.TotalDefects,
		s.CriticalIssues, s.AffectedRooms, s.InspectorEmail,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create inspection summary: %w", err)
	}
	return nil
}

func (r *summaryRepository) GetByProperty(ctx context.Context, propertyID string) (*models.InspectionSummary, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT summary_id, property_id, summary_text, total_defects,
		       critical_issues, affected_rooms, inspector_email, created_at
		FROM inspection_summaries
		WHERE property_id = $1`

	var s models.InspectionSummary
	err := scope.Conn.QueryRow(ctx, query, propertyID).Scan(
		&s.ID, &s.PropertyID, &s.SummaryText, &s.TotalDefects,
		&s.CriticalIssues, &s.AffectedRooms, &s.InspectorEmail, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get inspection summary: %w", err)
	}
	return &s, nil
}
