package repositories

import (
	"context"
	"fmt"

	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// ImprovementRepository provides data access for persisted recommendations.
type ImprovementRepository interface {
	CreateBatch(ctx context.Context, improvements []models.Improvement) error
	// ListByProperty returns improvements Critical first, unknown priorities last.
	ListByProperty(ctx context.Context, propertyID string) ([]models.Improvement, error)
}

type improvementRepository struct{}

// NewImprovementRepository creates a new ImprovementRepository.
func NewImprovementRepository() ImprovementRepository {
	return &improvementRepository{}
}

var _ ImprovementRepository = (*improvementRepository)(nil)

func (r *improvementRepository) CreateBatch(ctx context.Context, improvements []models.Improvement) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO property_improvements
			(improvement_id, property_id, defect_type, improvement_action,
			 estimated_cost_range, priority, defect_count, affected_rooms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, imp := range improvements {
		_, err := scope.Conn.Exec(ctx, query,
			imp.ID, imp.PropertyID, string(imp.DefectType), imp.Action,
			imp.CostRange, string(imp.Priority), imp.Count, imp.AffectedRooms)
		if err != nil {
			return fmt.Errorf("failed to insert improvement %s: %w", imp.ID, err)
		}
	}
	return nil
}

func (r *improvementRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.Improvement, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT improvement_id, property_id, defect_type, improvement_action,
		       estimated_cost_range, priority, defect_count, affected_rooms
		FROM property_improvements
		WHERE property_id = $1
		ORDER BY CASE priority
			WHEN 'Critical' THEN 1
			WHEN 'High' THEN 2
			WHEN 'Medium' THEN 3
			WHEN 'Low' THEN 4
			ELSE 5
		END, improvement_id`

	rows, err := scope.Conn.Query(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list improvements: %w", err)
	}
	defer rows.Close()

	improvements := make([]models.Improvement, 0)
	for rows.Next() {
		var (
			imp        models.Improvement
			defectType string
			priority   string
		)
		if err := rows.Scan(&imp.ID, &imp.PropertyID, &defectType, &imp.Action,
			&imp.CostRange, &priority, &imp.Count, &imp.AffectedRooms); err != nil {
			return nil, fmt.Errorf("failed to scan improvement: %w", err)
		}
		imp.DefectType = models.DefectType(defectType)
		imp.Priority = models.Priority(priority)
		improvements = append(improvements, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating improvements: %w", err)
	}
	return improvements, nil
}
