package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// FindingRepository provides data access for inspection findings.
type FindingRepository interface {
	// CreateBatch inserts every finding. IDs must already be assigned.
	CreateBatch(ctx context.Context, findings []models.Finding) error
	// ListByProperty returns findings ordered by severity, highest first.
	ListByProperty(ctx context.Context, propertyID string) ([]models.Finding, error)
}

type findingRepository struct{}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository() FindingRepository {
	return &findingRepository{}
}

var _ FindingRepository = (*findingRepository)(nil)

func (r *findingRepository) CreateBatch(ctx context.Context, findings []models.Finding) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO inspection_findings
			(finding_id, property_id, room_name, defect_type, severity, description, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, f := range findings {
		_, err := scope.Conn.Exec(ctx, query,
			f.ID, f.PropertyID, f.RoomName, string(f.DefectType), f.Severity, f.Description, string(f.Source))
		if err != nil {
			return fmt.Errorf("failed to insert finding %s: %w", f.ID, err)
		}
	}
	return nil
}

func (r *findingRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.Finding, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT finding_id, property_id, room_name, defect_type, severity, description, source
		FROM inspection_findings
		WHERE property_id = $1
		ORDER BY severity DESC, created_at, finding_id`

	rows, err := scope.Conn.Query(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	findings := make([]models.Finding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}
	return findings, nil
}

func scanFinding(row pgx.Row) (models.Finding, error) {
	var (
		f          models.Finding
		defectType string
		source     string
	)
	if err := row.Scan(&f.ID, &f.PropertyID, &f.RoomName, &defectType, &f.Severity, &f.Description, &source); err != nil {
		return models.Finding{}, err
	}
	f.DefectType = models.DefectType(defectType)
	f.Source = models.FindingSource(source)
	return f, nil
}
