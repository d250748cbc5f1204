package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// PropertyRepository provides data access for seller listings.
type PropertyRepository interface {
	Create(ctx context.Context, p *models.Property) error
	GetByID(ctx context.Context, propertyID string) (*models.Property, error)
	ListPending(ctx context.Context) ([]*models.Property, error)
	ListInspected(ctx context.Context, filters models.PropertyFilters) ([]*models.Property, error)
	ListBySeller(ctx context.Context, sellerEmail string) ([]*models.Property, error)
	// MarkInspected writes the inspection aggregates and flips status to
	// inspected. Only pending properties are updated.
	MarkInspected(ctx context.Context, propertyID string, result *models.InspectionResult, inspectedAt time.Time) error
}

type propertyRepository struct{}

// NewPropertyRepository creates a new PropertyRepository.
func NewPropertyRepository() PropertyRepository {
	return &propertyRepository{}
}

var _ PropertyRepository = (*propertyRepository)(nil)

const propertyColumns = `
	property_id, seller_name, seller_email, property_address, city, state, pincode,
	property_type, bedrooms, bathrooms, square_feet, price, description, nearby_landmarks,
	status, created_at, inspected_at, risk_score::float8, risk_level,
	total_renovation_cost_min, total_renovation_cost_max, affected_rooms, total_defects, critical_issues`

func (r *propertyRepository) Create(ctx context.Context, p *models.Property) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO properties (
			property_id, seller_name, seller_email, property_address, city, state, pincode,
			property_type, bedrooms, bathrooms, square_feet, price, description, nearby_landmarks, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`

	err := scope.Conn.QueryRow(ctx, query,
		p.ID, p.SellerName, p.SellerEmail, p.Address, p.City, p.State, p.Pincode,
		p.PropertyType, p.Bedrooms, p.Bathrooms, p.SquareFeet, p.Price, p.Description, p.NearbyLandmarks,
		string(p.Status),
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

func (r *propertyRepository) GetByID(ctx context.Context, propertyID string) (*models.Property, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `SELECT ` + propertyColumns + ` FROM properties WHERE property_id = $1`

	p, err := scanProperty(scope.Conn.QueryRow(ctx, query, propertyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

func (r *propertyRepository) ListPending(ctx context.Context) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + `
		FROM properties
		WHERE status = $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, string(models.PropertyPending))
}

func (r *propertyRepository) ListInspected(ctx context.Context, filters models.PropertyFilters) ([]*models.Property, error) {
	where := []string{"status = $1"}
	args := []any{string(models.PropertyInspected)}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(filters.RiskLevels) > 0 {
		levels := make([]string, len(filters.RiskLevels))
		for i, l := range filters.RiskLevels {
			levels[i] = string(l)
		}
		add("risk_level = ANY($%d)", levels)
	}
	if filters.MinPrice != nil {
		add("price >= $%d", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		add("price <= $%d", *filters.MaxPrice)
	}
	if filters.PropertyType != "" {
		add("property_type = $%d", filters.PropertyType)
	}
	if filters.City != "" {
		add("city ILIKE $%d", "%"+escapeLike(filters.City)+"%")
	}

	query := `SELECT ` + propertyColumns + `
		FROM properties
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY inspected_at DESC`
	return r.list(ctx, query, args...)
}

func (r *propertyRepository) ListBySeller(ctx context.Context, sellerEmail string) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + `
		FROM properties
		WHERE lower(seller_email) = lower($1)
		ORDER BY created_at DESC`
	return r.list(ctx, query, strings.TrimSpace(sellerEmail))
}

func (r *propertyRepository) MarkInspected(ctx context.Context, propertyID string, result *models.InspectionResult, inspectedAt time.Time) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		UPDATE properties SET
			status = $2,
			inspected_at = $3,
			risk_score = $4,
			risk_level = $5,
			total_renovation_cost_min = $6,
			total_renovation_cost_max = $7,
			affected_rooms = $8,
			total_defects = $9,
			critical_issues = $10
		WHERE property_id = $1 AND status = $11`

	tag, err := scope.Conn.Exec(ctx, query,
		propertyID,
		string(models.PropertyInspected),
		inspectedAt,
		result.RiskScore,
		string(result.RiskLevel),
		result.CostMin,
		result.CostMax,
		result.Stats.AffectedRooms,
		result.Stats.TotalDefects,
		result.Stats.CriticalIssues,
		string(models.PropertyPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark property inspected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("property %s is not pending: %w", propertyID, apperrors.ErrInvalidState)
	}
	return nil
}

func (r *propertyRepository) list(ctx context.Context, query string, args ...any) ([]*models.Property, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	properties := make([]*models.Property, 0)
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating properties: %w", err)
	}
	return properties, nil
}

func scanProperty(row pgx.Row) (*models.Property, error) {
	var (
		p         models.Property
		status    string
		riskLevel *string
	)
	err := row.Scan(
		&p.ID, &p.SellerName, &p.SellerEmail, &p.Address, &p.City, &p.State, &p.Pincode,
		&p.PropertyType, &p.Bedrooms, &p.Bathrooms, &p.SquareFeet, &p.Price, &p.Description, &p.NearbyLandmarks,
		&status, &p.CreatedAt, &p.InspectedAt, &p.RiskScore, &riskLevel,
		&p.CostMin, &p.CostMax, &p.AffectedRooms, &p.TotalDefects, &p.CriticalIssues,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.PropertyStatus(status)
	if riskLevel != nil {
		level := models.RiskLevel(*riskLevel)
		p.RiskLevel = &level
	}
	return &p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}
