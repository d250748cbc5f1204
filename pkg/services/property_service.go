package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/repositories"
)

// PropertyService covers the seller and buyer sides of the marketplace.
type PropertyService interface {
	// CreateListing validates a seller submission and stores it as pending.
	CreateListing(ctx context.Context, p *models.Property) (*models.Property, error)
	GetProperty(ctx context.Context, propertyID string) (*models.Property, error)
	ListPending(ctx context.Context) ([]*models.Property, error)
	ListInspected(ctx context.Context, filters models.PropertyFilters) ([]*models.Property, error)
	ListBySeller(ctx context.Context, sellerEmail string) ([]*models.Property, error)
	// GetReport gathers everything a buyer sees for one property.
	GetReport(ctx context.Context, propertyID string) (*models.PropertyReport, error)
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

type propertyService struct {
	properties   repositories.PropertyRepository
	findings     repositories.FindingRepository
	improvements repositories.ImprovementRepository
	summaries    repositories.SummaryRepository
	queries      repositories.QueryRepository
	logger       *zap.Logger
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(
	properties repositories.PropertyRepository,
	findings repositories.FindingRepository,
	improvements repositories.ImprovementRepository,
	summaries repositories.SummaryRepository,
	queries repositories.QueryRepository,
	logger *zap.Logger,
) PropertyService {
	return &propertyService{
		properties:   properties,
		findings:     findings,
		improvements: improvements,
		summaries:    summaries,
		queries:      queries,
		logger:       logger.Named("property-service"),
	}
}

var _ PropertyService = (*propertyService)(nil)

func (s *propertyService) CreateListing(ctx context.Context, p *models.Property) (*models.Property, error) {
	if p == nil {
		return nil, apperrors.NewValidationError("property", "is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Price < 0 {
		return nil, apperrors.NewValidationError("price", "must not be negative")
	}
	if p.Bedrooms < 0 || p.Bathrooms < 0 || p.SquareFeet < 0 {
		return nil, apperrors.NewValidationError("square_feet", "room counts and area must not be negative")
	}
	p.ApplyDefaults()
	p.SellerEmail = strings.TrimSpace(p.SellerEmail)
	p.ID = models.NewID(models.PropertyIDPrefix)
	p.Status = models.PropertyPending

	if err := s.properties.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.logger.Info("Listing created",
		zap.String("property_id", p.ID),
		zap.String("city", p.City),
		zap.String("property_type", p.PropertyType))
	return p, nil
}

func (s *propertyService) GetProperty(ctx context.Context, propertyID string) (*models.Property, error) {
	return s.properties.GetByID(ctx, propertyID)
}

func (s *propertyService) ListPending(ctx context.Context) ([]*models.Property, error) {
	return s.properties.ListPending(ctx)
}

func (s *propertyService) ListInspected(ctx context.Context, filters models.PropertyFilters) ([]*models.Property, error) {
	if filters.MinPrice != nil && filters.MaxPrice != nil && *filters.MinPrice > *filters.MaxPrice {
		return nil, apperrors.NewValidationError("min_price", "must not exceed max_price")
	}
	for _, level := range filters.RiskLevels {
		switch level {
		case models.RiskLow, models.RiskMedium, models.RiskHigh:
		default:
			return nil, apperrors.NewValidationError("risk", fmt.Sprintf("unknown risk level %q", level))
		}
	}
	return s.properties.ListInspected(ctx, filters)
}

func (s *propertyService) ListBySeller(ctx context.Context, sellerEmail string) ([]*models.Property, error) {
	if !models.ValidEmail(sellerEmail) {
		return nil, apperrors.NewValidationError("seller_email", "must be a valid email address")
	}
	return s.properties.ListBySeller(ctx, sellerEmail)
}

func (s *propertyService) GetReport(ctx context.Context, propertyID string) (*models.PropertyReport, error) {
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	report := &models.PropertyReport{
		Property:     property,
		Findings:     []models.Finding{},
		Improvements: []models.Improvement{},
	}
	if property.Status != models.PropertyInspected {
		return report, nil
	}

	if report.Findings, err = s.findings.ListByProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	if report.Improvements, err = s.improvements.ListByProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	summary, err := s.summaries.GetByProperty(ctx, propertyID)
	switch {
	case err == nil:
		report.Summary = summary
	case errors.Is(err, apperrors.ErrNotFound):
		s.logger.Warn("Inspected property has no summary", zap.String("property_id", propertyID))
	default:
		return nil, err
	}
	return report, nil
}

const dashboardStatsQuery = `
	SELECT
		COUNT(*) FILTER (WHERE status = $1) AS inspected,
		COUNT(*) FILTER (WHERE status = $2) AS pending,
		COUNT(*) FILTER (WHERE status = $1 AND risk_level = $3) AS low_risk
	FROM properties`

func (s *propertyService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	res, err := s.queries.Query(ctx, dashboardStatsQuery,
		string(models.PropertyInspected), string(models.PropertyPending), string(models.RiskLow))
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}
	if res.RowCount() != 1 || len(res.Rows[0]) != 3 {
		return nil, fmt.Errorf("unexpected dashboard stats shape: %d rows", res.RowCount())
	}

	stats := &models.DashboardStats{}
	targets := []*int64{&stats.Inspected, &stats.Pending, &stats.LowRisk}
	for i, v := range res.Rows[0] {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected %s value %T", res.Columns[i], v)
		}
		*targets[i] = n
	}
	return stats, nil
}
