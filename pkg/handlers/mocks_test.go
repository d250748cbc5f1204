package handlers

import (
	"context"
	"net/http"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/ratelimit"
	"github.com/nivaasika/nivaasika-engine/pkg/services"
)

// passthroughScope stands in for the database scope middleware.
func passthroughScope(next http.HandlerFunc) http.HandlerFunc { return next }

type mockPropertyService struct {
	createListingFunc  func(ctx context.Context, p *models.Property) (*models.Property, error)
	getPropertyFunc    func(ctx context.Context, id string) (*models.Property, error)
	listPendingFunc    func(ctx context.Context) ([]*models.Property, error)
	listInspectedFunc  func(ctx context.Context, f models.PropertyFilters) ([]*models.Property, error)
	listBySellerFunc   func(ctx context.Context, email string) ([]*models.Property, error)
	getReportFunc      func(ctx context.Context, id string) (*models.PropertyReport, error)
	dashboardStatsFunc func(ctx context.Context) (*models.DashboardStats, error)

	lastFilters models.PropertyFilters
}

func (m *mockPropertyService) CreateListing(ctx context.Context, p *models.Property) (*models.Property, error) {
	if m.createListingFunc != nil {
		return m.createListingFunc(ctx, p)
	}
	p.ID = "PROP_0000AAAA"
	p.Status = models.PropertyPending
	return p, nil
}

func (m *mockPropertyService) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	if m.getPropertyFunc != nil {
		return m.getPropertyFunc(ctx, id)
	}
	return &models.Property{ID: id, Status: models.PropertyPending}, nil
}

func (m *mockPropertyService) ListPending(ctx context.Context) ([]*models.Property, error) {
	if m.listPendingFunc != nil {
		return m.listPendingFunc(ctx)
	}
	return []*models.Property{}, nil
}

func (m *mockPropertyService) ListInspected(ctx context.Context, f models.PropertyFilters) ([]*models.Property, error) {
	m.lastFilters = f
	if m.listInspectedFunc != nil {
		return m.listInspectedFunc(ctx, f)
	}
	return []*models.Property{}, nil
}

func (m *mockPropertyService) ListBySeller(ctx context.Context, email string) ([]*models.Property, error) {
	if m.listBySellerFunc != nil {
		return m.listBySellerFunc(ctx, email)
	}
	return []*models.Property{}, nil
}

func (m *mockPropertyService) GetReport(ctx context.Context, id string) (*models.PropertyReport, error) {
	if m.getReportFunc != nil {
		return m.getReportFunc(ctx, id)
	}
	return &models.PropertyReport{Property: &models.Property{ID: id}}, nil
}

func (m *mockPropertyService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	if m.dashboardStatsFunc != nil {
		return m.dashboardStatsFunc(ctx)
	}
	return &models.DashboardStats{}, nil
}

var _ services.PropertyService = (*mockPropertyService)(nil)

type mockInspectionService struct {
	startFunc      func(ctx context.Context, id string) (*services.Session, error)
	getSessionFunc func(id string) (*services.Session, error)
	analyzeFunc    func(ctx context.Context, id, room string, images [][]byte, notes string) (*services.RoomAnalysis, error)
	submitFunc     func(ctx context.Context, id string, in services.ManualFinding) (*services.Session, error)
	previewFunc    func(ctx context.Context, id string) (*models.InspectionResult, error)
	finalizeFunc   func(ctx context.Context, id, email string) (*services.FinalizeResult, error)
	abortFunc      func(id string) error
	status         ratelimit.Status
}

func (m *mockInspectionService) StartInspection(ctx context.Context, id string) (*services.Session, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, id)
	}
	return &services.Session{PropertyID: id, State: services.StateAwaitingRooms}, nil
}

func (m *mockInspectionService) GetSession(id string) (*services.Session, error) {
	if m.getSessionFunc != nil {
		return m.getSessionFunc(id)
	}
	return &services.Session{PropertyID: id, State: services.StateAwaitingRooms}, nil
}

func (m *mockInspectionService) ListSessions() []*services.Session {
	return []*services.Session{}
}

func (m *mockInspectionService) AnalyzeRoom(ctx context.Context, id, room string, images [][]byte, notes string) (*services.RoomAnalysis, error) {
	if m.analyzeFunc != nil {
		return m.analyzeFunc(ctx, id, room, images, notes)
	}
	return &services.RoomAnalysis{Room: room}, nil
}

func (m *mockInspectionService) SubmitFinding(ctx context.Context, id string, in services.ManualFinding) (*services.Session, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, id, in)
	}
	return &services.Session{PropertyID: id, State: services.StateReadyToSubmit}, nil
}

func (m *mockInspectionService) ComputePreview(ctx context.Context, id string) (*models.InspectionResult, error) {
	if m.previewFunc != nil {
		return m.previewFunc(ctx, id)
	}
	return &models.InspectionResult{RiskLevel: models.RiskLow}, nil
}

func (m *mockInspectionService) FinalizeInspection(ctx context.Context, id, email string) (*services.FinalizeResult, error) {
	if m.finalizeFunc != nil {
		return m.finalizeFunc(ctx, id, email)
	}
	return &services.FinalizeResult{}, nil
}

func (m *mockInspectionService) Abort(id string) error {
	if m.abortFunc != nil {
		return m.abortFunc(id)
	}
	return nil
}

func (m *mockInspectionService) RateLimitStatus(ctx context.Context) (ratelimit.Status, error) {
	return m.status, nil
}

var _ services.InspectionService = (*mockInspectionService)(nil)
