package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/export"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

func newPropertyMux(svc *mockPropertyService) *http.ServeMux {
	mux := http.NewServeMux()
	NewPropertyHandler(svc, zap.NewNop()).RegisterRoutes(mux, passthroughScope)
	return mux
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPropertyHandler_Create(t *testing.T) {
	svc := &mockPropertyService{}
	body := `{"seller_name":"Asha","seller_email":"asha@example.com","property_address":"14 Lake View Road",
		"city":"Bengaluru","state":"Karnataka","pincode":"560001","price":7500000,"bedrooms":2}`

	rec := serve(newPropertyMux(svc), httptest.NewRequest(http.MethodPost, "/api/properties", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Success bool            `json:"success"`
		Data    models.Property `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "PROP_0000AAAA", resp.Data.ID)
	assert.Equal(t, int64(7500000), resp.Data.Price)
	assert.Equal(t, "14 Lake View Road", resp.Data.Address)
}

func TestPropertyHandler_Create_Errors(t *testing.T) {
	svc := &mockPropertyService{
		createListingFunc: func(ctx context.Context, p *models.Property) (*models.Property, error) {
			return nil, apperrors.NewValidationError("seller_email", "must be a valid email address")
		},
	}
	mux := newPropertyMux(svc)

	rec := serve(mux, httptest.NewRequest(http.MethodPost, "/api/properties", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeEnvelope(t, rec).Error)

	rec = serve(mux, httptest.NewRequest(http.MethodPost, "/api/properties", strings.NewReader(`{"seller_email":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Contains(t, resp.Message, "seller_email")
}

func TestPropertyHandler_ListInspectedFilters(t *testing.T) {
	svc := &mockPropertyService{}
	rec := serve(newPropertyMux(svc), httptest.NewRequest(http.MethodGet,
		"/api/properties?risk=low,medium&min_price=1000000&max_price=9000000&type=Villa&city=Pune", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	f := svc.lastFilters
	assert.Equal(t, []models.RiskLevel{models.RiskLow, models.RiskMedium}, f.RiskLevels)
	require.NotNil(t, f.MinPrice)
	assert.Equal(t, int64(1000000), *f.MinPrice)
	assert.Equal(t, int64(9000000), *f.MaxPrice)
	assert.Equal(t, "Villa", f.PropertyType)
	assert.Equal(t, "Pune", f.City)
}

func TestPropertyHandler_ListPending(t *testing.T) {
	svc := &mockPropertyService{
		listPendingFunc: func(ctx context.Context) ([]*models.Property, error) {
			return []*models.Property{{ID: "PROP_00000001"}, {ID: "PROP_00000002"}}, nil
		},
	}
	rec := serve(newPropertyMux(svc), httptest.NewRequest(http.MethodGet, "/api/properties?status=pending", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data PropertyListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Total)
}

func TestPropertyHandler_List_BadParams(t *testing.T) {
	mux := newPropertyMux(&mockPropertyService{})

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties?status=sold", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties?max_price=lots", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPropertyHandler_Get(t *testing.T) {
	svc := &mockPropertyService{
		getPropertyFunc: func(ctx context.Context, id string) (*models.Property, error) {
			if id == "PROP_0000AAAA" {
				return &models.Property{ID: id}, nil
			}
			return nil, apperrors.ErrNotFound
		},
	}
	mux := newPropertyMux(svc)

	assert.Equal(t, http.StatusOK, serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties/PROP_0000AAAA", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties/PROP_0000BBBB", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties/nope", nil)).Code)
}

func TestPropertyHandler_ReportXLSX(t *testing.T) {
	svc := &mockPropertyService{
		getReportFunc: func(ctx context.Context, id string) (*models.PropertyReport, error) {
			return &models.PropertyReport{
				Property: &models.Property{ID: id, Status: models.PropertyInspected},
				Findings: []models.Finding{{RoomName: "Kitchen", DefectType: models.DefectCrack, Severity: 5}},
			}, nil
		},
	}
	rec := serve(newPropertyMux(svc), httptest.NewRequest(http.MethodGet, "/api/properties/PROP_0000AAAA/report.xlsx", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "PROP_0000AAAA_report.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.FindingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPropertyHandler_ReportNotFound(t *testing.T) {
	svc := &mockPropertyService{
		getReportFunc: func(ctx context.Context, id string) (*models.PropertyReport, error) {
			return nil, fmt.Errorf("property %s: %w", id, apperrors.ErrNotFound)
		},
	}
	mux := newPropertyMux(svc)
	assert.Equal(t, http.StatusNotFound, serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties/PROP_0000AAAA/report", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(mux, httptest.NewRequest(http.MethodGet, "/api/properties/PROP_0000AAAA/report.xlsx", nil)).Code)
}

func TestPropertyHandler_ListBySeller(t *testing.T) {
	var gotEmail string
	svc := &mockPropertyService{
		listBySellerFunc: func(ctx context.Context, email string) ([]*models.Property, error) {
			gotEmail = email
			return []*models.Property{{ID: "PROP_00000001"}}, nil
		},
	}
	rec := serve(newPropertyMux(svc), httptest.NewRequest(http.MethodGet, "/api/sellers/asha@example.com/properties", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "asha@example.com", gotEmail)
}

func TestPropertyHandler_Stats(t *testing.T) {
	svc := &mockPropertyService{
		dashboardStatsFunc: func(ctx context.Context) (*models.DashboardStats, error) {
			return &models.DashboardStats{Inspected: 4, Pending: 2, LowRisk: 1}, nil
		},
	}
	rec := serve(newPropertyMux(svc), httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data models.DashboardStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DashboardStats{Inspected: 4, Pending: 2, LowRisk: 1}, resp.Data)
}
