package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/export"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/services"
)

// ScopeMiddleware attaches a database scope to the request context.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ============================================================================
// Request/Response Types
// ============================================================================

// CreatePropertyRequest for POST /api/properties
type CreatePropertyRequest struct {
	SellerName      string `json:"seller_name"`
	SellerEmail     string `json:"seller_email"`
	Address         string `json:"property_address"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`
	PropertyType    string `json:"property_type"`
	Bedrooms        int    `json:"bedrooms"`
	Bathrooms       int    `json:"bathrooms"`
	SquareFeet      int    `json:"square_feet"`
	Price           int64  `json:"price"`
	Description     string `json:"description"`
	NearbyLandmarks string `json:"nearby_landmarks"`
}

// PropertyListResponse for GET /api/properties
type PropertyListResponse struct {
	Properties []*models.Property `json:"properties"`
	Total      int                `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// PropertyHandler serves seller listings and buyer reports.
type PropertyHandler struct {
	propertyService services.PropertyService
	logger          *zap.Logger
}

// NewPropertyHandler creates a new property handler.
func NewPropertyHandler(propertyService services.PropertyService, logger *zap.Logger) *PropertyHandler {
	return &PropertyHandler{
		propertyService: propertyService,
		logger:          logger,
	}
}

// RegisterRoutes registers the property handler's routes on the given mux.
func (h *PropertyHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/properties", scope(h.Create))
	mux.HandleFunc("GET /api/properties", scope(h.List))
	mux.HandleFunc("GET /api/properties/{pid}", scope(h.Get))
	mux.HandleFunc("GET /api/properties/{pid}/report", scope(h.Report))
	mux.HandleFunc("GET /api/properties/{pid}/report.xlsx", scope(h.ReportXLSX))
	mux.HandleFunc("GET /api/sellers/{email}/properties", scope(h.ListBySeller))
	mux.HandleFunc("GET /api/stats", scope(h.Stats))
}

// Create handles POST /api/properties
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}

	property, err := h.propertyService.CreateListing(r.Context(), &models.Property{
		SellerName:      req.SellerName,
		SellerEmail:     req.SellerEmail,
		Address:         req.Address,
		City:            req.City,
		State:           req.State,
		Pincode:         req.Pincode,
		PropertyType:    req.PropertyType,
		Bedrooms:        req.Bedrooms,
		Bathrooms:       req.Bathrooms,
		SquareFeet:      req.SquareFeet,
		Price:           req.Price,
		Description:     req.Description,
		NearbyLandmarks: req.NearbyLandmarks,
	})
	if err != nil {
		writeServiceError(w, err, "create_property_failed", h.logger)
		return
	}
	writeData(w, http.StatusCreated, property, h.logger)
}

// List handles GET /api/properties?status=pending|inspected&risk=&min_price=&max_price=&type=&city=
// Status defaults to inspected, the buyer view.
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		properties []*models.Property
		err        error
	)
	switch status := strings.ToLower(strings.TrimSpace(q.Get("status"))); status {
	case string(models.PropertyPending):
		properties, err = h.propertyService.ListPending(r.Context())
	case "", string(models.PropertyInspected):
		minPrice, ok := parseOptionalInt64(w, r, "min_price", h.logger)
		if !ok {
			return
		}
		maxPrice, ok := parseOptionalInt64(w, r, "max_price", h.logger)
		if !ok {
			return
		}
		properties, err = h.propertyService.ListInspected(r.Context(), models.PropertyFilters{
			RiskLevels:   parseRiskLevels(r),
			MinPrice:     minPrice,
			MaxPrice:     maxPrice,
			PropertyType: strings.TrimSpace(q.Get("type")),
			City:         strings.TrimSpace(q.Get("city")),
		})
	default:
		writeError(w, http.StatusBadRequest, "invalid_parameter",
			fmt.Sprintf("status must be %q or %q", models.PropertyPending, models.PropertyInspected), h.logger)
		return
	}
	if err != nil {
		writeServiceError(w, err, "list_properties_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, PropertyListResponse{Properties: properties, Total: len(properties)}, h.logger)
}

// Get handles GET /api/properties/{pid}
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	property, err := h.propertyService.GetProperty(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err, "get_property_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, property, h.logger)
}

// Report handles GET /api/properties/{pid}/report
func (h *PropertyHandler) Report(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	report, err := h.propertyService.GetReport(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err, "get_report_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, report, h.logger)
}

// ReportXLSX handles GET /api/properties/{pid}/report.xlsx
func (h *PropertyHandler) ReportXLSX(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	report, err := h.propertyService.GetReport(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err, "get_report_failed", h.logger)
		return
	}

	data, err := export.ReportWorkbook(report)
	if err != nil {
		writeServiceError(w, err, "export_report_failed", h.logger)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_report.xlsx"`, propertyID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write report", zap.String("property_id", propertyID), zap.Error(err))
	}
}

// ListBySeller handles GET /api/sellers/{email}/properties
func (h *PropertyHandler) ListBySeller(w http.ResponseWriter, r *http.Request) {
	properties, err := h.propertyService.ListBySeller(r.Context(), r.PathValue("email"))
	if err != nil {
		writeServiceError(w, err, "list_properties_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, PropertyListResponse{Properties: properties, Total: len(properties)}, h.logger)
}

// Stats handles GET /api/stats
func (h *PropertyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.propertyService.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err, "stats_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, stats, h.logger)
}
