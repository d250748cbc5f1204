package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/services"
)

// Upload limits for one room visit.
const (
	MaxImagesPerRoom = 10
	MaxImageBytes    = 10 << 20
	maxRoomUpload    = MaxImagesPerRoom*MaxImageBytes + 1<<20
	multipartMemory  = 32 << 20
)

var acceptedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ============================================================================
// Request/Response Types
// ============================================================================

// FinalizeRequest for POST /api/inspections/{pid}/finalize
type FinalizeRequest struct {
	InspectorEmail string `json:"inspector_email"`
}

// SessionListResponse for GET /api/inspections
type SessionListResponse struct {
	Sessions []*services.Session `json:"sessions"`
	Total    int                 `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// InspectionHandler drives the inspector workflow.
type InspectionHandler struct {
	inspectionService services.InspectionService
	logger            *zap.Logger
}

// NewInspectionHandler creates a new inspection handler.
func NewInspectionHandler(inspectionService services.InspectionService, logger *zap.Logger) *InspectionHandler {
	return &InspectionHandler{
		inspectionService: inspectionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the inspection handler's routes on the given mux.
// Room analysis and manual findings only touch the in-memory session, so
// they do not hold a database connection while the classifier runs.
func (h *InspectionHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/inspections/{pid}"

	mux.HandleFunc("GET /api/inspections", h.ListSessions)
	mux.HandleFunc("POST "+base, scope(h.Start))
	mux.HandleFunc("GET "+base, h.GetSession)
	mux.HandleFunc("POST "+base+"/rooms/{room}", h.AnalyzeRoom)
	mux.HandleFunc("POST "+base+"/findings", h.SubmitFinding)
	mux.HandleFunc("GET "+base+"/preview", scope(h.Preview))
	mux.HandleFunc("POST "+base+"/finalize", scope(h.Finalize))
	mux.HandleFunc("DELETE "+base, h.Abort)
	mux.HandleFunc("GET /api/rate-limit", h.RateLimit)
}

// ListSessions handles GET /api/inspections
func (h *InspectionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.inspectionService.ListSessions()
	writeData(w, http.StatusOK, SessionListResponse{Sessions: sessions, Total: len(sessions)}, h.logger)
}

// Start handles POST /api/inspections/{pid}
func (h *InspectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	sess, err := h.inspectionService.StartInspection(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err, "start_inspection_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, sess, h.logger)
}

// GetSession handles GET /api/inspections/{pid}
func (h *InspectionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	sess, err := h.inspectionService.GetSession(propertyID)
	if err != nil {
		writeServiceError(w, err, "get_inspection_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, sess, h.logger)
}

// AnalyzeRoom handles POST /api/inspections/{pid}/rooms/{room}
// Multipart form: repeated "images" file parts plus an optional "notes" field.
func (h *InspectionHandler) AnalyzeRoom(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRoomUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the size limit", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form", h.logger)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	images, msg := readImages(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_image", msg, h.logger)
		return
	}

	analysis, err := h.inspectionService.AnalyzeRoom(r.Context(), propertyID, r.PathValue("room"), images, r.FormValue("notes"))
	if err != nil {
		writeServiceError(w, err, "analyze_room_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, analysis, h.logger)
}

// readImages loads every "images" part, keeping upload order. It returns a
// client-facing message when a part is rejected.
func readImages(r *http.Request) ([][]byte, string) {
	headers := r.MultipartForm.File["images"]
	if len(headers) > MaxImagesPerRoom {
		return nil, fmt.Sprintf("At most %d images per room", MaxImagesPerRoom)
	}

	images := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > MaxImageBytes {
			return nil, fmt.Sprintf("%s exceeds %d MB", fh.Filename, MaxImageBytes>>20)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Sprintf("Could not read %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil || len(data) == 0 {
			return nil, fmt.Sprintf("Could not read %s", fh.Filename)
		}
		if !acceptedImageTypes[http.DetectContentType(data)] {
			return nil, fmt.Sprintf("%s is not a JPEG, PNG or WebP image", fh.Filename)
		}
		images = append(images, data)
	}
	return images, ""
}

// SubmitFinding handles POST /api/inspections/{pid}/findings
func (h *InspectionHandler) SubmitFinding(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	var req services.ManualFinding
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	sess, err := h.inspectionService.SubmitFinding(r.Context(), propertyID, req)
	if err != nil {
		writeServiceError(w, err, "submit_finding_failed", h.logger)
		return
	}
	writeData(w, http.StatusCreated, sess, h.logger)
}

// Preview handles GET /api/inspections/{pid}/preview
func (h *InspectionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.inspectionService.ComputePreview(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err, "preview_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, result, h.logger)
}

// Finalize handles POST /api/inspections/{pid}/finalize
func (h *InspectionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	out, err := h.inspectionService.FinalizeInspection(r.Context(), propertyID, strings.TrimSpace(req.InspectorEmail))
	if err != nil {
		writeServiceError(w, err, "finalize_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, out, h.logger)
}

// Abort handles DELETE /api/inspections/{pid}
func (h *InspectionHandler) Abort(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := ParsePropertyID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.inspectionService.Abort(propertyID); err != nil {
		writeServiceError(w, err, "abort_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"property_id": propertyID, "state": "aborted"}, h.logger)
}

// RateLimit handles GET /api/rate-limit
func (h *InspectionHandler) RateLimit(w http.ResponseWriter, r *http.Request) {
	status, err := h.inspectionService.RateLimitStatus(r.Context())
	if err != nil {
		writeServiceError(w, err, "rate_limit_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"limit":            status.Limit,
		"remaining":        status.Remaining,
		"reset_in_seconds": int(status.ResetIn.Seconds() + 0.999),
	}, h.logger)
}
