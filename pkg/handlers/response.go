package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
)

// ApiResponse is the envelope for every JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps service errors onto HTTP statuses. Only validation
// messages are echoed to the client; everything else is logged.
func writeServiceError(w http.ResponseWriter, err error, failureCode string, logger *zap.Logger) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error(), logger)
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), logger)
	case errors.Is(err, apperrors.ErrInvalidState), errors.Is(err, apperrors.ErrConflict):
		writeError(w, http.StatusConflict, "invalid_state", err.Error(), logger)
	case errors.Is(err, apperrors.ErrPersistence):
		logger.Error("Persistence failure", zap.String("code", failureCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, failureCode, "Could not save; nothing was written, please retry", logger)
	default:
		logger.Error("Request failed", zap.String("code", failureCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, failureCode, "Internal server error", logger)
	}
}
