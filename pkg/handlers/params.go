package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

var propertyIDPattern = regexp.MustCompile(`^` + models.PropertyIDPrefix + `[0-9A-F]{8}$`)

// ParsePropertyID extracts and validates the property ID from the request path.
// On failure it writes a 400 and returns false.
// Expects path parameter: pid
func ParsePropertyID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	id := strings.ToUpper(strings.TrimSpace(r.PathValue("pid")))
	if !propertyIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid_property_id", "Invalid property ID format", logger)
		return "", false
	}
	return id, true
}

// parseOptionalInt64 reads a non-negative integer query parameter.
// Missing or empty parameters return nil.
func parseOptionalInt64(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (*int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_parameter", name+" must be a non-negative integer", logger)
		return nil, false
	}
	return &n, true
}

// parseRiskLevels accepts repeated or comma-separated risk parameters,
// case-insensitively.
func parseRiskLevels(r *http.Request) []models.RiskLevel {
	var levels []models.RiskLevel
	for _, v := range r.URL.Query()["risk"] {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			levels = append(levels, models.RiskLevel(strings.ToUpper(part[:1])+strings.ToLower(part[1:])))
		}
	}
	return levels
}
