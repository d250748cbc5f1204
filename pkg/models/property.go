package models

import (
	"strings"
	"time"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
)

// PropertyStatus tracks where a listing is in the inspection lifecycle.
type PropertyStatus string

const (
	PropertyPending   PropertyStatus = "pending"
	PropertyInspected PropertyStatus = "inspected"
)

// Property types offered to sellers.
var PropertyTypes = []string{"Apartment", "Independent House", "Villa", "Penthouse", "Studio Apartment"}

// Rooms an inspector can walk through.
var InspectionRooms = []string{
	"Kitchen", "Living Room", "Master Bedroom", "Bedroom 2", "Bedroom 3",
	"Bathroom 1", "Bathroom 2", "Balcony", "Other",
}

// Property is a seller listing. Inspection aggregates are filled at finalize.
type Property struct {
	ID              string         `json:"property_id"`
	SellerName      string         `json:"seller_name"`
	SellerEmail     string         `json:"seller_email"`
	Address         string         `json:"property_address"`
	City            string         `json:"city"`
	State           string         `json:"state"`
	Pincode         string         `json:"pincode"`
	PropertyType    string         `json:"property_type"`
	Bedrooms        int            `json:"bedrooms"`
	Bathrooms       int            `json:"bathrooms"`
	SquareFeet      int            `json:"square_feet"`
	Price           int64          `json:"price"`
	Description     string         `json:"description"`
	NearbyLandmarks string         `json:"nearby_landmarks"`
	Status          PropertyStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	InspectedAt     *time.Time     `json:"inspected_at,omitempty"`

	RiskScore      *float64   `json:"risk_score,omitempty"`
	RiskLevel      *RiskLevel `json:"risk_level,omitempty"`
	CostMin        *int64     `json:"total_renovation_cost_min,omitempty"`
	CostMax        *int64     `json:"total_renovation_cost_max,omitempty"`
	AffectedRooms  *int       `json:"affected_rooms,omitempty"`
	TotalDefects   *int       `json:"total_defects,omitempty"`
	CriticalIssues *int       `json:"critical_issues,omitempty"`
}

// Validate checks the fields a seller must supply.
func (p *Property) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"seller_name", p.SellerName},
		{"seller_email", p.SellerEmail},
		{"property_address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"pincode", p.Pincode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperrors.NewValidationError(r.field, "is required")
		}
	}
	if !ValidEmail(p.SellerEmail) {
		return apperrors.NewValidationError("seller_email", "must be a valid email address")
	}
	return nil
}

// ApplyDefaults fills optional free-text fields left empty by the seller.
func (p *Property) ApplyDefaults() {
	if strings.TrimSpace(p.Description) == "" {
		p.Description = "No description provided"
	}
	if strings.TrimSpace(p.NearbyLandmarks) == "" {
		p.NearbyLandmarks = "Not specified"
	}
	if p.PropertyType == "" {
		p.PropertyType = PropertyTypes[0]
	}
}

// ValidEmail is the minimal check used for seller and inspector addresses.
func ValidEmail(email string) bool {
	return strings.Contains(strings.TrimSpace(email), "@")
}

// PropertyFilters narrows the buyer listing of inspected properties.
type PropertyFilters struct {
	RiskLevels   []RiskLevel
	MinPrice     *int64
	MaxPrice     *int64
	PropertyType string
	City         string
}

// PropertyReport is everything a buyer sees for one inspected property.
type PropertyReport struct {
	Property     *Property          `json:"property"`
	Findings     []Finding          `json:"findings"`
	Improvements []Improvement      `json:"improvements"`
	Summary      *InspectionSummary `json:"summary,omitempty"`
}

// DashboardStats are the marketplace counters shown on the buyer page.
type DashboardStats struct {
	Inspected int64 `json:"inspected"`
	Pending   int64 `json:"pending"`
	LowRisk   int64 `json:"low_risk"`
}
