package models

import (
	"strings"
	"time"
)

// DefectType is the category of a defect found during inspection.
type DefectType string

const (
	DefectCrack      DefectType = "crack"
	DefectDamp       DefectType = "damp"
	DefectWiring     DefectType = "wiring"
	DefectLeak       DefectType = "leak"
	DefectStructural DefectType = "structural"
	DefectFinishing  DefectType = "finishing"
)

// AllDefectTypes lists the defect categories in display order.
var AllDefectTypes = []DefectType{
	DefectCrack, DefectDamp, DefectWiring, DefectLeak, DefectStructural, DefectFinishing,
}

// ParseDefectType normalizes case and whitespace. Unrecognized values map to finishing.
func ParseDefectType(s string) DefectType {
	dt := DefectType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDefectTypes {
		if dt == known {
			return dt
		}
	}
	return DefectFinishing
}

// FindingSource records where a finding came from.
type FindingSource string

const (
	SourceImageAI        FindingSource = "image_ai"
	SourceInspectorNotes FindingSource = "inspector_notes"
)

// Severity bounds.
const (
	MinSeverity      = 1
	MaxSeverity      = 10
	CriticalSeverity = 8
)

// ClampSeverity forces a severity into [MinSeverity, MaxSeverity].
func ClampSeverity(n int) int {
	if n < MinSeverity {
		return MinSeverity
	}
	if n > MaxSeverity {
		return MaxSeverity
	}
	return n
}

// Finding is a single observed defect. Values are not mutated once created.
type Finding struct {
	ID          string        `json:"finding_id,omitempty"`
	PropertyID  string        `json:"property_id,omitempty"`
	RoomName    string        `json:"room_name"`
	DefectType  DefectType    `json:"defect_type"`
	Severity    int           `json:"severity"`
	Description string        `json:"description"`
	Source      FindingSource `json:"source"`
}

// NewFinding builds a Finding with normalized defect type and clamped severity.
func NewFinding(room, defectType string, severity int, description string, source FindingSource) Finding {
	return Finding{
		RoomName:    room,
		DefectType:  ParseDefectType(defectType),
		Severity:    ClampSeverity(severity),
		Description: description,
		Source:      source,
	}
}

// IsCritical reports whether the finding counts toward critical issues.
func (f Finding) IsCritical() bool {
	return f.Severity >= CriticalSeverity
}

// Priority ranks how urgently a recommendation should be acted on.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// PriorityRank orders priorities for sorting. Unknown values sort last.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

// ImprovementRule maps a defect type and inclusive severity band to a remediation.
// Stored in improvement_rules.
type ImprovementRule struct {
	ID          string     `json:"rule_id" yaml:"id"`
	DefectType  DefectType `json:"defect_type" yaml:"defect_type"`
	SeverityMin int        `json:"severity_min" yaml:"severity_min"`
	SeverityMax int        `json:"severity_max" yaml:"severity_max"`
	Action      string     `json:"improvement_action" yaml:"action"`
	CostRange   string     `json:"estimated_cost_range" yaml:"cost_range"`
	Priority    Priority   `json:"priority" yaml:"priority"`
}

// Matches reports whether severity falls inside the rule's band.
func (r ImprovementRule) Matches(severity int) bool {
	return severity >= r.SeverityMin && severity <= r.SeverityMax
}

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Recommendation is one remediation per defect type present in the findings.
type Recommendation struct {
	DefectType    DefectType `json:"defect_type"`
	Action        string     `json:"action"`
	CostRange     string     `json:"cost_range"`
	Priority      Priority   `json:"priority"`
	AffectedRooms string     `json:"affected_rooms"`
	Count         int        `json:"count"`
}

// Statistics are aggregate counts over a finding set.
type Statistics struct {
	TotalDefects   int                `json:"total_defects"`
	CriticalIssues int                `json:"critical_issues"`
	AffectedRooms  int                `json:"affected_rooms"`
	DefectCounts   map[DefectType]int `json:"defect_counts"`
}

// InspectionResult is the computed outcome of an inspection.
type InspectionResult struct {
	RiskScore       float64          `json:"risk_score"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	CostMin         int64            `json:"cost_min"`
	CostMax         int64            `json:"cost_max"`
	Recommendations []Recommendation `json:"recommendations"`
	Stats           Statistics       `json:"stats"`
}

// Improvement is a persisted recommendation. Stored in property_improvements.
type Improvement struct {
	ID            string     `json:"improvement_id"`
	PropertyID    string     `json:"property_id"`
	DefectType    DefectType `json:"defect_type"`
	Action        string     `json:"improvement_action"`
	CostRange     string     `json:"estimated_cost_range"`
	Priority      Priority   `json:"priority"`
	Count         int        `json:"defect_count"`
	AffectedRooms string     `json:"affected_rooms"`
}

// InspectionSummary is the narrative written at finalize. Stored in inspection_summaries.
type InspectionSummary struct {
	ID             string    `json:"summary_id"`
	PropertyID     string    `json:"property_id"`
	SummaryText    string    `json:"summary_text"`
	TotalDefects   int       `json:"total_defects"`
	CriticalIssues int       `json:"critical_issues"`
	AffectedRooms  int       `json:"affected_rooms"`
	InspectorEmail string    `json:"inspector_email"`
	CreatedAt      time.Time `json:"created_at"`
}
