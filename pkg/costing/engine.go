// Package costing maps findings to remediation rules, cost totals and recommendations.
package costing

import (
	"context"
	"sort"
	"strings"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/scoring"
)

// RuleSource supplies the current improvement rules. Rules are read fresh on
// every evaluation so table edits apply to the next inspection.
type RuleSource interface {
	ListRules(ctx context.Context) ([]models.ImprovementRule, error)
}

// RuleBook groups rules by defect type, preserving table order within a type.
type RuleBook struct {
	byType map[models.DefectType][]models.ImprovementRule
}

// NewRuleBook indexes rules. The input order decides first-match-wins.
func NewRuleBook(rules []models.ImprovementRule) *RuleBook {
	rb := &RuleBook{byType: make(map[models.DefectType][]models.ImprovementRule)}
	for _, r := range rules {
		rb.byType[r.DefectType] = append(rb.byType[r.DefectType], r)
	}
	return rb
}

// Match returns the first rule for t whose band contains severity.
func (rb *RuleBook) Match(t models.DefectType, severity int) (models.ImprovementRule, bool) {
	for _, r := range rb.byType[t] {
		if r.Matches(severity) {
			return r, true
		}
	}
	return models.ImprovementRule{}, false
}

// Len returns the number of indexed rules.
func (rb *RuleBook) Len() int {
	n := 0
	for _, rs := range rb.byType {
		n += len(rs)
	}
	return n
}

// Engine evaluates findings against a RuleBook.
type Engine struct {
	rules *RuleBook
}

// NewEngine creates an Engine over rules.
func NewEngine(rules []models.ImprovementRule) *Engine {
	return &Engine{rules: NewRuleBook(rules)}
}

// RenovationCosts sums the matched cost range of every finding. Two findings
// of the same type and band each add the range.
func (e *Engine) RenovationCosts(findings []models.Finding) (min, max int64) {
	for _, f := range findings {
		rule, ok := e.rules.Match(f.DefectType, f.Severity)
		if !ok {
			continue
		}
		lo, hi := ParseCostRange(rule.CostRange)
		min += lo
		max += hi
	}
	return min, max
}

type defectGroup struct {
	defectType  models.DefectType
	findings    []models.Finding
	maxSeverity int
}

func groupByType(findings []models.Finding) []*defectGroup {
	var groups []*defectGroup
	index := make(map[models.DefectType]*defectGroup)
	for _, f := range findings {
		g, ok := index[f.DefectType]
		if !ok {
			g = &defectGroup{defectType: f.DefectType}
			index[f.DefectType] = g
			groups = append(groups, g)
		}
		g.findings = append(g.findings, f)
		if f.Severity > g.maxSeverity {
			g.maxSeverity = f.Severity
		}
	}
	return groups
}

// Recommendations emits one entry per defect type present, chosen by the
// group's maximum severity, ordered by priority rank. Ties keep first-seen order.
func (e *Engine) Recommendations(findings []models.Finding) []models.Recommendation {
	recs := make([]models.Recommendation, 0)
	for _, g := range groupByType(findings) {
		rule, ok := e.rules.Match(g.defectType, g.maxSeverity)
		if !ok {
			continue
		}
		recs = append(recs, models.Recommendation{
			DefectType:    g.defectType,
			Action:        rule.Action,
			CostRange:     rule.CostRange,
			Priority:      rule.Priority,
			AffectedRooms: strings.Join(distinctRooms(g.findings), ", "),
			Count:         len(g.findings),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return models.PriorityRank(recs[i].Priority) < models.PriorityRank(recs[j].Priority)
	})
	return recs
}

func distinctRooms(findings []models.Finding) []string {
	seen := make(map[string]bool, len(findings))
	var rooms []string
	for _, f := range findings {
		if seen[f.RoomName] {
			continue
		}
		seen[f.RoomName] = true
		rooms = append(rooms, f.RoomName)
	}
	return rooms
}

// Statistics counts defects, critical issues and distinct rooms.
func Statistics(findings []models.Finding) models.Statistics {
	stats := models.Statistics{
		TotalDefects:  len(findings),
		AffectedRooms: len(distinctRooms(findings)),
		DefectCounts:  make(map[models.DefectType]int),
	}
	for _, f := range findings {
		if f.IsCritical() {
			stats.CriticalIssues++
		}
		stats.DefectCounts[f.DefectType]++
	}
	return stats
}

// Evaluate computes the full result for findings. It has no side effects, so
// the same inputs always give the same result.
func Evaluate(findings []models.Finding, rules []models.ImprovementRule) models.InspectionResult {
	engine := NewEngine(rules)
	score := scoring.RiskScore(findings)
	min, max := engine.RenovationCosts(findings)
	return models.InspectionResult{
		RiskScore:       score,
		RiskLevel:       scoring.Level(score),
		CostMin:         min,
		CostMax:         max,
		Recommendations: engine.Recommendations(findings),
		Stats:           Statistics(findings),
	}
}
