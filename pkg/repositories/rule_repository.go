package repositories

import (
	"context"
	"fmt"

	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// RuleRepository provides data access for the improvement rule table.
type RuleRepository interface {
	// List returns rules in table order, which is the match priority.
	List(ctx context.Context) ([]models.ImprovementRule, error)
	// Upsert inserts a rule or replaces the one with the same ID, keeping its position.
	Upsert(ctx context.Context, rule models.ImprovementRule) error
}

type ruleRepository struct{}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository() RuleRepository {
	return &ruleRepository{}
}

var _ RuleRepository = (*ruleRepository)(nil)

func (r *ruleRepository) List(ctx context.Context) ([]models.ImprovementRule, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT rule_id, defect_type, severity_min, severity_max,
		       improvement_action, estimated_cost_range, priority
		FROM improvement_rules
		ORDER BY position`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list improvement rules: %w", err)
	}
	defer rows.Close()

	rules := make([]models.ImprovementRule, 0)
	for rows.Next() {
		var (
			rule       models.ImprovementRule
			defectType string
			priority   string
		)
		if err := rows.Scan(&rule.ID, &defectType, &rule.SeverityMin, &rule.SeverityMax,
			&rule.Action, &rule.CostRange, &priority); err != nil {
			return nil, fmt.Errorf("failed to scan improvement rule: %w", err)
		}
		rule.DefectType = models.DefectType(defectType)
		rule.Priority = models.Priority(priority)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating improvement rules: %w", err)
	}
	return rules, nil
}

func (r *ruleRepository) Upsert(ctx context.Context, rule models.ImprovementRule) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO improvement_rules
			(rule_id, defect_type, severity_min, severity_max,
			 improvement_action, estimated_cost_range, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (rule_id) DO UPDATE SET
			defect_type = EXCLUDED.defect_type,
			severity_min = EXCLUDED.severity_min,
			severity_max = EXCLUDED.severity_max,
			improvement_action = EXCLUDED.improvement_action,
			estimated_cost_range = EXCLUDED.estimated_cost_range,
			priority = EXCLUDED.priority`

	_, err := scope.Conn.Exec(ctx, query,
		rule.ID, string(rule.DefectType), rule.SeverityMin, rule.SeverityMax,
		rule.Action, rule.CostRange, string(rule.Priority))
	if err != nil {
		return fmt.Errorf("failed to upsert improvement rule %s: %w", rule.ID, err)
	}
	return nil
}
