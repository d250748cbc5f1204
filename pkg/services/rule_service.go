package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/costing"
	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/repositories"
)

// RuleService exposes the improvement rule table. It is the live RuleSource
// used by the inspection workflow.
type RuleService interface {
	costing.RuleSource
	// SeedFromYAML upserts every rule in the file inside one transaction and
	// returns how many were written. Re-running it is harmless.
	SeedFromYAML(ctx context.Context, path string) (int, error)
}

type ruleService struct {
	rules  repositories.RuleRepository
	tx     database.TxRunner
	logger *zap.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(rules repositories.RuleRepository, tx database.TxRunner, logger *zap.Logger) RuleService {
	return &ruleService{
		rules:  rules,
		tx:     tx,
		logger: logger.Named("rule-service"),
	}
}

var _ RuleService = (*ruleService)(nil)

func (s *ruleService) ListRules(ctx context.Context) ([]models.ImprovementRule, error) {
	return s.rules.List(ctx)
}

func (s *ruleService) SeedFromYAML(ctx context.Context, path string) (int, error) {
	rules, err := LoadRulesYAML(path)
	if err != nil {
		return 0, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, r := range rules {
			if err := s.rules.Upsert(txCtx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to seed improvement rules: %w", err)
	}

	s.logger.Info("Improvement rules seeded", zap.String("path", path), zap.Int("count", len(rules)))
	return len(rules), nil
}

type ruleFile struct {
	Rules []models.ImprovementRule `yaml:"rules"`
}

// LoadRulesYAML reads and validates a rules file. File order is kept and is
// the match priority.
func LoadRulesYAML(path string) ([]models.ImprovementRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRulesYAML(data)
}

// ParseRulesYAML decodes and validates rules from YAML.
func ParseRulesYAML(data []byte) ([]models.ImprovementRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, apperrors.NewValidationError("rules", "file contains no rules")
	}

	seen := make(map[string]bool, len(file.Rules))
	for i := range file.Rules {
		r := &file.Rules[i]
		r.ID = strings.TrimSpace(r.ID)
		r.DefectType = models.DefectType(strings.ToLower(strings.TrimSpace(string(r.DefectType))))
		if err := validateRule(*r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if seen[r.ID] {
			return nil, apperrors.NewValidationError("id", fmt.Sprintf("duplicate rule id %q", r.ID))
		}
		seen[r.ID] = true
	}
	return file.Rules, nil
}

func validateRule(r models.ImprovementRule) error {
	if r.ID == "" {
		return apperrors.NewValidationError("id", "is required")
	}
	if models.ParseDefectType(string(r.DefectType)) != r.DefectType {
		return apperrors.NewValidationError("defect_type", fmt.Sprintf("unknown defect type %q", r.DefectType))
	}
	if r.SeverityMin < models.MinSeverity || r.SeverityMax > models.MaxSeverity || r.SeverityMin > r.SeverityMax {
		return apperrors.NewValidationError("severity_min",
			fmt.Sprintf("band %d-%d must lie within %d-%d", r.SeverityMin, r.SeverityMax, models.MinSeverity, models.MaxSeverity))
	}
	if strings.TrimSpace(r.Action) == "" {
		return apperrors.NewValidationError("action", "is required")
	}
	if models.PriorityRank(r.Priority) > models.PriorityRank(models.PriorityLow) {
		return apperrors.NewValidationError("priority", fmt.Sprintf("unknown priority %q", r.Priority))
	}
	return nil
}
