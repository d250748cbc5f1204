package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/classifier"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// ============================================================================
// In-memory store with transactional fake
// ============================================================================

// memStore backs every mock repository. fakeTx snapshots it before fn runs
// and restores the snapshot when fn fails, like a rolled-back transaction.
type memStore struct {
	mu           sync.Mutex
	properties   map[string]models.Property
	findings     []models.Finding
	improvements []models.Improvement
	summaries    map[string]models.InspectionSummary
	rules        []models.ImprovementRule

	createFindingsErr error
	createSummaryErr  error
	markInspectedErr  error
	queryErr          error
}

func newMemStore() *memStore {
	return &memStore{
		properties: make(map[string]models.Property),
		summaries:  make(map[string]models.InspectionSummary),
	}
}

type memSnapshot struct {
	properties   map[string]models.Property
	findings     []models.Finding
	improvements []models.Improvement
	summaries    map[string]models.InspectionSummary
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		properties:   make(map[string]models.Property, len(m.properties)),
		findings:     append([]models.Finding(nil), m.findings...),
		improvements: append([]models.Improvement(nil), m.improvements...),
		summaries:    make(map[string]models.InspectionSummary, len(m.summaries)),
	}
	for k, v := range m.properties {
		snap.properties[k] = v
	}
	for k, v := range m.summaries {
		snap.summaries[k] = v
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties = snap.properties
	m.findings = snap.findings
	m.improvements = snap.improvements
	m.summaries = snap.summaries
}

func (m *memStore) addProperty(p models.Property) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
}

func (m *memStore) property(id string) models.Property {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.properties[id]
}

func (m *memStore) findingsFor(id string) []models.Finding {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Finding
	for _, f := range m.findings {
		if f.PropertyID == id {
			out = append(out, f)
		}
	}
	return out
}

type fakeTx struct {
	store *memStore
	calls int
}

func (t *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// ============================================================================
// Mock repositories
// ============================================================================

type mockPropertyRepo struct{ *memStore }

func (m *mockPropertyRepo) Create(ctx context.Context, p *models.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	m.properties[p.ID] = *p
	return nil
}

func (m *mockPropertyRepo) GetByID(ctx context.Context, id string) (*models.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &p, nil
}

func (m *mockPropertyRepo) byStatus(status models.PropertyStatus, keep func(models.Property) bool) []*models.Property {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Property
	for _, p := range m.properties {
		if p.Status == status && keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockPropertyRepo) ListPending(ctx context.Context) ([]*models.Property, error) {
	return m.byStatus(models.PropertyPending, func(models.Property) bool { return true }), nil
}

func (m *mockPropertyRepo) ListInspected(ctx context.Context, f models.PropertyFilters) ([]*models.Property, error) {
	return m.byStatus(models.PropertyInspected, func(p models.Property) bool {
		if f.City != "" && !strings.EqualFold(p.City, f.City) {
			return false
		}
		return f.MaxPrice == nil || p.Price <= *f.MaxPrice
	}), nil
}

func (m *mockPropertyRepo) ListBySeller(ctx context.Context, email string) ([]*models.Property, error) {
	var out []*models.Property
	for _, status := range []models.PropertyStatus{models.PropertyPending, models.PropertyInspected} {
		out = append(out, m.byStatus(status, func(p models.Property) bool {
			return strings.EqualFold(p.SellerEmail, email)
		})...)
	}
	return out, nil
}

func (m *mockPropertyRepo) MarkInspected(ctx context.Context, id string, r *models.InspectionResult, at time.Time) error {
	if m.markInspectedErr != nil {
		return m.markInspectedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok || p.Status != models.PropertyPending {
		return apperrors.ErrInvalidState
	}
	p.Status = models.PropertyInspected
	p.InspectedAt = &at
	score, level := r.RiskScore, r.RiskLevel
	p.RiskScore, p.RiskLevel = &score, &level
	p.CostMin, p.CostMax = &r.CostMin, &r.CostMax
	m.properties[id] = p
	return nil
}

type mockFindingRepo struct{ *memStore }

func (m *mockFindingRepo) CreateBatch(ctx context.Context, findings []models.Finding) error {
	if m.createFindingsErr != nil {
		return m.createFindingsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, findings...)
	return nil
}

func (m *mockFindingRepo) ListByProperty(ctx context.Context, id string) ([]models.Finding, error) {
	out := m.findingsFor(id)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out, nil
}

type mockImprovementRepo struct{ *memStore }

func (m *mockImprovementRepo) CreateBatch(ctx context.Context, imps []models.Improvement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.improvements = append(m.improvements, imps...)
	return nil
}

func (m *mockImprovementRepo) ListByProperty(ctx context.Context, id string) ([]models.Improvement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Improvement
	for _, imp := range m.improvements {
		if imp.PropertyID == id {
			out = append(out, imp)
		}
	}
	return out, nil
}

type mockSummaryRepo struct{ *memStore }

func (m *mockSummaryRepo) Create(ctx context.Context, s *models.InspectionSummary) error {
	if m.createSummaryErr != nil {
		return m.createSummaryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = time.Now()
	m.summaries[s.PropertyID] = *s
	return nil
}

func (m *mockSummaryRepo) GetByProperty(ctx context.Context, id string) (*models.InspectionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &s, nil
}

type mockRuleRepo struct {
	*memStore
	upserted []models.ImprovementRule
	upsertErr error
}

func (m *mockRuleRepo) List(ctx context.Context) ([]models.ImprovementRule, error) {
	return append([]models.ImprovementRule(nil), m.rules...), nil
}

func (m *mockRuleRepo) Upsert(ctx context.Context, r models.ImprovementRule) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, r)
	return nil
}

type mockQueryRepo struct{ *memStore }

func (m *mockQueryRepo) Query(ctx context.Context, sql string, args ...any) (*models.QueryResult, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var inspected, pending, low int64
	for _, p := range m.properties {
		switch p.Status {
		case models.PropertyInspected:
			inspected++
			if p.RiskLevel != nil && *p.RiskLevel == models.RiskLow {
				low++
			}
		case models.PropertyPending:
			pending++
		}
	}
	return &models.QueryResult{
		Columns: []string{"inspected", "pending", "low_risk"},
		Rows:    [][]any{{inspected, pending, low}},
	}, nil
}

// staticRules is a RuleSource over a fixed table.
type staticRules struct {
	rules []models.ImprovementRule
	err   error
	calls int
}

func (s *staticRules) ListRules(ctx context.Context) ([]models.ImprovementRule, error) {
	s.calls++
	return s.rules, s.err
}

// ============================================================================
// Mock classifier
// ============================================================================

type mockClassifier struct {
	analyzeImagesFunc func(ctx context.Context, images [][]byte, room string) []classifier.Outcome
	parseNotesFunc    func(ctx context.Context, notes, room string) classifier.Outcome
	summarizeFunc     func(ctx context.Context, in classifier.SummaryInput, findings []models.Finding) classifier.SummaryOutcome

	mu             sync.Mutex
	summarizeCalls int
	lastSummary    classifier.SummaryInput
}

func (m *mockClassifier) AnalyzeImages(ctx context.Context, images [][]byte, room string) []classifier.Outcome {
	if m.analyzeImagesFunc != nil {
		return m.analyzeImagesFunc(ctx, images, room)
	}
	out := make([]classifier.Outcome, len(images))
	for i := range images {
		out[i] = classifier.Outcome{Status: classifier.StatusSuccess, Findings: []models.Finding{
			models.NewFinding(room, "crack", 5, "Crack near window", models.SourceImageAI),
		}}
	}
	return out
}

func (m *mockClassifier) ParseNotes(ctx context.Context, notes, room string) classifier.Outcome {
	if m.parseNotesFunc != nil {
		return m.parseNotesFunc(ctx, notes, room)
	}
	return classifier.Outcome{Status: classifier.StatusSuccess, Findings: []models.Finding{}}
}

func (m *mockClassifier) Summarize(ctx context.Context, in classifier.SummaryInput, findings []models.Finding) classifier.SummaryOutcome {
	m.mu.Lock()
	m.summarizeCalls++
	m.lastSummary = in
	m.mu.Unlock()
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, in, findings)
	}
	return classifier.SummaryOutcome{Status: classifier.StatusSuccess, Text: "Generally sound property."}
}

var _ classifier.DefectClassifier = (*mockClassifier)(nil)
