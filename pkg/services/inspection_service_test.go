package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/classifier"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/ratelimit"
)

var testRules = []models.ImprovementRule{
	{ID: "crack_minor", DefectType: models.DefectCrack, SeverityMin: 1, SeverityMax: 4, Action: "Fill", CostRange: "2,000-8,000", Priority: models.PriorityLow},
	{ID: "crack_moderate", DefectType: models.DefectCrack, SeverityMin: 5, SeverityMax: 7, Action: "Seal", CostRange: "8,000-25,000", Priority: models.PriorityMedium},
	{ID: "leak_severe", DefectType: models.DefectLeak, SeverityMin: 8, SeverityMax: 10, Action: "Replace lines", CostRange: "40,000-1,50,000", Priority: models.PriorityCritical},
}

type inspectionFixture struct {
	store      *memStore
	tx         *fakeTx
	rules      *staticRules
	classifier *mockClassifier
	service    *inspectionService
}

func newInspectionFixture(t *testing.T) *inspectionFixture {
	t.Helper()
	store := newMemStore()
	store.addProperty(models.Property{
		ID:          "PROP_0000AAAA",
		SellerEmail: "seller@example.com",
		Address:     "14 Lake View Road",
		City:        "Bengaluru",
		Status:      models.PropertyPending,
	})
	store.addProperty(models.Property{
		ID:      "PROP_0000DONE",
		Address: "2 Hill Street",
		Status:  models.PropertyInspected,
	})

	f := &inspectionFixture{
		store:      store,
		tx:         &fakeTx{store: store},
		rules:      &staticRules{rules: testRules},
		classifier: &mockClassifier{},
	}
	limiter := ratelimit.New(ratelimit.DefaultConfig(), ratelimit.RealClock{}, zap.NewNop())
	svc := NewInspectionService(
		&mockPropertyRepo{store},
		&mockFindingRepo{store},
		&mockImprovementRepo{store},
		&mockSummaryRepo{store},
		f.rules,
		f.classifier,
		limiter,
		f.tx,
		zap.NewNop(),
	).(*inspectionService)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	f.service = svc
	return f
}

func (f *inspectionFixture) startWithFindings(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.StartInspection(ctx, "PROP_0000AAAA")
	require.NoError(t, err)
	// Two crack findings (severity 5) from the default image mock.
	_, err = f.service.AnalyzeRoom(ctx, "PROP_0000AAAA", "Kitchen", [][]byte{[]byte("a"), []byte("b")}, "")
	require.NoError(t, err)
	_, err = f.service.SubmitFinding(ctx, "PROP_0000AAAA", ManualFinding{
		Room: "Bathroom 1", DefectType: "leak", Severity: 9, Description: "Pipe leak under sink",
	})
	require.NoError(t, err)
}

func TestInspectionService_StartInspection(t *testing.T) {
	f := newInspectionFixture(t)
	ctx := context.Background()

	sess, err := f.service.StartInspection(ctx, "PROP_0000AAAA")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingRooms, sess.State)
	assert.Equal(t, "14 Lake View Road", sess.Address)
	assert.Empty(t, sess.Findings)

	_, err = f.service.StartInspection(ctx, "PROP_MISSING0")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.service.StartInspection(ctx, "PROP_0000DONE")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestInspectionService_StartResumesOpenSession(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)

	sess, err := f.service.StartInspection(context.Background(), "PROP_0000AAAA")
	require.NoError(t, err)
	assert.Equal(t, StateReadyToSubmit, sess.State)
	assert.Len(t, sess.Findings, 3)
	assert.Len(t, f.service.ListSessions(), 1)
}

func TestInspectionService_AnalyzeRoom(t *testing.T) {
	f := newInspectionFixture(t)
	ctx := context.Background()
	f.classifier.analyzeImagesFunc = func(ctx context.Context, images [][]byte, room string) []classifier.Outcome {
		return []classifier.Outcome{
			{Status: classifier.StatusSuccess, Findings: []models.Finding{
				models.NewFinding(room, "damp", 6, "Damp patch on ceiling", models.SourceImageAI),
			}},
			{Status: classifier.StatusDegraded, Reason: classifier.ReasonQuota, Findings: []models.Finding{
				models.NewFinding(room, "finishing", 3, "Sample finding", models.SourceImageAI),
			}},
		}
	}
	f.classifier.parseNotesFunc = func(ctx context.Context, notes, room string) classifier.Outcome {
		return classifier.Outcome{Status: classifier.StatusSuccess, Findings: []models.Finding{
			models.NewFinding(room, "wiring", 7, "Exposed wires near switchboard", models.SourceInspectorNotes),
		}}
	}

	_, err := f.service.StartInspection(ctx, "PROP_0000AAAA")
	require.NoError(t, err)

	analysis, err := f.service.AnalyzeRoom(ctx, "PROP_0000AAAA", " Living Room ", [][]byte{[]byte("1"), []byte("2")}, "wires exposed")
	require.NoError(t, err)

	assert.Equal(t, "Living Room", analysis.Room)
	require.Len(t, analysis.ImageOutcomes, 2)
	assert.Equal(t, classifier.StatusDegraded, analysis.ImageOutcomes[1].Status)
	require.NotNil(t, analysis.NotesOutcome)
	require.Len(t, analysis.Added, 3)
	assert.Equal(t, models.DefectDamp, analysis.Added[0].DefectType, "image findings keep upload order")
	assert.Equal(t, models.DefectFinishing, analysis.Added[1].DefectType)
	assert.Equal(t, models.DefectWiring, analysis.Added[2].DefectType)
	for _, finding := range analysis.Added {
		assert.Equal(t, "PROP_0000AAAA", finding.PropertyID)
	}
	assert.Equal(t, StateReadyToSubmit, analysis.Session.State)
	assert.Equal(t, []string{"Living Room"}, analysis.Session.Rooms)
}

func TestInspectionService_AnalyzeRoom_Validation(t *testing.T) {
	f := newInspectionFixture(t)
	ctx := context.Background()

	_, err := f.service.AnalyzeRoom(ctx, "PROP_0000AAAA", "", [][]byte{[]byte("x")}, "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.service.AnalyzeRoom(ctx, "PROP_0000AAAA", "Kitchen", nil, "   ")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.service.AnalyzeRoom(ctx, "PROP_0000AAAA", "Kitchen", [][]byte{[]byte("x")}, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "no session started")
}

func TestInspectionService_SubmitFinding(t *testing.T) {
	f := newInspectionFixture(t)
	ctx := context.Background()
	_, err := f.service.StartInspection(ctx, "PROP_0000AAAA")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   ManualFinding
	}{
		{"missing room", ManualFinding{DefectType: "crack", Severity: 3}},
		{"missing defect type", ManualFinding{Room: "Kitchen", Severity: 3}},
		{"severity too low", ManualFinding{Room: "Kitchen", DefectType: "crack", Severity: 0}},
		{"severity too high", ManualFinding{Room: "Kitchen", DefectType: "crack", Severity: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SubmitFinding(ctx, "PROP_0000AAAA", tt.in)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	sess, err := f.service.SubmitFinding(ctx, "PROP_0000AAAA", ManualFinding{
		Room: "Balcony", DefectType: "Structural", Severity: 8, Description: "Railing loose",
	})
	require.NoError(t, err)
	require.Len(t, sess.Findings, 1)
	assert.Equal(t, models.DefectStructural, sess.Findings[0].DefectType)
	assert.Equal(t, models.SourceInspectorNotes, sess.Findings[0].Source)
}

func TestInspectionService_ComputePreviewIsIdempotent(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()

	first, err := f.service.ComputePreview(ctx, "PROP_0000AAAA")
	require.NoError(t, err)
	second, err := f.service.ComputePreview(ctx, "PROP_0000AAAA")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// 2 cracks at 5 (x1.5) plus a leak at 9 (x2.0).
	assert.InDelta(t, 33.0, first.RiskScore, 0.001)
	assert.Equal(t, models.RiskMedium, first.RiskLevel)
	assert.Equal(t, int64(2*8000+40000), first.CostMin)
	assert.Equal(t, int64(2*25000+150000), first.CostMax)
	require.Len(t, first.Recommendations, 2)
	assert.Equal(t, models.PriorityCritical, first.Recommendations[0].Priority)

	sess, err := f.service.GetSession("PROP_0000AAAA")
	require.NoError(t, err)
	assert.Len(t, sess.Findings, 3, "preview does not change the session")
	assert.Empty(t, f.store.findingsFor("PROP_0000AAAA"), "preview does not persist")
}

func TestComputePreview_Pure(t *testing.T) {
	findings := []models.Finding{
		models.NewFinding("Kitchen", "crack", 3, "Hairline", models.SourceImageAI),
	}
	a := ComputePreview(findings, testRules)
	b := ComputePreview(findings, testRules)
	assert.Equal(t, a, b)
	assert.InDelta(t, 4.5, a.RiskScore, 0.001)
	assert.Equal(t, models.RiskLow, a.RiskLevel)
	assert.Equal(t, int64(2000), a.CostMin)
}

func TestInspectionService_ComputePreviewRuleError(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	f.rules.err = errors.New("rules unavailable")

	_, err := f.service.ComputePreview(context.Background(), "PROP_0000AAAA")
	require.Error(t, err)
}

func TestInspectionService_FinalizeInspection(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()

	out, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", " inspector@example.com ")
	require.NoError(t, err)

	assert.Equal(t, classifier.StatusSuccess, out.SummaryStatus)
	assert.Equal(t, "Generally sound property.", out.Summary.SummaryText)
	assert.Equal(t, "inspector@example.com", out.Summary.InspectorEmail)
	assert.Equal(t, 3, out.Summary.TotalDefects)
	assert.Equal(t, 1, out.Summary.CriticalIssues)
	assert.Equal(t, 2, out.Summary.AffectedRooms)
	assert.Contains(t, out.Summary.ID, models.SummaryIDPrefix)

	assert.Equal(t, "14 Lake View Road", f.classifier.lastSummary.Address)
	assert.InDelta(t, 33.0, f.classifier.lastSummary.RiskScore, 0.001)

	p := f.store.property("PROP_0000AAAA")
	assert.Equal(t, models.PropertyInspected, p.Status)
	require.NotNil(t, p.RiskLevel)
	assert.Equal(t, models.RiskMedium, *p.RiskLevel)
	require.NotNil(t, p.InspectedAt)

	persisted := f.store.findingsFor("PROP_0000AAAA")
	require.Len(t, persisted, 3)
	for _, finding := range persisted {
		assert.Contains(t, finding.ID, models.FindingIDPrefix)
	}
	require.Len(t, f.store.improvements, 2)
	counts := make(map[models.DefectType]int)
	for _, imp := range f.store.improvements {
		counts[imp.DefectType] = imp.Count
	}
	assert.Equal(t, map[models.DefectType]int{models.DefectCrack: 2, models.DefectLeak: 1}, counts)
	assert.Equal(t, 1, f.tx.calls)

	_, err = f.service.GetSession("PROP_0000AAAA")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "session closed after finalize")

	_, err = f.service.StartInspection(ctx, "PROP_0000AAAA")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "inspected property cannot be inspected again")
}

func TestInspectionService_FinalizeWithDegradedSummary(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	f.classifier.summarizeFunc = func(ctx context.Context, in classifier.SummaryInput, findings []models.Finding) classifier.SummaryOutcome {
		return classifier.SummaryOutcome{Status: classifier.StatusDegraded, Text: "Fallback summary.", Reason: classifier.ReasonNoClient}
	}

	out, err := f.service.FinalizeInspection(context.Background(), "PROP_0000AAAA", "inspector@example.com")
	require.NoError(t, err)
	assert.Equal(t, classifier.StatusDegraded, out.SummaryStatus)
	assert.Equal(t, "Fallback summary.", f.store.summaries["PROP_0000AAAA"].SummaryText)
}

func TestInspectionService_FinalizeValidation(t *testing.T) {
	f := newInspectionFixture(t)
	ctx := context.Background()

	_, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "not-an-email")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.service.StartInspection(ctx, "PROP_0000AAAA")
	require.NoError(t, err)
	_, err = f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	assert.True(t, apperrors.IsValidation(err), "finalize needs at least one finding")
	assert.Equal(t, 0, f.classifier.summarizeCalls)
}

func TestInspectionService_FinalizeRollsBackOnPersistenceFailure(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()
	f.store.createSummaryErr = errors.New("insert into inspection_summaries failed")

	_, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	p := f.store.property("PROP_0000AAAA")
	assert.Equal(t, models.PropertyPending, p.Status)
	assert.Nil(t, p.RiskScore)
	assert.Empty(t, f.store.findingsFor("PROP_0000AAAA"), "findings written before the failure are rolled back")
	assert.Empty(t, f.store.improvements)

	sess, err := f.service.GetSession("PROP_0000AAAA")
	require.NoError(t, err, "session stays open for retry")
	assert.Equal(t, StateReadyToSubmit, sess.State)
	assert.Len(t, sess.Findings, 3)

	f.store.createSummaryErr = nil
	_, err = f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	require.NoError(t, err)
	assert.Len(t, f.store.findingsFor("PROP_0000AAAA"), 3)
	assert.Equal(t, models.PropertyInspected, f.store.property("PROP_0000AAAA").Status)
}

func TestInspectionService_FinalizeRetriesTransientErrors(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	f.service.retryConfig.InitialDelay = time.Millisecond
	f.service.retryConfig.MaxDelay = time.Millisecond

	attempts := 0
	store := f.store
	f.service.findings = &flakyFindingRepo{
		mockFindingRepo: mockFindingRepo{store},
		failures:        1,
		attempts:        &attempts,
	}

	_, err := f.service.FinalizeInspection(context.Background(), "PROP_0000AAAA", "inspector@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, f.tx.calls)
	assert.Len(t, store.findingsFor("PROP_0000AAAA"), 3)
}

func TestInspectionService_ReadsServedWhileSummaryIsGenerated(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.classifier.summarizeFunc = func(ctx context.Context, in classifier.SummaryInput, findings []models.Finding) classifier.SummaryOutcome {
		close(entered)
		<-release
		return classifier.SummaryOutcome{Status: classifier.StatusSuccess, Text: "Sound structure."}
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
		done <- err
	}()
	<-entered

	got := make(chan *Session, 1)
	go func() {
		sess, err := f.service.GetSession("PROP_0000AAAA")
		assert.NoError(t, err)
		got <- sess
	}()
	select {
	case sess := <-got:
		require.NotNil(t, sess)
		assert.True(t, sess.Finalizing)
		assert.Len(t, sess.Findings, 3)
	case <-time.After(time.Second):
		t.Fatal("GetSession blocked behind summary generation")
	}

	_, err := f.service.SubmitFinding(ctx, "PROP_0000AAAA", ManualFinding{
		Room: "Hall", DefectType: "crack", Severity: 3,
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	_, err = f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.ErrorIs(t, f.service.Abort("PROP_0000AAAA"), apperrors.ErrConflict)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.store.findingsFor("PROP_0000AAAA"), 3, "the finding refused mid-finalize is not persisted")
	assert.Equal(t, models.PropertyInspected, f.store.property("PROP_0000AAAA").Status)
}

func TestInspectionService_FinalizeRetryReusesSummary(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()
	f.store.createSummaryErr = errors.New("insert into inspection_summaries failed")

	_, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	require.ErrorIs(t, err, apperrors.ErrPersistence)

	f.store.createSummaryErr = nil
	out, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, f.classifier.summarizeCalls, "a retried finalize does not spend quota on a second summary")
	assert.Equal(t, "Generally sound property.", out.Summary.SummaryText)
}

func TestInspectionService_NewFindingInvalidatesSummary(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()
	f.store.createSummaryErr = errors.New("insert into inspection_summaries failed")

	_, err := f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	require.Error(t, err)

	_, err = f.service.SubmitFinding(ctx, "PROP_0000AAAA", ManualFinding{
		Room: "Hall", DefectType: "crack", Severity: 3, Description: "Skirting crack",
	})
	require.NoError(t, err)

	f.store.createSummaryErr = nil
	_, err = f.service.FinalizeInspection(ctx, "PROP_0000AAAA", "inspector@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, f.classifier.summarizeCalls)
	assert.Len(t, f.store.findingsFor("PROP_0000AAAA"), 4)
}

type flakyFindingRepo struct {
	mockFindingRepo
	failures int
	attempts *int
}

func (r *flakyFindingRepo) CreateBatch(ctx context.Context, findings []models.Finding) error {
	*r.attempts++
	if *r.attempts <= r.failures {
		return errors.New("write tcp: connection reset by peer")
	}
	return r.mockFindingRepo.CreateBatch(ctx, findings)
}

func TestInspectionService_FinalizeAlreadyInspected(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	f.store.markInspectedErr = apperrors.ErrInvalidState

	_, err := f.service.FinalizeInspection(context.Background(), "PROP_0000AAAA", "inspector@example.com")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.NotErrorIs(t, err, apperrors.ErrPersistence)
}

func TestInspectionService_Abort(t *testing.T) {
	f := newInspectionFixture(t)
	f.startWithFindings(t)
	ctx := context.Background()

	require.NoError(t, f.service.Abort("PROP_0000AAAA"))

	_, err := f.service.GetSession("PROP_0000AAAA")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.service.AnalyzeRoom(ctx, "PROP_0000AAAA", "Kitchen", [][]byte{[]byte("x")}, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, models.PropertyPending, f.store.property("PROP_0000AAAA").Status)
	assert.Empty(t, f.store.findingsFor("PROP_0000AAAA"))

	assert.ErrorIs(t, f.service.Abort("PROP_0000AAAA"), apperrors.ErrNotFound)

	sess, err := f.service.StartInspection(ctx, "PROP_0000AAAA")
	require.NoError(t, err, "a fresh inspection can start after abort")
	assert.Empty(t, sess.Findings)
}

func TestInspectionService_RateLimitStatus(t *testing.T) {
	f := newInspectionFixture(t)
	status, err := f.service.RateLimitStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ratelimit.DefaultConfig().MaxRequests, status.Limit)
	assert.Equal(t, status.Limit, status.Remaining)
}
