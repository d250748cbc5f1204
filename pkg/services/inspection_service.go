package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/apperrors"
	"github.com/nivaasika/nivaasika-engine/pkg/classifier"
	"github.com/nivaasika/nivaasika-engine/pkg/costing"
	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/ratelimit"
	"github.com/nivaasika/nivaasika-engine/pkg/repositories"
	"github.com/nivaasika/nivaasika-engine/pkg/retry"
)

// SessionState is where an inspection is in its lifecycle.
type SessionState string

const (
	StateAwaitingRooms SessionState = "awaiting_rooms"
	StateReadyToSubmit SessionState = "ready_to_submit"
	StateFinalized     SessionState = "finalized"
	StateAborted       SessionState = "aborted"
)

// Session is a point-in-time copy of an inspection in progress.
type Session struct {
	PropertyID string           `json:"property_id"`
	Address    string           `json:"property_address"`
	State      SessionState     `json:"state"`
	Findings   []models.Finding `json:"findings"`
	Rooms      []string         `json:"rooms"`
	StartedAt  time.Time        `json:"started_at"`
	Finalizing bool             `json:"finalizing,omitempty"`
}

// RoomAnalysis reports what one room visit added to the session.
type RoomAnalysis struct {
	Room          string               `json:"room"`
	Added         []models.Finding     `json:"added"`
	ImageOutcomes []classifier.Outcome `json:"image_outcomes"`
	NotesOutcome  *classifier.Outcome  `json:"notes_outcome,omitempty"`
	Session       *Session             `json:"session"`
}

// FinalizeResult is returned by a successful finalize.
type FinalizeResult struct {
	Result        models.InspectionResult  `json:"result"`
	Summary       models.InspectionSummary `json:"summary"`
	SummaryStatus classifier.Status        `json:"summary_status"`
}

// ManualFinding is a defect entered directly by the inspector.
type ManualFinding struct {
	Room        string `json:"room_name"`
	DefectType  string `json:"defect_type"`
	Severity    int    `json:"severity"`
	Description string `json:"description"`
}

// InspectionService runs the per-property inspection workflow: collect
// findings room by room, preview the result, then persist everything in
// one transaction.
type InspectionService interface {
	StartInspection(ctx context.Context, propertyID string) (*Session, error)
	GetSession(propertyID string) (*Session, error)
	ListSessions() []*Session
	AnalyzeRoom(ctx context.Context, propertyID, room string, images [][]byte, notes string) (*RoomAnalysis, error)
	SubmitFinding(ctx context.Context, propertyID string, in ManualFinding) (*Session, error)
	ComputePreview(ctx context.Context, propertyID string) (*models.InspectionResult, error)
	FinalizeInspection(ctx context.Context, propertyID, inspectorEmail string) (*FinalizeResult, error)
	Abort(propertyID string) error
	RateLimitStatus(ctx context.Context) (ratelimit.Status, error)
}

// ComputePreview evaluates findings against rules without touching any state.
// Calling it twice with the same inputs gives the same result.
func ComputePreview(findings []models.Finding, rules []models.ImprovementRule) models.InspectionResult {
	return costing.Evaluate(findings, rules)
}

type session struct {
	mu         sync.Mutex
	propertyID string
	address    string
	state      SessionState
	findings   []models.Finding
	startedAt  time.Time

	// finalizing is set while a finalize works outside mu. Mutations are
	// refused until it clears.
	finalizing bool
	// summary is the last successful narrative, reused by a retried
	// finalize while the findings are unchanged.
	summary *cachedSummary
}

type cachedSummary struct {
	findings int
	outcome  classifier.SummaryOutcome
}

func (s *session) snapshotLocked() *Session {
	findings := make([]models.Finding, len(s.findings))
	copy(findings, s.findings)

	var rooms []string
	seen := make(map[string]bool)
	for _, f := range s.findings {
		if !seen[f.RoomName] {
			seen[f.RoomName] = true
			rooms = append(rooms, f.RoomName)
		}
	}
	return &Session{
		PropertyID: s.propertyID,
		Address:    s.address,
		State:      s.state,
		Findings:   findings,
		Rooms:      rooms,
		StartedAt:  s.startedAt,
		Finalizing: s.finalizing,
	}
}

func (s *session) closedLocked() bool {
	return s.state == StateFinalized || s.state == StateAborted
}

// mutableLocked reports why findings cannot be added right now, or nil.
func (s *session) mutableLocked() error {
	if s.closedLocked() {
		return fmt.Errorf("inspection for %s is %s: %w", s.propertyID, s.state, apperrors.ErrInvalidState)
	}
	if s.finalizing {
		return fmt.Errorf("inspection for %s is being finalized: %w", s.propertyID, apperrors.ErrConflict)
	}
	return nil
}

func (s *session) appendLocked(findings []models.Finding) {
	s.findings = append(s.findings, findings...)
	if len(s.findings) > 0 {
		s.state = StateReadyToSubmit
	}
}

type inspectionService struct {
	properties   repositories.PropertyRepository
	findings     repositories.FindingRepository
	improvements repositories.ImprovementRepository
	summaries    repositories.SummaryRepository
	rules        costing.RuleSource
	classifier   classifier.DefectClassifier
	limiter      ratelimit.RequestLimiter
	tx           database.TxRunner
	retryConfig  *retry.Config
	now          func() time.Time
	logger       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewInspectionService creates a new InspectionService.
func NewInspectionService(
	properties repositories.PropertyRepository,
	findings repositories.FindingRepository,
	improvements repositories.ImprovementRepository,
	summaries repositories.SummaryRepository,
	rules costing.RuleSource,
	defects classifier.DefectClassifier,
	limiter ratelimit.RequestLimiter,
	tx database.TxRunner,
	logger *zap.Logger,
) InspectionService {
	return &inspectionService{
		properties:   properties,
		findings:     findings,
		improvements: improvements,
		summaries:    summaries,
		rules:        rules,
		classifier:   defects,
		limiter:      limiter,
		tx:           tx,
		retryConfig: &retry.Config{
			MaxRetries:   2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		now:      time.Now,
		logger:   logger.Named("inspection-service"),
		sessions: make(map[string]*session),
	}
}

var _ InspectionService = (*inspectionService)(nil)

func (s *inspectionService) StartInspection(ctx context.Context, propertyID string) (*Session, error) {
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property.Status != models.PropertyPending {
		return nil, fmt.Errorf("property %s is already %s: %w", propertyID, property.Status, apperrors.ErrInvalidState)
	}

	s.mu.Lock()
	existing, ok := s.sessions[propertyID]
	if !ok {
		sess := &session{
			propertyID: propertyID,
			address:    property.Address,
			state:      StateAwaitingRooms,
			startedAt:  s.now(),
		}
		s.sessions[propertyID] = sess
		s.mu.Unlock()

		s.logger.Info("Inspection started", zap.String("property_id", propertyID))
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.snapshotLocked(), nil
	}
	s.mu.Unlock()

	// Rooms may be revisited: starting again resumes the open session.
	existing.mu.Lock()
	defer existing.mu.Unlock()
	if existing.closedLocked() {
		return nil, fmt.Errorf("inspection for %s is %s: %w", propertyID, existing.state, apperrors.ErrInvalidState)
	}
	return existing.snapshotLocked(), nil
}

func (s *inspectionService) lookup(propertyID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[propertyID]
	if !ok {
		return nil, fmt.Errorf("no inspection in progress for %s: %w", propertyID, apperrors.ErrNotFound)
	}
	return sess, nil
}

func (s *inspectionService) GetSession(propertyID string) (*Session, error) {
	sess, err := s.lookup(propertyID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked(), nil
}

func (s *inspectionService) ListSessions() []*Session {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	out := make([]*Session, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		out = append(out, sess.snapshotLocked())
		sess.mu.Unlock()
	}
	return out
}

// AnalyzeRoom classifies the room's photos (bounded parallel, kept in upload
// order) and notes, then appends the findings. Classifier problems never fail
// the call; they show up as degraded or failed outcomes.
func (s *inspectionService) AnalyzeRoom(ctx context.Context, propertyID, room string, images [][]byte, notes string) (*RoomAnalysis, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, apperrors.NewValidationError("room", "is required")
	}
	if len(images) == 0 && strings.TrimSpace(notes) == "" {
		return nil, apperrors.NewValidationError("images", "at least one image or notes are required")
	}

	sess, err := s.lookup(propertyID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(sess); err != nil {
		return nil, err
	}

	analysis := &RoomAnalysis{Room: room, Added: []models.Finding{}}

	if len(images) > 0 {
		analysis.ImageOutcomes = s.classifier.AnalyzeImages(ctx, images, room)
		for _, o := range analysis.ImageOutcomes {
			analysis.Added = append(analysis.Added, o.Findings...)
		}
	}
	if strings.TrimSpace(notes) != "" {
		o := s.classifier.ParseNotes(ctx, notes, room)
		analysis.NotesOutcome = &o
		analysis.Added = append(analysis.Added, o.Findings...)
	}
	for i := range analysis.Added {
		analysis.Added[i].PropertyID = propertyID
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutableLocked(); err != nil {
		return nil, err
	}
	sess.appendLocked(analysis.Added)
	analysis.Session = sess.snapshotLocked()

	s.logger.Info("Room analyzed",
		zap.String("property_id", propertyID),
		zap.String("room", room),
		zap.Int("images", len(images)),
		zap.Int("findings_added", len(analysis.Added)))
	return analysis, nil
}

func (s *inspectionService) ensureOpen(sess *session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.mutableLocked()
}

func (s *inspectionService) SubmitFinding(ctx context.Context, propertyID string, in ManualFinding) (*Session, error) {
	if strings.TrimSpace(in.Room) == "" {
		return nil, apperrors.NewValidationError("room_name", "is required")
	}
	if strings.TrimSpace(in.DefectType) == "" {
		return nil, apperrors.NewValidationError("defect_type", "is required")
	}
	if in.Severity < models.MinSeverity || in.Severity > models.MaxSeverity {
		return nil, apperrors.NewValidationError("severity",
			fmt.Sprintf("must be between %d and %d", models.MinSeverity, models.MaxSeverity))
	}

	sess, err := s.lookup(propertyID)
	if err != nil {
		return nil, err
	}

	f := models.NewFinding(strings.TrimSpace(in.Room), in.DefectType, in.Severity, strings.TrimSpace(in.Description), models.SourceInspectorNotes)
	f.PropertyID = propertyID

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutableLocked(); err != nil {
		return nil, err
	}
	sess.appendLocked([]models.Finding{f})
	return sess.snapshotLocked(), nil
}

func (s *inspectionService) ComputePreview(ctx context.Context, propertyID string) (*models.InspectionResult, error) {
	snap, err := s.GetSession(propertyID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load improvement rules: %w", err)
	}
	result := ComputePreview(snap.Findings, rules)
	return &result, nil
}

// FinalizeInspection computes the result, writes the summary, and persists
// findings, improvements, summary and the property update in one
// transaction. On any persistence error nothing is written, the property
// stays pending, and the session stays open so the caller can retry.
//
// The session lock is only held to take and release the finalizing mark, so
// reads are served while the summary is generated or the transaction runs.
func (s *inspectionService) FinalizeInspection(ctx context.Context, propertyID, inspectorEmail string) (*FinalizeResult, error) {
	inspectorEmail = strings.TrimSpace(inspectorEmail)
	if inspectorEmail == "" {
		return nil, apperrors.NewValidationError("inspector_email", "is required")
	}
	if !models.ValidEmail(inspectorEmail) {
		return nil, apperrors.NewValidationError("inspector_email", "must be a valid email address")
	}

	sess, err := s.lookup(propertyID)
	if err != nil {
		return nil, err
	}

	snap, cached, err := beginFinalize(sess)
	if err != nil {
		return nil, err
	}
	out, err := s.finalize(ctx, sess, snap, cached, inspectorEmail)

	sess.mu.Lock()
	sess.finalizing = false
	if err == nil {
		sess.state = StateFinalized
	}
	sess.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.sessions[propertyID] == sess {
		delete(s.sessions, propertyID)
	}
	s.mu.Unlock()
	return out, nil
}

// beginFinalize marks sess as finalizing and returns the findings to persist
// with any summary already generated for them.
func beginFinalize(sess *session) (*Session, *classifier.SummaryOutcome, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.mutableLocked(); err != nil {
		return nil, nil, err
	}
	if len(sess.findings) == 0 {
		return nil, nil, apperrors.NewValidationError("findings", "at least one finding is required")
	}
	sess.finalizing = true

	var cached *classifier.SummaryOutcome
	if sess.summary != nil && sess.summary.findings == len(sess.findings) {
		outcome := sess.summary.outcome
		cached = &outcome
	}
	return sess.snapshotLocked(), cached, nil
}

func (s *inspectionService) finalize(ctx context.Context, sess *session, snap *Session, cached *classifier.SummaryOutcome, inspectorEmail string) (*FinalizeResult, error) {
	propertyID := snap.PropertyID

	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load improvement rules: %w", err)
	}
	result := ComputePreview(snap.Findings, rules)

	var summary classifier.SummaryOutcome
	if cached != nil {
		summary = *cached
	} else {
		summary = s.classifier.Summarize(ctx, classifier.SummaryInput{
			Address:   snap.Address,
			RiskScore: result.RiskScore,
		}, snap.Findings)
		if summary.Status == classifier.StatusSuccess {
			sess.mu.Lock()
			sess.summary = &cachedSummary{findings: len(snap.Findings), outcome: summary}
			sess.mu.Unlock()
		}
	}

	findings := make([]models.Finding, len(snap.Findings))
	for i, f := range snap.Findings {
		f.ID = models.NewID(models.FindingIDPrefix)
		f.PropertyID = propertyID
		findings[i] = f
	}
	improvements := make([]models.Improvement, len(result.Recommendations))
	for i, rec := range result.Recommendations {
		improvements[i] = models.Improvement{
			ID:            models.NewID(models.ImprovementIDPrefix),
			PropertyID:    propertyID,
			DefectType:    rec.DefectType,
			Action:        rec.Action,
			CostRange:     rec.CostRange,
			Priority:      rec.Priority,
			Count:         rec.Count,
			AffectedRooms: rec.AffectedRooms,
		}
	}
	record := models.InspectionSummary{
		ID:             models.NewID(models.SummaryIDPrefix),
		PropertyID:     propertyID,
		SummaryText:    summary.Text,
		TotalDefects:   result.Stats.TotalDefects,
		CriticalIssues: result.Stats.CriticalIssues,
		AffectedRooms:  result.Stats.AffectedRooms,
		InspectorEmail: inspectorEmail,
	}
	inspectedAt := s.now()

	err = retry.DoIfRetryable(ctx, s.retryConfig, func() error {
		return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.findings.CreateBatch(txCtx, findings); err != nil {
				return err
			}
			if err := s.improvements.CreateBatch(txCtx, improvements); err != nil {
				return err
			}
			if err := s.summaries.Create(txCtx, &record); err != nil {
				return err
			}
			return s.properties.MarkInspected(txCtx, propertyID, &result, inspectedAt)
		})
	})
	if err != nil {
		s.logger.Error("Failed to persist inspection",
			zap.String("property_id", propertyID),
			zap.Error(err))
		if errors.Is(err, apperrors.ErrInvalidState) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPersistence, err)
	}

	s.logger.Info("Inspection finalized",
		zap.String("property_id", propertyID),
		zap.Float64("risk_score", result.RiskScore),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Int("findings", len(findings)),
		zap.String("summary_status", string(summary.Status)),
		zap.Bool("summary_reused", cached != nil))

	return &FinalizeResult{Result: result, Summary: record, SummaryStatus: summary.Status}, nil
}

func (s *inspectionService) Abort(propertyID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[propertyID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no inspection in progress for %s: %w", propertyID, apperrors.ErrNotFound)
	}
	sess.mu.Lock()
	if sess.finalizing {
		sess.mu.Unlock()
		s.mu.Unlock()
		return fmt.Errorf("inspection for %s is being finalized: %w", propertyID, apperrors.ErrConflict)
	}
	delete(s.sessions, propertyID)
	s.mu.Unlock()

	discarded := len(sess.findings)
	sess.state = StateAborted
	sess.findings = nil
	sess.summary = nil
	sess.mu.Unlock()

	s.logger.Info("Inspection aborted",
		zap.String("property_id", propertyID),
		zap.Int("findings_discarded", discarded))
	return nil
}

func (s *inspectionService) RateLimitStatus(ctx context.Context) (ratelimit.Status, error) {
	return s.limiter.Status(ctx)
}
