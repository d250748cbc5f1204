// Package classifier turns room photos and inspector notes into findings using
// a vision provider, degrading to sample data when the provider is unavailable.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/jsonutil"
	"github.com/nivaasika/nivaasika-engine/pkg/llm"
	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/prompts"
	"github.com/nivaasika/nivaasika-engine/pkg/ratelimit"
)

// Config holds classifier behavior switches.
type Config struct {
	// MockMode serves sample data without calling the provider.
	MockMode bool
	// MaxConcurrentImages bounds parallel image analysis within one room.
	MaxConcurrentImages int
	// CircuitBreaker settings for provider failures.
	CircuitBreaker llm.CircuitBreakerConfig
}

// DefectClassifier is what the inspection workflow needs from this package.
type DefectClassifier interface {
	AnalyzeImages(ctx context.Context, images [][]byte, room string) []Outcome
	ParseNotes(ctx context.Context, notes, room string) Outcome
	Summarize(ctx context.Context, in SummaryInput, findings []models.Finding) SummaryOutcome
}

// Classifier is the provider-backed DefectClassifier.
type Classifier struct {
	client   llm.VisionClient
	limiter  ratelimit.RequestLimiter
	breaker  *llm.CircuitBreaker
	pool     *llm.WorkerPool
	mockMode bool
	logger   *zap.Logger
}

var _ DefectClassifier = (*Classifier)(nil)

// New creates a Classifier. client may be nil, in which case every call degrades.
func New(client llm.VisionClient, limiter ratelimit.RequestLimiter, cfg Config, logger *zap.Logger) *Classifier {
	if cfg.CircuitBreaker.Threshold == 0 {
		cfg.CircuitBreaker = llm.DefaultCircuitBreakerConfig()
	}
	return &Classifier{
		client:   client,
		limiter:  limiter,
		breaker:  llm.NewCircuitBreaker(cfg.CircuitBreaker),
		pool:     llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.MaxConcurrentImages}, logger),
		mockMode: cfg.MockMode,
		logger:   logger.Named("classifier"),
	}
}

// unavailableReason reports why no provider call should be attempted, or "".
func (c *Classifier) unavailableReason() string {
	if c.mockMode {
		return ReasonMockMode
	}
	if c.client == nil {
		return ReasonNoClient
	}
	if ok, _ := c.breaker.Allow(); !ok {
		return ReasonCircuitOpen
	}
	return ""
}

// invoke gates one provider call through the limiter and breaker. The
// returned reason is empty on success.
func (c *Classifier) invoke(ctx context.Context, call func(ctx context.Context) (string, error)) (string, string) {
	if c.limiter != nil {
		waited, err := c.limiter.Acquire(ctx)
		if err != nil {
			// No provider call happened; hand a half-open slot back.
			c.breaker.Release()
			c.logger.Warn("Rate limiter unavailable", zap.Error(err))
			return "", ReasonLimiter
		}
		if waited > 0 {
			c.logger.Info("Waited for rate limit window", zap.Duration("waited", waited))
		}
	}

	reply, err := call(ctx)
	if err != nil {
		c.breaker.RecordFailure()
		if llm.IsQuotaError(err) {
			c.logger.Warn("Vision provider quota exceeded", zap.Error(err))
			return "", ReasonQuota
		}
		c.logger.Error("Vision provider call failed", zap.Error(err))
		return "", ReasonProviderError
	}
	c.breaker.RecordSuccess()
	return reply, ""
}

// AnalyzeImage returns the defects visible in one photo of room. It never
// fails: any problem yields the room's sample findings with StatusDegraded.
func (c *Classifier) AnalyzeImage(ctx context.Context, image []byte, room string) Outcome {
	if reason := c.unavailableReason(); reason != "" {
		return c.degraded(room, reason)
	}

	mimeType := detectImageType(image)
	reply, reason := c.invoke(ctx, func(ctx context.Context) (string, error) {
		return c.client.GenerateWithImage(ctx, prompts.BuildImagePrompt(room), image, mimeType)
	})
	if reason != "" {
		return c.degraded(room, reason)
	}

	findings, err := parseDefects(reply, room, models.SourceImageAI)
	if err != nil {
		c.logger.Warn("Unparseable image analysis reply",
			zap.String("room", room),
			zap.String("reply_prefix", truncate(reply, 200)),
			zap.Error(err))
		return c.degraded(room, ReasonMalformed)
	}
	return Outcome{Status: StatusSuccess, Findings: findings}
}

// AnalyzeImages analyzes several photos of one room in parallel. Outcomes are
// returned in upload order.
func (c *Classifier) AnalyzeImages(ctx context.Context, images [][]byte, room string) []Outcome {
	items := make([]llm.WorkItem[Outcome], len(images))
	for i, img := range images {
		img := img
		items[i] = llm.WorkItem[Outcome]{
			ID: fmt.Sprintf("%s#%d", room, i+1),
			Execute: func(ctx context.Context) (Outcome, error) {
				return c.AnalyzeImage(ctx, img, room), nil
			},
		}
	}

	results := llm.Process(ctx, c.pool, items, nil)
	outcomes := make([]Outcome, len(results))
	for i, r := range results {
		if r.Err != nil {
			outcomes[i] = c.degraded(room, ReasonProviderError)
			continue
		}
		outcomes[i] = r.Result
	}
	return outcomes
}

// ParseNotes extracts defects from free-text notes. Empty notes succeed with
// no findings and no provider call. There is no sample table for notes, so
// provider or parse problems yield StatusFailure with no findings.
func (c *Classifier) ParseNotes(ctx context.Context, notes, room string) Outcome {
	if strings.TrimSpace(notes) == "" {
		return Outcome{Status: StatusSuccess, Findings: []models.Finding{}}
	}
	if reason := c.unavailableReason(); reason != "" {
		return Outcome{Status: StatusDegraded, Findings: []models.Finding{}, Reason: reason}
	}

	reply, reason := c.invoke(ctx, func(ctx context.Context) (string, error) {
		return c.client.GenerateText(ctx, prompts.BuildNotesPrompt(room, notes), prompts.InspectorSystemMessage)
	})
	if reason != "" {
		return Outcome{Status: StatusFailure, Findings: []models.Finding{}, Reason: reason}
	}

	findings, err := parseDefects(reply, room, models.SourceInspectorNotes)
	if err != nil {
		c.logger.Warn("Unparseable notes reply", zap.String("room", room), zap.Error(err))
		return Outcome{Status: StatusFailure, Findings: []models.Finding{}, Reason: ReasonMalformed}
	}
	return Outcome{Status: StatusSuccess, Findings: findings}
}

// Summarize writes the buyer-facing narrative, falling back to a template
// tiered by risk score.
func (c *Classifier) Summarize(ctx context.Context, in SummaryInput, findings []models.Finding) SummaryOutcome {
	fallback := func(reason string) SummaryOutcome {
		return SummaryOutcome{Status: StatusDegraded, Text: FallbackSummary(in, len(findings)), Reason: reason}
	}

	if reason := c.unavailableReason(); reason != "" {
		return fallback(reason)
	}

	items := make([]prompts.SummaryFinding, len(findings))
	for i, f := range findings {
		items[i] = prompts.SummaryFinding{
			Room:        f.RoomName,
			DefectType:  string(f.DefectType),
			Severity:    f.Severity,
			Description: f.Description,
		}
	}

	reply, reason := c.invoke(ctx, func(ctx context.Context) (string, error) {
		return c.client.GenerateText(ctx, prompts.BuildSummaryPrompt(in.Address, in.RiskScore, items), prompts.InspectorSystemMessage)
	})
	if reason != "" {
		return fallback(reason)
	}

	text := strings.TrimSpace(llm.StripCodeFences(reply))
	if text == "" {
		return fallback(ReasonEmptyReply)
	}
	return SummaryOutcome{Status: StatusSuccess, Text: text}
}

func (c *Classifier) degraded(room, reason string) Outcome {
	c.logger.Info("Serving sample findings",
		zap.String("room", room),
		zap.String("reason", reason))
	return Outcome{Status: StatusDegraded, Findings: FallbackFindings(room), Reason: reason}
}

type defectReply struct {
	Defects []rawDefect `json:"defects"`
}

type rawDefect struct {
	DefectType  json.RawMessage `json:"defect_type"`
	Severity    json.RawMessage `json:"severity"`
	Description json.RawMessage `json:"description"`
}

// parseDefects reads {"defects": [...]} from a reply. A missing severity
// defaults to the minimum. Types and severities are normalized.
func parseDefects(reply, room string, source models.FindingSource) ([]models.Finding, error) {
	parsed, err := llm.ParseJSONResponse[defectReply](reply)
	if err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(parsed.Defects))
	for _, d := range parsed.Defects {
		severity, ok := jsonutil.FlexibleIntValue(d.Severity)
		if !ok {
			severity = models.MinSeverity
		}
		findings = append(findings, models.NewFinding(
			room,
			jsonutil.FlexibleStringValue(d.DefectType),
			severity,
			strings.TrimSpace(jsonutil.FlexibleStringValue(d.Description)),
			source,
		))
	}
	return findings, nil
}

// detectImageType sniffs the upload. Unknown content is sent as JPEG.
func detectImageType(image []byte) string {
	ct := http.DetectContentType(image)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
