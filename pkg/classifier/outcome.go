package classifier

import "github.com/nivaasika/nivaasika-engine/pkg/models"

// Status says how a classifier result was produced.
type Status string

const (
	// StatusSuccess means the provider answered and the reply parsed.
	StatusSuccess Status = "success"
	// StatusDegraded means fallback or sample data was returned instead of a live answer.
	StatusDegraded Status = "degraded"
	// StatusFailure means nothing usable was produced.
	StatusFailure Status = "failure"
)

// Reasons recorded on non-success outcomes.
const (
	ReasonMockMode      = "mock_mode"
	ReasonNoClient      = "client_unavailable"
	ReasonCircuitOpen   = "circuit_open"
	ReasonLimiter       = "rate_limiter_unavailable"
	ReasonQuota         = "quota_exceeded"
	ReasonProviderError = "provider_error"
	ReasonMalformed     = "malformed_response"
	ReasonEmptyReply    = "empty_reply"
)

// Outcome is the result of analyzing one image or one set of notes.
type Outcome struct {
	Status   Status           `json:"status"`
	Findings []models.Finding `json:"findings"`
	Reason   string           `json:"reason,omitempty"`
}

// SummaryOutcome is the result of generating the buyer-facing narrative.
type SummaryOutcome struct {
	Status Status `json:"status"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// SummaryInput is the property context given to the summary prompt.
type SummaryInput struct {
	Address   string
	RiskScore float64
}
