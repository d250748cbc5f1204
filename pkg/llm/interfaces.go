// Package llm provides vision-capable model clients for defect analysis.
package llm

import (
	"context"
)

// VisionClient is the provider surface the classifier depends on.
type VisionClient interface {
	// GenerateText sends a text-only prompt and returns the reply text.
	GenerateText(ctx context.Context, prompt string, systemMessage string) (string, error)

	// GenerateWithImage sends a prompt together with one image.
	GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

var (
	_ VisionClient = (*OpenAIClient)(nil)
	_ VisionClient = (*AnthropicClient)(nil)
	_ VisionClient = (*GeminiClient)(nil)
	_ VisionClient = (*MockVisionClient)(nil)
)
