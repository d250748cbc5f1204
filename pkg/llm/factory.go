package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewVisionClient builds the client for cfg.Provider.
func NewVisionClient(cfg *Config, logger *zap.Logger) (VisionClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini, "":
		return NewGeminiClient(cfg, logger)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}
