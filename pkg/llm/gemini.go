package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// GeminiDefaultEndpoint is the public Generative Language API host.
const GeminiDefaultEndpoint = "https://generativelanguage.googleapis.com"

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiClient calls the generateContent REST endpoint directly.
type GeminiClient struct {
	http      *resty.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewGeminiClient creates a Gemini REST client. The key travels in a header, never the URL.
func NewGeminiClient(cfg *Config, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = GeminiDefaultEndpoint
	}

	// No transport retries: each attempt must pass through the rate limiter.
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(cfg.timeout()).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &GeminiClient{
		http:      client,
		endpoint:  endpoint,
		model:     cfg.Model,
		maxTokens: cfg.maxTokens(),
		logger:    logger.Named("gemini"),
	}, nil
}

func (c *GeminiClient) GenerateText(ctx context.Context, prompt string, systemMessage string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if systemMessage != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemMessage}}}
	}
	return c.generate(ctx, req)
}

func (c *GeminiClient) GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
	}
	return c.generate(ctx, req)
}

func (c *GeminiClient) generate(ctx context.Context, req geminiRequest) (string, error) {
	req.GenerationConfig.MaxOutputTokens = c.maxTokens

	start := time.Now()
	var result geminiResponse
	var apiErr geminiErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v1beta/models/" + c.model + ":generateContent")
	if err != nil {
		c.logger.Error("Vision request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return "", llmErr
	}

	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Error("Vision request rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("status", apiErr.Error.Status),
			zap.Duration("elapsed", time.Since(start)))

		llmErr := ClassifyError(fmt.Errorf("status code: %d, %s: %s", resp.StatusCode(), apiErr.Error.Status, msg))
		llmErr.StatusCode = resp.StatusCode()
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return "", llmErr
	}

	var sb strings.Builder
	if len(result.Candidates) > 0 {
		for _, p := range result.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", NewErrorWithContext(ErrorTypeMalformed, "no text in candidates", false, nil, c.model, c.endpoint, resp.StatusCode())
	}

	c.logger.Info("Vision request completed",
		zap.Int("prompt_tokens", result.UsageMetadata.PromptTokenCount),
		zap.Int("completion_tokens", result.UsageMetadata.CandidatesTokenCount),
		zap.Duration("elapsed", time.Since(start)))
	return sb.String(), nil
}

// GetModel returns the configured model name.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *GeminiClient) GetEndpoint() string {
	return c.endpoint
}
