package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient sends prompts and images to the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a Messages API client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
	}
	endpoint := "https://api.anthropic.com/v1"
	if cfg.Endpoint != "" {
		endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:  endpoint,
		model:     cfg.Model,
		maxTokens: cfg.maxTokens(),
		logger:    logger.Named("anthropic"),
	}, nil
}

func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string, systemMessage string) (string, error) {
	return c.send(ctx, systemMessage, []anthropic.MessageContent{
		anthropic.NewTextMessageContent(prompt),
	})
}

func (c *AnthropicClient) GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	source := anthropic.NewMessageContentSource(
		anthropic.MessagesContentSourceTypeBase64,
		mimeType,
		base64.StdEncoding.EncodeToString(image),
	)
	return c.send(ctx, "", []anthropic.MessageContent{
		anthropic.NewImageMessageContent(source),
		anthropic.NewTextMessageContent(prompt),
	})
}

func (c *AnthropicClient) send(ctx context.Context, system string, content []anthropic.MessageContent) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: content},
		},
	})
	if err != nil {
		c.logger.Error("Vision request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return "", llmErr
	}

	text := extractText(resp)
	if text == "" {
		return "", NewErrorWithContext(ErrorTypeMalformed, "no text block in response", false, nil, c.model, c.endpoint, 0)
	}

	c.logger.Info("Vision request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

func extractText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}
