package llm

import (
	"context"
	"sync"
)

// MockVisionClient is a configurable VisionClient for tests.
// Set the function fields to control behavior.
type MockVisionClient struct {
	mu sync.Mutex

	// GenerateTextFunc is called by GenerateText. If nil, returns `{"defects": []}`.
	GenerateTextFunc func(ctx context.Context, prompt string, systemMessage string) (string, error)

	// GenerateWithImageFunc is called by GenerateWithImage. If nil, returns `{"defects": []}`.
	GenerateWithImageFunc func(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Call tracking for verification
	GenerateTextCalls      int
	GenerateWithImageCalls int
	LastPrompt             string
}

// NewMockVisionClient creates a new mock with sensible defaults.
func NewMockVisionClient() *MockVisionClient {
	return &MockVisionClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// GenerateText implements VisionClient.
func (m *MockVisionClient) GenerateText(ctx context.Context, prompt string, systemMessage string) (string, error) {
	m.mu.Lock()
	m.GenerateTextCalls++
	m.LastPrompt = prompt
	fn := m.GenerateTextFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, systemMessage)
	}
	return `{"defects": []}`, nil
}

// GenerateWithImage implements VisionClient.
func (m *MockVisionClient) GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	m.mu.Lock()
	m.GenerateWithImageCalls++
	m.LastPrompt = prompt
	fn := m.GenerateWithImageFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, image, mimeType)
	}
	return `{"defects": []}`, nil
}

// Calls returns the total number of calls across both methods.
func (m *MockVisionClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GenerateTextCalls + m.GenerateWithImageCalls
}

// GetModel implements VisionClient.
func (m *MockVisionClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements VisionClient.
func (m *MockVisionClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}
