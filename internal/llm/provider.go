// Package llm abstracts the AI inference service behind a single chat
// completion contract shared by the verifier, summarizer and localizer.
package llm

import (
	"context"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
)

// Provider defines the interface for LLM backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the model's text response.
	// Implementations must respect ctx and their configured timeout.
	Complete(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Request is one chat completion call.
type Request struct {
	// System sets the model's role for this call
	System string

	// Prompt is the rendered user message
	Prompt string

	// Model overrides the provider's default model
	Model string

	// Temperature controls sampling. The zero value is sent as-is, so
	// classification calls get deterministic output by default.
	Temperature float32

	// MaxTokens limits the response length
	MaxTokens int
}

// Response is the model's reply.
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "openrouter", "anthropic", "ollama"
	Provider string

	// Model is the default model when a request doesn't name one
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (OpenRouter, Ollama, proxies)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens default for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// FromJobConfig converts the job's LLM section into a provider config.
func FromJobConfig(c config.LLMConfig) Config {
	return Config{
		Provider:  c.Provider,
		Model:     c.WriteModel,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Timeout:   c.Timeout,
		MaxTokens: c.MaxTokens,
	}
}
