package llm

import (
	"testing"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"openai", "openai", false},
		{"openrouter", "openrouter", false},
		{"OpenRouter", "openrouter", false},
		{"anthropic", "anthropic", false},
		{"claude", "anthropic", false},
		{"ollama", "ollama", false},
		{"gemini-direct", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, APIKey: "test-key", Model: "m"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for provider %q", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider(%q) failed: %v", tt.provider, err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestFromJobConfig(t *testing.T) {
	jobCfg := config.LLMConfig{
		Provider:   "openrouter",
		APIKey:     "k",
		BaseURL:    "https://proxy.example.com/v1",
		WriteModel: "google/gemini-2.5-pro",
		Timeout:    30 * time.Second,
		MaxTokens:  1500,
	}

	got := FromJobConfig(jobCfg)

	if got.Provider != "openrouter" || got.Model != "google/gemini-2.5-pro" {
		t.Errorf("provider/model = %q/%q", got.Provider, got.Model)
	}
	if got.BaseURL != jobCfg.BaseURL || got.Timeout != jobCfg.Timeout || got.MaxTokens != jobCfg.MaxTokens {
		t.Error("job config fields not carried over")
	}
}
