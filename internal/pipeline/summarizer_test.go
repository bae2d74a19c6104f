package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
)

func testSummaryConfig() config.SummaryConfig {
	return config.SummaryConfig{MinWords: 100, MaxWords: 180, RejectBelow: 20}
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestSummarizer_Summarize(t *testing.T) {
	noAISleep(t)
	text := "The university announced new housing rules. " + words(115) + "."
	provider := &stubProvider{fn: func(req llm.Request) (string, error) {
		if req.Model != "write-model" {
			t.Errorf("model = %q, want write-model", req.Model)
		}
		if !strings.Contains(req.Prompt, "Chinese international students at NYU") {
			t.Error("prompt missing audience")
		}
		return text, nil
	}}

	summarizer := NewSummarizer(testLogger(), testAI(provider), testLLMConfig(), testSummaryConfig())
	summary, err := summarizer.Summarize(context.Background(), testInstitution(), testContent("https://x.edu/a"))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if summary.Text != text {
		t.Error("summary text altered")
	}
	if summary.WordCount < 100 || summary.WordCount > 180 {
		t.Errorf("word count = %d, want within 100-180", summary.WordCount)
	}
	if summary.SentenceCount < 1 {
		t.Errorf("sentence count = %d", summary.SentenceCount)
	}
}

func TestSummarizer_ShortOutputRetriedOnce(t *testing.T) {
	noAISleep(t)
	provider := &stubProvider{}
	provider.fn = func(req llm.Request) (string, error) {
		if provider.calls.Load() == 1 {
			return "Too short.", nil
		}
		if !strings.Contains(req.Prompt, "far too short") {
			t.Error("retry prompt missing stricter instruction")
		}
		return words(120), nil
	}

	summarizer := NewSummarizer(testLogger(), testAI(provider), testLLMConfig(), testSummaryConfig())
	summary, err := summarizer.Summarize(context.Background(), testInstitution(), testContent("https://x.edu/a"))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.WordCount != 120 {
		t.Errorf("word count = %d, want 120 from retry", summary.WordCount)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestSummarizer_PersistentlyShortFails(t *testing.T) {
	noAISleep(t)
	provider := &stubProvider{fn: func(req llm.Request) (string, error) {
		return "Still too short.", nil
	}}

	summarizer := NewSummarizer(testLogger(), testAI(provider), testLLMConfig(), testSummaryConfig())
	_, err := summarizer.Summarize(context.Background(), testInstitution(), testContent("https://x.edu/a"))
	if err == nil {
		t.Fatal("expected error for persistently short output")
	}
	if kind := model.KindOf(err); kind != model.ErrSchema {
		t.Errorf("error kind = %s, want schema", kind)
	}
}

func TestSummarizer_OutOfBandButPlausibleIsKept(t *testing.T) {
	noAISleep(t)
	// 60 words: under the soft target, over the malformed floor
	provider := &stubProvider{fn: func(req llm.Request) (string, error) {
		return words(60), nil
	}}

	summarizer := NewSummarizer(testLogger(), testAI(provider), testLLMConfig(), testSummaryConfig())
	summary, err := summarizer.Summarize(context.Background(), testInstitution(), testContent("https://x.edu/a"))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.WordCount != 60 {
		t.Errorf("word count = %d, want 60", summary.WordCount)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry inside tolerance)", got)
	}
}
