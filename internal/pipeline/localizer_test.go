package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
)

func localizedRecord() *model.NewsItemRecord {
	date := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	record := model.NewRecord(model.CandidateLink{URL: "https://x.edu/a"})
	record.Content = testContent("https://x.edu/a")
	record.Verification = &model.VerificationResult{PublicationDate: &date, IsRecent: true, IsRelevant: true, ContentType: model.ContentNewsArticle, Confidence: 8}
	record.Summary = &model.EnglishSummary{Text: "The university changed its housing policy.", WordCount: 7}
	record.State = model.StateSummarized
	return record
}

func TestLocalizer_Localize(t *testing.T) {
	noAISleep(t)
	replies := []string{"校园住房新政出台", "大学改变了住房政策。", "据纽约大学2025-08-20消息，住房政策调整。", "据纽约大学消息，校方于8月20日调整住房政策。新政策将优先安排返校学生。"}
	provider := &stubProvider{}
	provider.fn = func(req llm.Request) (string, error) {
		call := int(provider.calls.Load()) - 1
		if call >= len(replies) {
			return "", errors.New("unexpected extra call")
		}
		return replies[call], nil
	}

	localizer := NewLocalizer(testLogger(), testAI(provider), testLLMConfig(), []string{"Donald Trump", "Harvard"})
	report, err := localizer.Localize(context.Background(), testInstitution(), localizedRecord())
	if err != nil {
		t.Fatalf("Localize failed: %v", err)
	}

	if report.Title != "校园住房新政出台" {
		t.Errorf("title = %q", report.Title)
	}
	if report.InitialTranslation != "大学改变了住房政策。" {
		t.Errorf("initial translation = %q", report.InitialTranslation)
	}
	if report.RefinedText != replies[3] {
		t.Errorf("refined text = %q", report.RefinedText)
	}
	if got := provider.calls.Load(); got != 4 {
		t.Errorf("provider calls = %d, want 4 ordered sub-steps", got)
	}
}

func TestLocalizer_PromptsCarryDateAndNames(t *testing.T) {
	noAISleep(t)
	var sawDate, sawNameRule bool
	provider := &stubProvider{fn: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "2025-08-20") {
			sawDate = true
		}
		if strings.Contains(req.Prompt, "Donald Trump") {
			sawNameRule = true
		}
		return "中文内容。", nil
	}}

	localizer := NewLocalizer(testLogger(), testAI(provider), testLLMConfig(), []string{"Donald Trump"})
	if _, err := localizer.Localize(context.Background(), testInstitution(), localizedRecord()); err != nil {
		t.Fatal(err)
	}
	if !sawDate {
		t.Error("restyle prompt never carried the publication date")
	}
	if !sawNameRule {
		t.Error("translation prompt never carried the well-known-names rule")
	}
}

func TestLocalizer_MidStepFailureDiscardsPartialOutput(t *testing.T) {
	noAISleep(t)
	provider := &stubProvider{}
	provider.fn = func(req llm.Request) (string, error) {
		if provider.calls.Load() > 2 {
			return "", errors.New("model overloaded")
		}
		return "中文内容。", nil
	}

	localizer := NewLocalizer(testLogger(), testAI(provider), testLLMConfig(), nil)
	report, err := localizer.Localize(context.Background(), testInstitution(), localizedRecord())
	if err == nil {
		t.Fatal("expected error when a sub-step fails")
	}
	if report != nil {
		t.Errorf("partial report surfaced: %+v", report)
	}
}

func TestLocalizer_TitlePrefixStripped(t *testing.T) {
	noAISleep(t)
	provider := &stubProvider{fn: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "标题") && !strings.Contains(req.Prompt, "精炼") && !strings.Contains(req.Prompt, "翻译") && !strings.Contains(req.Prompt, "改写") {
			return "Chinese Title: 校园新政", nil
		}
		return "中文内容。", nil
	}}

	localizer := NewLocalizer(testLogger(), testAI(provider), testLLMConfig(), nil)
	report, err := localizer.Localize(context.Background(), testInstitution(), localizedRecord())
	if err != nil {
		t.Fatal(err)
	}
	if report.Title != "校园新政" {
		t.Errorf("title = %q, want prefix stripped", report.Title)
	}
}
