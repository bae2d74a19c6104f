package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
)

// summaryArticleChars caps how much article text goes into the
// summarization prompt.
const summaryArticleChars = 100_000

// Summarizer produces the English working summary for a verified
// article. The 100-180 word range is a soft target; only wildly short
// output is treated as malformed and retried once.
type Summarizer struct {
	ai          *aiClient
	model       string
	minWords    int
	maxWords    int
	rejectBelow int
	log         *slog.Logger
}

// NewSummarizer builds a summarizer from the job configuration.
func NewSummarizer(log *slog.Logger, ai *aiClient, llmCfg config.LLMConfig, sumCfg config.SummaryConfig) *Summarizer {
	return &Summarizer{
		ai:          ai,
		model:       llmCfg.WriteModel,
		minWords:    sumCfg.MinWords,
		maxWords:    sumCfg.MaxWords,
		rejectBelow: sumCfg.RejectBelow,
		log:         log,
	}
}

// Summarize writes the English summary for one article.
func (s *Summarizer) Summarize(ctx context.Context, inst config.InstitutionProfile, content *model.ArticleContent) (*model.EnglishSummary, error) {
	req := llm.Request{
		System:      "You are a professional English-language news writer.",
		Prompt:      s.buildPrompt(inst, content),
		Model:       s.model,
		Temperature: 0.4,
	}

	summary, err := s.askOnce(ctx, req)
	if err != nil {
		if model.KindOf(err) != model.ErrSchema {
			return nil, err
		}
		// One stricter retry when the output is too short to be a summary
		s.log.Warn("summary too short, retrying strict", "url", content.URL, "error", err)
		req.Prompt += fmt.Sprintf("\n\nYour previous reply was far too short. Write the full %d-%d word summary.", s.minWords, s.maxWords)
		summary, err = s.askOnce(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	if summary.WordCount < s.minWords || summary.WordCount > s.maxWords {
		s.log.Debug("summary outside target band, keeping",
			"url", content.URL, "words", summary.WordCount, "min", s.minWords, "max", s.maxWords)
	}
	return summary, nil
}

func (s *Summarizer) buildPrompt(inst config.InstitutionProfile, content *model.ArticleContent) string {
	text := content.RawText
	if len(text) > summaryArticleChars {
		text = text[:summaryArticleChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a detailed yet concise news summary, approximately 5-7 sentences or %d-%d words, based on the provided article text.\n", s.minWords, s.maxWords)
	fmt.Fprintf(&b, "The summary is for %s. Focus on the key information most relevant to their studies, work, daily life, or immigration and visa situation, especially concerning events or policies in %s.\n\n", inst.AudienceEN, inst.Location)
	b.WriteString("Cover, keeping important details:\n")
	b.WriteString("- What happened (core event or announcement)\n")
	b.WriteString("- When and where (specific dates and locations)\n")
	b.WriteString("- Who was involved (key individuals, groups, departments)\n")
	b.WriteString("- Main consequences or direct impacts for the audience\n")
	b.WriteString("- Crucial numbers, statistics, or outcomes\n\n")
	b.WriteString("Maintain a factual and objective tone. Do not add opinions or information not in the article text. Provide the summary directly, without introductory phrases like 'This article is about'.\n\n")
	if content.Title != "" {
		fmt.Fprintf(&b, "The original article title is: %q.\n", content.Title)
	}
	fmt.Fprintf(&b, "The article URL is: %s (for your reference).\n\n--- Article text ---\n%s\n--- End of article text ---\n", content.URL, text)
	return b.String()
}

func (s *Summarizer) askOnce(ctx context.Context, req llm.Request) (*model.EnglishSummary, error) {
	text, err := s.ai.complete(ctx, "summarize", req)
	if err != nil {
		return nil, err
	}

	summary := &model.EnglishSummary{
		Text:          text,
		WordCount:     len(strings.Fields(text)),
		SentenceCount: countSentences(text),
	}
	if summary.WordCount < s.rejectBelow {
		return nil, model.NewStageError("summarize", model.ErrSchema,
			fmt.Errorf("summary has %d words, below the %d-word floor", summary.WordCount, s.rejectBelow))
	}
	return summary, nil
}

func countSentences(s string) int {
	count := 0
	prevTerminator := false
	for _, r := range s {
		switch r {
		case '.', '!', '?':
			if !prevTerminator {
				count++
			}
			prevTerminator = true
		default:
			prevTerminator = false
		}
	}
	return count
}
