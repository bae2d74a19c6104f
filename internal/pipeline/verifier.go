package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/source"
)

// verifyArticleChars caps how much article text is sent for
// classification. Campus articles rarely exceed this; anything longer
// is almost certainly boilerplate the model doesn't need.
const verifyArticleChars = 30_000

// Verifier classifies an extracted article: publication date, audience
// relevance with a 1-10 confidence, and content type. The model must
// answer in strict JSON; a malformed reply gets exactly one stricter
// retry before the item fails.
type Verifier struct {
	ai     *aiClient
	model  string
	window config.Window
	log    *slog.Logger
}

// NewVerifier builds a verifier for the job's recency window.
func NewVerifier(log *slog.Logger, ai *aiClient, llmCfg config.LLMConfig, window config.Window) *Verifier {
	return &Verifier{
		ai:     ai,
		model:  llmCfg.VerifyModel,
		window: window,
		log:    log,
	}
}

// verifyPayload is the exact JSON shape the model must return.
type verifyPayload struct {
	PublicationDate string `json:"publication_date"`
	IsRelevant      bool   `json:"is_relevant"`
	ContentType     string `json:"content_type"`
	Confidence      int    `json:"confidence"`
	Reason          string `json:"reason"`
}

// Verify classifies one article. The result is derived once and never
// mutated: calling Verify twice on the same content yields equivalent
// classifications modulo model nondeterminism, which temperature zero
// minimizes.
func (v *Verifier) Verify(ctx context.Context, inst config.InstitutionProfile, candidate model.CandidateLink, content *model.ArticleContent) (*model.VerificationResult, error) {
	req := llm.Request{
		System: "You are a precise news classification assistant. You answer with a single JSON object and nothing else.",
		Prompt: v.buildPrompt(inst, content),
		Model:  v.model,
	}

	payload, err := v.askOnce(ctx, req)
	if err != nil {
		if model.KindOf(err) != model.ErrSchema {
			return nil, err
		}
		// One stricter retry on malformed output
		v.log.Warn("verification reply malformed, retrying strict", "url", content.URL, "error", err)
		req.Prompt += "\n\nYour previous reply was not valid JSON. Respond with ONLY the JSON object, no markdown fences, no commentary."
		payload, err = v.askOnce(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	result := &model.VerificationResult{
		IsRelevant:  payload.IsRelevant,
		ContentType: model.ContentType(payload.ContentType),
		Confidence:  payload.Confidence,
		Reason:      strings.TrimSpace(payload.Reason),
	}

	if date := source.ParseLooseDate(payload.PublicationDate); date != nil {
		result.PublicationDate = date
		result.DateSource = "model"
	} else if fallback := urlDateFallback(candidate); fallback != nil {
		result.PublicationDate = fallback
		result.DateSource = "url"
	}
	result.IsRecent = result.PublicationDate != nil && v.window.Contains(*result.PublicationDate)

	v.log.Debug("article verified",
		"url", content.URL,
		"recent", result.IsRecent,
		"relevant", result.IsRelevant,
		"type", result.ContentType,
		"confidence", result.Confidence)
	return result, nil
}

func (v *Verifier) buildPrompt(inst config.InstitutionProfile, content *model.ArticleContent) string {
	text := content.RawText
	if len(text) > verifyArticleChars {
		text = text[:verifyArticleChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Classify the following article from %s for an audience of %s.\n\n", inst.Name, inst.AudienceEN)
	fmt.Fprintf(&b, "Audience interests: %s.\n\n", strings.Join(inst.Keywords, ", "))
	b.WriteString("Answer with exactly this JSON object:\n")
	b.WriteString(`{"publication_date": "YYYY-MM-DD or empty string if the text states no date", "is_relevant": true|false, "content_type": "news_article|opinion|event|other", "confidence": 1-10, "reason": "one sentence"}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- publication_date must come from the article text itself, not be guessed.\n")
	b.WriteString("- is_relevant is true when the article affects the audience's studies, campus life, finances, safety, or visa/immigration situation.\n")
	b.WriteString("- confidence grades how strongly the article matters to that audience, 1 (barely) to 10 (critical).\n")
	b.WriteString("- content_type: news_article for reported news, opinion for signed columns and editorials, event for announcements of upcoming events, other for anything else.\n\n")
	fmt.Fprintf(&b, "Article title: %s\nArticle URL: %s\n\n--- Article text ---\n%s\n--- End of article text ---\n", content.Title, content.URL, text)
	return b.String()
}

// askOnce sends the prompt and parses the strict-JSON reply.
// Temperature stays at zero so classification is deterministic.
func (v *Verifier) askOnce(ctx context.Context, req llm.Request) (*verifyPayload, error) {
	text, err := v.ai.complete(ctx, "verify", req)
	if err != nil {
		return nil, err
	}

	raw := extractJSONObject(text)
	if raw == "" {
		return nil, model.NewStageError("verify", model.ErrSchema,
			fmt.Errorf("no JSON object in reply: %q", truncateForLog(text)))
	}

	var payload verifyPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, model.NewStageError("verify", model.ErrSchema, fmt.Errorf("decode reply: %w", err))
	}

	switch model.ContentType(payload.ContentType) {
	case model.ContentNewsArticle, model.ContentOpinion, model.ContentEvent, model.ContentOther:
	default:
		return nil, model.NewStageError("verify", model.ErrSchema,
			fmt.Errorf("unknown content_type %q", payload.ContentType))
	}
	if payload.Confidence < 1 || payload.Confidence > 10 {
		return nil, model.NewStageError("verify", model.ErrSchema,
			fmt.Errorf("confidence %d outside 1-10", payload.Confidence))
	}
	return &payload, nil
}

// Acceptance evaluates the full policy against a verification result.
// All predicates are checked so a rejection reason names everything
// that disqualified the article, not just the first miss.
func Acceptance(inst config.InstitutionProfile, vr *model.VerificationResult) (bool, []string) {
	var reasons []string

	if !vr.IsRecent {
		if vr.PublicationDate == nil {
			reasons = append(reasons, "no publication date found")
		} else {
			reasons = append(reasons, fmt.Sprintf("published %s, outside the window", vr.PublicationDate.Format("2006-01-02")))
		}
	}
	if !vr.IsRelevant {
		reasons = append(reasons, "not relevant to the audience")
	}
	if !contentTypeAccepted(inst, vr.ContentType) {
		reasons = append(reasons, fmt.Sprintf("content type %s not accepted", vr.ContentType))
	}

	return len(reasons) == 0, reasons
}

func contentTypeAccepted(inst config.InstitutionProfile, ct model.ContentType) bool {
	switch ct {
	case model.ContentNewsArticle:
		return true
	case model.ContentEvent:
		return inst.IncludeEvents
	case model.ContentOpinion:
		return inst.IncludeOpinion
	default:
		return false
	}
}

// urlDateFallback recovers a publication date from the URL path or the
// discovery-time hint when the model found none in the text.
func urlDateFallback(candidate model.CandidateLink) *time.Time {
	if d := source.DateFromURL(candidate.URL); d != nil {
		return d
	}
	return candidate.DateHint
}

// extractJSONObject pulls the outermost {...} from a reply that may be
// wrapped in markdown fences or prose.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
