package model

import "time"

// ContentType is the AI-assessed classification of a page
type ContentType string

const (
	ContentNewsArticle ContentType = "news_article"
	ContentOpinion     ContentType = "opinion"
	ContentEvent       ContentType = "event"
	ContentOther       ContentType = "other"
)

// VerificationResult is the verifier's classification of one article.
// Derived once from ArticleContent; immutable.
type VerificationResult struct {
	PublicationDate *time.Time  `json:"publication_date,omitempty"`
	DateSource      string      `json:"date_source,omitempty"` // "model" or "url"
	IsRecent        bool        `json:"is_recent"`
	IsRelevant      bool        `json:"is_relevant"`
	ContentType     ContentType `json:"content_type"`
	Confidence      int         `json:"confidence"`       // Relevance strength, 1-10
	Reason          string      `json:"reason,omitempty"` // Model's one-line justification
}

// EnglishSummary is the summarizer's output.
type EnglishSummary struct {
	Text          string `json:"text"`
	SentenceCount int    `json:"sentence_count"`
	WordCount     int    `json:"word_count"`
}

// ChineseReport holds the localizer's staged output. RefinedText is the
// only field surfaced downstream; the earlier stages are retained for
// audit.
type ChineseReport struct {
	Title              string `json:"title"`
	InitialTranslation string `json:"initial_translation"`
	RefinedText        string `json:"refined_text"`
}

// RankedReport is the coordinator's output: an accepted record with its
// computed relevance score and final position.
type RankedReport struct {
	Record         *NewsItemRecord `json:"record"`
	RelevanceScore float64         `json:"relevance_score"`
	Rank           int             `json:"rank"`
}

// Counters are the rolling per-job counts surfaced to operators.
// The gap between any two is always explainable by per-record reasons.
type Counters struct {
	Discovered int `json:"discovered"`
	Processed  int `json:"processed"` // Extraction succeeded
	Exported   int `json:"exported"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}
