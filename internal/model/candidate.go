package model

import "time"

// SourceKind classifies how a candidate link was discovered
type SourceKind string

const (
	SourceCategoryScan SourceKind = "category-scan" // Crawled from an institution's listing pages
	SourceSearchQuery  SourceKind = "search-query"  // Returned by a keyword search backend
	SourceFeed         SourceKind = "feed"          // Parsed from an RSS/Atom feed
)

// CandidateLink is a discovered URL that has not yet been verified as a
// qualifying news article. Immutable once created.
type CandidateLink struct {
	URL           string     `json:"url"`
	InstitutionID string     `json:"institution_id"`
	DiscoveredAt  time.Time  `json:"discovered_at"`
	SourceKind    SourceKind `json:"source_kind"`
	Title         string     `json:"title,omitempty"`     // Anchor/feed title, if the source exposed one
	DateHint      *time.Time `json:"date_hint,omitempty"` // Publication date from the URL path or feed metadata
}

// ArticleContent is the extracted readable text for a candidate.
// Produced once by the extractor, never mutated afterward.
type ArticleContent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	RawText   string    `json:"raw_text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// WordCount returns the whitespace-delimited word count of the raw text.
func (c ArticleContent) WordCount() int {
	count := 0
	inWord := false
	for _, r := range c.RawText {
		switch r {
		case ' ', '\t', '\n', '\r':
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}
