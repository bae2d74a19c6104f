// Package coordinator merges the per-institution pipeline outputs into
// one ranked result set: cross-source deduplication, weighted relevance
// scoring and deterministic ordering.
package coordinator

import (
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/source"
)

// Coordinator ranks accepted records across institutions.
type Coordinator struct {
	scoring     config.ScoringConfig
	window      config.Window
	priorities  map[string]float64
	maxPriority float64
	log         *slog.Logger
}

// New builds a coordinator for one job.
func New(log *slog.Logger, cfg *config.Config, window config.Window) *Coordinator {
	priorities := make(map[string]float64, len(cfg.Institutions))
	maxPriority := 0.0
	for _, inst := range cfg.Institutions {
		p := inst.Priority
		if p <= 0 {
			p = 1.0
		}
		priorities[inst.ID] = p
		if p > maxPriority {
			maxPriority = p
		}
	}
	if maxPriority == 0 {
		maxPriority = 1.0
	}

	return &Coordinator{
		scoring:     cfg.Scoring,
		window:      window,
		priorities:  priorities,
		maxPriority: maxPriority,
		log:         log,
	}
}

// Merge deduplicates, scores and ranks the fully processed records,
// returning at most maxResults reports. maxResults of zero means none;
// a cap beyond the accepted count returns everything.
func (c *Coordinator) Merge(records []*model.NewsItemRecord, maxResults int) []model.RankedReport {
	accepted := c.dedupe(c.acceptedOnly(records))

	reports := make([]model.RankedReport, 0, len(accepted))
	for _, record := range accepted {
		reports = append(reports, model.RankedReport{
			Record:         record,
			RelevanceScore: c.score(record),
		})
	}

	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		ad, bd := pubDate(a.Record), pubDate(b.Record)
		if !ad.Equal(bd) {
			return ad.After(bd)
		}
		return a.Record.Candidate.DiscoveredAt.Before(b.Record.Candidate.DiscoveredAt)
	})

	if maxResults < 0 {
		maxResults = 0
	}
	if maxResults < len(reports) {
		reports = reports[:maxResults]
	}
	for i := range reports {
		reports[i].Rank = i + 1
		if err := reports[i].Record.Advance(model.StateRanked); err != nil {
			c.log.Error("state machine violation", "error", err)
		}
	}

	c.log.Info("coordination complete", "accepted", len(accepted), "ranked", len(reports))
	return reports
}

// acceptedOnly keeps records that completed localization.
func (c *Coordinator) acceptedOnly(records []*model.NewsItemRecord) []*model.NewsItemRecord {
	var out []*model.NewsItemRecord
	for _, r := range records {
		if r.State == model.StateRefined {
			out = append(out, r)
		}
	}
	return out
}

// dedupe drops records whose normalized URL or normalized title was
// already seen on an earlier-discovered record. Two campus outlets
// covering the same announcement usually share a title verbatim.
func (c *Coordinator) dedupe(records []*model.NewsItemRecord) []*model.NewsItemRecord {
	ordered := make([]*model.NewsItemRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Candidate.DiscoveredAt.Before(ordered[j].Candidate.DiscoveredAt)
	})

	seenURL := make(map[string]bool)
	seenTitle := make(map[string]bool)
	var out []*model.NewsItemRecord
	for _, r := range ordered {
		urlKey := source.NormalizeURL(r.Candidate.URL)
		titleKey := normalizeTitle(recordTitle(r))
		if seenURL[urlKey] {
			continue
		}
		if titleKey != "" && seenTitle[titleKey] {
			c.log.Debug("duplicate title dropped", "url", r.Candidate.URL)
			continue
		}
		seenURL[urlKey] = true
		if titleKey != "" {
			seenTitle[titleKey] = true
		}
		out = append(out, r)
	}
	return out
}

// score combines the verifier's confidence, publication recency and
// institution priority under the configured weights. Each component is
// normalized to 0-1 before weighting, so the result is comparable
// across jobs regardless of weight magnitudes.
func (c *Coordinator) score(record *model.NewsItemRecord) float64 {
	wc := c.scoring.ConfidenceWeight
	wr := c.scoring.RecencyWeight
	wi := c.scoring.InstitutionWeight
	total := wc + wr + wi
	if total <= 0 {
		wc, wr, wi = 1, 0, 0
		total = 1
	}

	confidence := 0.0
	if v := record.Verification; v != nil {
		confidence = float64(v.Confidence) / 10.0
	}

	return (wc*confidence + wr*c.recency(record) + wi*c.priority(record)) / total
}

// recency maps the publication date onto 0-1 within the window: the
// window's last day scores 1, its first day 0. Undated records score 0.
func (c *Coordinator) recency(record *model.NewsItemRecord) float64 {
	v := record.Verification
	if v == nil || v.PublicationDate == nil {
		return 0
	}
	span := c.window.End.Sub(c.window.Start)
	if span <= 0 {
		return 1
	}
	pos := v.PublicationDate.Sub(c.window.Start).Seconds() / span.Seconds()
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}

func (c *Coordinator) priority(record *model.NewsItemRecord) float64 {
	p, ok := c.priorities[record.Candidate.InstitutionID]
	if !ok {
		p = 1.0
	}
	return p / c.maxPriority
}

func pubDate(record *model.NewsItemRecord) time.Time {
	if v := record.Verification; v != nil && v.PublicationDate != nil {
		return *v.PublicationDate
	}
	return time.Time{}
}

func recordTitle(record *model.NewsItemRecord) string {
	if record.Content != nil && record.Content.Title != "" {
		return record.Content.Title
	}
	return record.Candidate.Title
}

// normalizeTitle lowercases, strips punctuation and collapses
// whitespace so near-identical headlines collide.
func normalizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteRune(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
