package source

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/worker"
)

// FeedSource discovers candidates from an institution's RSS/Atom feeds.
// Feeds are the cheapest source: they carry titles and publication
// dates, so out-of-window items are dropped before extraction.
type FeedSource struct {
	fetcher *pageFetcher
	parser  *gofeed.Parser
	log     *slog.Logger
}

// NewFeedSource builds a feed source from the job configuration.
func NewFeedSource(log *slog.Logger, httpCfg config.HTTPConfig, disc config.DiscoveryConfig, limiter *worker.FetchLimiter) *FeedSource {
	return &FeedSource{
		fetcher: newPageFetcher(httpCfg, disc, limiter),
		parser:  gofeed.NewParser(),
		log:     log,
	}
}

// Discover fetches and parses every configured feed for the institution.
func (s *FeedSource) Discover(ctx context.Context, inst config.InstitutionProfile, window config.Window) ([]model.CandidateLink, error) {
	var candidates []model.CandidateLink

	for _, feedURL := range inst.Feeds {
		if ctx.Err() != nil {
			return candidates, ctx.Err()
		}

		body, err := s.fetcher.get(ctx, feedURL)
		if err != nil {
			s.log.Warn("feed fetch failed", "institution", inst.ID, "feed", feedURL, "error", err)
			continue
		}

		feed, err := s.parser.Parse(bytes.NewReader(body))
		if err != nil {
			s.log.Warn("feed parse failed", "institution", inst.ID, "feed", feedURL, "error", err)
			continue
		}

		for _, item := range feed.Items {
			if item.Link == "" {
				continue
			}

			hint := feedDate(item)
			if hint == nil {
				hint = DateFromURL(item.Link)
			}
			if !inWindowOrUndated(hint, window) {
				continue
			}

			candidates = append(candidates, model.CandidateLink{
				URL:           item.Link,
				InstitutionID: inst.ID,
				DiscoveredAt:  now(),
				SourceKind:    model.SourceFeed,
				Title:         item.Title,
				DateHint:      hint,
			})
		}
	}

	s.log.Info("feed scan complete", "institution", inst.ID, "candidates", len(candidates))
	return candidates, nil
}

func feedDate(item *gofeed.Item) *time.Time {
	t := item.PublishedParsed
	if t == nil {
		t = item.UpdatedParsed
	}
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
