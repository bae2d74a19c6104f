package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/worker"
)

// CategoryScanner discovers article links by crawling an institution's
// news listing pages. Pagination follows rel=next links up to the
// configured page cap.
type CategoryScanner struct {
	fetcher  *pageFetcher
	maxPages int
	log      *slog.Logger
}

// NewCategoryScanner builds a scanner from the job configuration.
func NewCategoryScanner(log *slog.Logger, httpCfg config.HTTPConfig, disc config.DiscoveryConfig, limiter *worker.FetchLimiter) *CategoryScanner {
	maxPages := disc.MaxCategoryPages
	if maxPages <= 0 {
		maxPages = 20
	}
	return &CategoryScanner{
		fetcher:  newPageFetcher(httpCfg, disc, limiter),
		maxPages: maxPages,
		log:      log,
	}
}

// Discover walks the institution's category pages and collects article
// links that match the profile's URL validators.
func (s *CategoryScanner) Discover(ctx context.Context, inst config.InstitutionProfile, window config.Window) ([]model.CandidateLink, error) {
	validators, err := compileValidators(inst.URLValidators)
	if err != nil {
		return nil, fmt.Errorf("institution %s: %w", inst.ID, err)
	}

	var (
		candidates []model.CandidateLink
		seen       = make(map[string]bool)
		pagesLeft  = s.maxPages
	)

	for _, seed := range inst.CategoryPages {
		pageURL := seed
		for pageURL != "" && pagesLeft > 0 {
			if ctx.Err() != nil {
				return candidates, ctx.Err()
			}
			pagesLeft--

			links, next, err := s.scanPage(ctx, pageURL, inst, validators)
			if err != nil {
				s.log.Warn("category page scan failed", "institution", inst.ID, "page", pageURL, "error", err)
				break
			}

			for _, link := range links {
				key := NormalizeURL(link.URL)
				if seen[key] {
					continue
				}
				if !inWindowOrUndated(link.DateHint, window) {
					continue
				}
				seen[key] = true
				candidates = append(candidates, link)
			}

			pageURL = next
		}
	}

	s.log.Info("category scan complete", "institution", inst.ID, "candidates", len(candidates))
	return candidates, nil
}

// scanPage extracts article links and the rel=next pagination target
// from one listing page.
func (s *CategoryScanner) scanPage(ctx context.Context, pageURL string, inst config.InstitutionProfile, validators []*regexp.Regexp) ([]model.CandidateLink, string, error) {
	body, err := s.fetcher.get(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", model.NewStageError("discover", model.ErrParse, fmt.Errorf("parse listing page: %w", err))
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse page URL: %w", err)
	}

	var links []model.CandidateLink
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved := resolveHref(base, href)
		if resolved == "" {
			return
		}
		if !matchesInstitution(resolved, inst, validators) {
			return
		}

		title := strings.TrimSpace(sel.Text())
		links = append(links, model.CandidateLink{
			URL:           resolved,
			InstitutionID: inst.ID,
			DiscoveredAt:  now(),
			SourceKind:    model.SourceCategoryScan,
			Title:         title,
			DateHint:      DateFromURL(resolved),
		})
	})

	next := ""
	if nextHref, ok := doc.Find(`a[rel="next"], link[rel="next"]`).First().Attr("href"); ok {
		next = resolveHref(base, nextHref)
	}

	return links, next, nil
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// matchesInstitution accepts a URL on one of the institution's domains
// that satisfies at least one URL validator (or any same-domain URL
// when no validators are configured).
func matchesInstitution(rawURL string, inst config.InstitutionProfile, validators []*regexp.Regexp) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Host)
	onDomain := false
	for _, domain := range inst.Domains {
		d := strings.ToLower(domain)
		if host == d || strings.HasSuffix(host, "."+strings.TrimPrefix(d, "www.")) {
			onDomain = true
			break
		}
	}
	if !onDomain {
		return false
	}

	if len(validators) == 0 {
		return true
	}
	for _, re := range validators {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

func compileValidators(patterns []string) ([]*regexp.Regexp, error) {
	var validators []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile URL validator %q: %w", p, err)
		}
		validators = append(validators, re)
	}
	return validators, nil
}
