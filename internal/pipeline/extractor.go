package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/util"
	"github.com/lqiu/newsbridge/internal/worker"
)

// extractSleepFunc is the sleep function used between retries (injectable for tests)
var extractSleepFunc = time.Sleep

// minExtractWords is the floor below which a page is treated as not an
// article (paywalls, index stubs, script-only shells).
const minExtractWords = 30

// Extractor downloads a candidate page and reduces it to readable
// article text. Transient fetch failures are retried with backoff;
// pages that yield no usable text are a terminal parse failure for the
// item.
type Extractor struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxRetries int
	limiter    *worker.FetchLimiter
	log        *slog.Logger
}

// NewExtractor builds an extractor from the job's HTTP configuration.
func NewExtractor(log *slog.Logger, cfg config.HTTPConfig, limiter *worker.FetchLimiter) *Extractor {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Extractor{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		maxRetries: maxRetries,
		limiter:    limiter,
		log:        log,
	}
}

// Extract fetches the candidate URL and returns its readable text.
func (e *Extractor) Extract(ctx context.Context, candidate model.CandidateLink) (*model.ArticleContent, error) {
	body, err := e.fetchWithRetry(ctx, candidate.URL)
	if err != nil {
		return nil, err
	}

	pageURL, err := url.Parse(candidate.URL)
	if err != nil {
		return nil, model.NewStageError("extract", model.ErrParse, fmt.Errorf("parse URL: %w", err))
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, model.NewStageError("extract", model.ErrParse, fmt.Errorf("readability: %w", err))
	}

	text := strings.TrimSpace(article.TextContent)
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = candidate.Title
	}

	content := &model.ArticleContent{
		URL:       candidate.URL,
		Title:     title,
		RawText:   text,
		FetchedAt: pipelineNow(),
	}

	if words := content.WordCount(); words < minExtractWords {
		return nil, model.NewStageError("extract", model.ErrParse,
			fmt.Errorf("extracted %d words from %s, need at least %d", words, candidate.URL, minExtractWords))
	}

	e.log.Debug("article extracted", "url", candidate.URL, "words", content.WordCount())
	return content, nil
}

// fetchWithRetry downloads the page body, retrying transient failures
// with exponential backoff. Client errors other than 429 fail fast: a
// 404 will still be a 404 on the third try.
func (e *Extractor) fetchWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			extractSleepFunc(backoff)
		}
		if ctx.Err() != nil {
			return nil, model.NewStageError("extract", model.ErrNetwork, ctx.Err())
		}

		body, retryable, err := e.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, model.NewStageError("extract", model.ErrNetwork, err)
		}
	}
	return nil, model.NewStageError("extract", model.ErrNetwork,
		fmt.Errorf("after %d attempts: %w", e.maxRetries, lastErr))
}

func (e *Extractor) fetchOnce(ctx context.Context, rawURL string) (body []byte, retryable bool, err error) {
	if err := e.limiter.Wait(ctx, rawURL); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Proceed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d for %s", resp.StatusCode, rawURL)
	default:
		return nil, false, fmt.Errorf("status %d for %s", resp.StatusCode, rawURL)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return body, false, nil
}
