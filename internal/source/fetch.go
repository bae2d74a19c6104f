package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/util"
	"github.com/lqiu/newsbridge/internal/worker"
)

// pageFetcher downloads discovery pages with robots.txt compliance,
// per-domain rate limiting and the per-run cache.
type pageFetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.FetchLimiter
	cache      *PageCache
	checkRobot bool
}

func newPageFetcher(cfg config.HTTPConfig, disc config.DiscoveryConfig, limiter *worker.FetchLimiter) *pageFetcher {
	return &pageFetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		robots:     util.NewRobotsChecker(cfg.UserAgent, cfg.Timeout),
		limiter:    limiter,
		cache:      NewPageCache(disc.PageCacheTTL),
		checkRobot: disc.RespectRobots,
	}
}

// get fetches one page body, consulting the cache first.
func (f *pageFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if body, found := f.cache.Get(rawURL); found {
		return body, nil
	}

	if f.checkRobot && !f.robots.Allowed(ctx, rawURL) {
		return nil, model.NewStageError("discover", model.ErrParse, fmt.Errorf("disallowed by robots.txt: %s", rawURL))
	}

	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, model.NewStageError("discover", model.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewStageError("discover", model.ErrNetwork,
			fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, model.NewStageError("discover", model.ErrNetwork, fmt.Errorf("read body: %w", err))
	}

	f.cache.Set(rawURL, body)
	return body, nil
}

// now is the clock used for DiscoveredAt stamps (injectable for tests).
var now = time.Now
