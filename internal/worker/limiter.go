package worker

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// AILimiter is the single shared token bucket for the AI inference
// service. Every verifier/summarizer/localizer call across all workers
// and all institutions waits on the same bucket, so the global request
// rate stays under the provider's quota.
type AILimiter struct {
	limiter *rate.Limiter
}

// NewAILimiter creates the shared AI limiter.
func NewAILimiter(requestsPerSecond float64, burst int) *AILimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &AILimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request slot is available or ctx is cancelled.
func (l *AILimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed without waiting.
func (l *AILimiter) Allow() bool {
	return l.limiter.Allow()
}

// FetchLimiter implements per-domain rate limiting for page fetches, so
// concurrent extraction doesn't hammer a single campus site.
type FetchLimiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewFetchLimiter creates a new per-domain fetch limiter.
func NewFetchLimiter(requestsPerSecond float64, burst int) *FetchLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	if burst <= 0 {
		burst = 4
	}

	return &FetchLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait waits for rate limit clearance for the given URL's domain.
func (l *FetchLimiter) Wait(ctx context.Context, rawURL string) error {
	domain, err := extractDomain(rawURL)
	if err != nil {
		return err
	}
	return l.getLimiter(domain).Wait(ctx)
}

// getLimiter returns the rate limiter for a domain
func (l *FetchLimiter) getLimiter(domain string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[domain]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[domain] = limiter

	return limiter
}

// extractDomain extracts the domain from a URL
func extractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
