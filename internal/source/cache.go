package source

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// PageCache is the in-memory, per-run cache for discovery pages. The
// same listing page is often reachable from several seeds; caching it
// avoids duplicate fetches within one job. Article content is never
// cached across runs.
type PageCache struct {
	cache *gocache.Cache
}

// NewPageCache creates a page cache with the given TTL.
func NewPageCache(ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PageCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get retrieves a cached page body.
func (c *PageCache) Get(url string) ([]byte, bool) {
	if val, found := c.cache.Get(pageKey(url)); found {
		return val.([]byte), true
	}
	return nil, false
}

// Set stores a page body under the cache's default TTL.
func (c *PageCache) Set(url string, body []byte) {
	c.cache.Set(pageKey(url), body, gocache.DefaultExpiration)
}

func pageKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "page:v1:" + hex.EncodeToString(hash[:])
}
