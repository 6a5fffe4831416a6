package registry

import (
	"time"

	"github.com/homelabforge/tidewatch/internal/store"
)

// tagCacheTTL is the tag-list cache lifetime.
const tagCacheTTL = 15 * time.Minute

// cacheStore is the subset of *store.Store the registry package touches.
// Kept narrow so callers can pass the real Bolt-backed store without this
// package depending on its full surface.
type cacheStore interface {
	GetCachedTags(image string, ttl time.Duration) (store.CachedTags, bool, error)
	PutCachedTags(image string, tags []string, fetchedAt time.Time) error
	GetRateLimit(host string) (store.RateLimitState, bool, error)
	PutRateLimit(host string, st store.RateLimitState) error
}

// tagCache fronts a cacheStore with the lazy-expiry read used by both
// ListTags and LatestTag.
type tagCache struct {
	store cacheStore
	clock func() time.Time
}

func newTagCache(s cacheStore) *tagCache {
	return &tagCache{store: s, clock: time.Now}
}

func (c *tagCache) get(image string) ([]string, bool) {
	if c.store == nil {
		return nil, false
	}
	cached, ok, err := c.store.GetCachedTags(image, tagCacheTTL)
	if err != nil || !ok {
		return nil, false
	}
	return cached.Tags, true
}

func (c *tagCache) put(image string, tags []string) {
	if c.store == nil {
		return
	}
	_ = c.store.PutCachedTags(image, tags, c.clock())
}

// rateLimited reports whether host is still inside a previously observed
// backoff window (e.g. a 429's Retry-After), so a caller can skip the
// network round trip entirely.
func (c *tagCache) rateLimited(host string) bool {
	if c.store == nil {
		return false
	}
	st, ok, err := c.store.GetRateLimit(host)
	if err != nil || !ok {
		return false
	}
	return c.clock().Before(st.ResetAt)
}

func (c *tagCache) recordRateLimit(host string, resetAt time.Time, reason string) {
	if c.store == nil || resetAt.IsZero() {
		return
	}
	_ = c.store.PutRateLimit(host, store.RateLimitState{ResetAt: resetAt, Reason: reason})
}
