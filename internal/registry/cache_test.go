package registry

import (
	"testing"
	"time"

	"github.com/homelabforge/tidewatch/internal/store"
)

type fakeCacheStore struct {
	tags map[string]store.CachedTags
	rateLimit map[string]store.RateLimitState
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{tags: map[string]store.CachedTags{}, rateLimit: map[string]store.RateLimitState{}}
}

func (f *fakeCacheStore) GetCachedTags(image string, ttl time.Duration) (store.CachedTags, bool, error) {
	ct, ok := f.tags[image]
	if !ok || time.Since(ct.FetchedAt) > ttl {
		return store.CachedTags{}, false, nil
	}
	return ct, true, nil
}

func (f *fakeCacheStore) PutCachedTags(image string, tags []string, fetchedAt time.Time) error {
	f.tags[image] = store.CachedTags{Tags: tags, FetchedAt: fetchedAt}
	return nil
}

func (f *fakeCacheStore) GetRateLimit(host string) (store.RateLimitState, bool, error) {
	st, ok := f.rateLimit[host]
	return st, ok, nil
}

func (f *fakeCacheStore) PutRateLimit(host string, st store.RateLimitState) error {
	f.rateLimit[host] = st
	return nil
}

func TestTagCacheRoundTrip(t *testing.T) {
	c := newTagCache(newFakeCacheStore())
	if _, ok := c.get("nginx"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.put("nginx", []string{"1.25.0", "1.25.1"})
	tags, ok := c.get("nginx")
	if !ok || len(tags) != 2 {
		t.Fatalf("get after put = %v, %v", tags, ok)
	}
}

func TestTagCacheRateLimit(t *testing.T) {
	c := newTagCache(newFakeCacheStore())
	if c.rateLimited("docker.io") {
		t.Fatal("should not be rate-limited before any record")
	}
	c.recordRateLimit("docker.io", time.Now().Add(time.Hour), "429")
	if !c.rateLimited("docker.io") {
		t.Fatal("should be rate-limited after recording a future reset")
	}
}

func TestTagCacheNilStoreIsHarmless(t *testing.T) {
	c := newTagCache(nil)
	if _, ok := c.get("nginx"); ok {
		t.Fatal("nil-backed cache must always miss")
	}
	c.put("nginx", []string{"1.0"}) // must not panic
	if c.rateLimited("docker.io") {
		t.Fatal("nil-backed cache must never report rate-limited")
	}
}
