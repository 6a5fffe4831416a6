package store

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// CachedTags is the persisted form of a registry client's tag list cache,
// keyed by image reference. Persisting this (rather than keeping it purely
// in memory) lets TideWatch survive a restart without immediately
// re-hammering every registry on the next scheduled check.
type CachedTags struct {
	Tags []string `json:"tags"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GetCachedTags returns the cached tag list for an image, or ok=false if
// absent or expired.
func (s *Store) GetCachedTags(image string, ttl time.Duration) (CachedTags, bool, error) {
	var ct CachedTags
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTagCache).Get([]byte(image))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &ct); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return CachedTags{}, false, err
	}
	if time.Since(ct.FetchedAt) > ttl {
		return CachedTags{}, false, nil
	}
	return ct, true, nil
}

// PutCachedTags stores a freshly fetched tag list.
func (s *Store) PutCachedTags(image string, tags []string, fetchedAt time.Time) error {
	data, err := json.Marshal(CachedTags{Tags: tags, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTagCache).Put([]byte(image), data)
	})
}

// RateLimitState records a registry's reported rate-limit reset time so the
// registry client can avoid hammering a backend that just 429'd it, even
// across restarts.
type RateLimitState struct {
	ResetAt time.Time `json:"reset_at"`
	Reason string `json:"reason"`
}

// GetRateLimit returns the stored rate-limit state for a registry host.
func (s *Store) GetRateLimit(host string) (RateLimitState, bool, error) {
	var st RateLimitState
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRateLimits).Get([]byte(host))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &st)
	})
	return st, found, err
}

// PutRateLimit stores a registry's rate-limit state.
func (s *Store) PutRateLimit(host string, st RateLimitState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRateLimits).Put([]byte(host), data)
	})
}
