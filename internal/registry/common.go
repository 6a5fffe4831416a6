package registry

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/homelabforge/tidewatch/internal/model"
)

// scopeOf converts the string scope carried on LatestTagInput into the
// model.Scope tagselect expects, defaulting to patch if unrecognized —
// the same conservative default the Decision Maker uses elsewhere.
func scopeOf(s string) model.Scope {
	switch model.Scope(s) {
	case model.ScopeMinor:
		return model.ScopeMinor
	case model.ScopeMajor:
		return model.ScopeMajor
	default:
		return model.ScopePatch
	}
}

// tagselectMajor is shorthand for the scope that makes LatestMajorTag
// "ignore scope to surface blocked majors".
const tagselectMajor = model.ScopeMajor

// digestFetcher is implemented by every backend so latestByDigest can stay
// backend-agnostic.
type digestFetcher interface {
	LatestTagMetadata(ctx context.Context, image, tag string) (TagMetadata, error)
}

// latestByDigest implements "latest mode": when a container
// tracks the "latest" tag, skip tag selection entirely and compare
// manifest digests instead. Returns "latest" iff the freshly fetched
// digest differs from the one already on record; the caller is
// responsible for persisting whichever digest it learns either way.
func latestByDigest(ctx context.Context, d digestFetcher, image, currentDigest string) (string, error) {
	meta, err := d.LatestTagMetadata(ctx, image, "latest")
	if err != nil {
		return "", err
	}
	if currentDigest == "" || meta.Digest == currentDigest {
		return "", nil
	}
	return "latest", nil
}

// retryAfter derives an absolute backoff reset time from a response's
// rate-limit headers: a standard Retry-After (seconds or HTTP-date) takes
// priority, falling back to Docker Hub's "RateLimit-Limit: 100;w=21600"
// window-seconds convention, and finally a flat 60s when neither is
// present — registries that signal exhaustion without any usable header
// still deserve a pause, not an immediate retry storm.
func retryAfter(h http.Header) time.Time {
	if raw := h.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
		if when, err := http.ParseTime(raw); err == nil {
			return when
		}
	}
	if window := rateLimitWindowSeconds(h.Get("RateLimit-Limit")); window > 0 {
		return time.Now().Add(time.Duration(window) * time.Second)
	}
	return time.Now().Add(60 * time.Second)
}

// rateLimitWindowSeconds extracts the "w=" window value from a Docker Hub
// style RateLimit-Limit header, e.g. "100;w=21600" -> 21600.
func rateLimitWindowSeconds(val string) int {
	parts := strings.SplitN(val, ";", 2)
	if len(parts) != 2 {
		return 0
	}
	kv := strings.TrimSpace(parts[1])
	if !strings.HasPrefix(kv, "w=") {
		return 0
	}
	n, _ := strconv.Atoi(kv[2:])
	return n
}
