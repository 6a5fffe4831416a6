// Package registry implements the per-registry HTTP clients TideWatch uses
// to enumerate image tags and fetch manifest digests. Every registry speaks
// some dialect of the Docker Distribution v2 API, so the clients here share
// a manifest-digest fetch and a retry policy, and differ mainly in how they
// list tags and how they authenticate.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/homelabforge/tidewatch/internal/httpretry"
)

// httpClient is shared by every registry client. 30s matches the per-call
// budget in the operational model — registry calls are expected to
// complete well under that or be retried.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Sentinel error kinds a caller can match with errors.Is/As to decide
// whether a failed check should flag the container or just be logged.
var (
	// ErrTransient wraps a network/5xx/timeout failure that survived the
	// retry policy. The caller should report it without treating the
	// container as broken.
	ErrTransient = errors.New("registry: transient error")
	// ErrNotFound means the image or tag does not exist upstream — treated
	// as "no update available", never as a failure.
	ErrNotFound = errors.New("registry: not found")
	// ErrAuth means the registry rejected credentials (401/403). The
	// container is flagged so a human notices a stale token.
	ErrAuth = errors.New("registry: authentication failed")
)

// TransientError, NotFoundError, and AuthError carry enough context to log
// usefully while still unwrapping to the sentinel kinds above.
type TransientError struct {
	Op string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("registry: %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return ErrTransient }

type NotFoundError struct{ Image, Tag string }

func (e *NotFoundError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("registry: %s:%s not found", e.Image, e.Tag)
	}
	return fmt.Sprintf("registry: %s not found", e.Image)
}
func (e *NotFoundError) Unwrap() error { return ErrNotFound }
func (e *NotFoundError) NonRetryable() bool { return true }

type AuthError struct{ Host string }

func (e *AuthError) Error() string { return fmt.Sprintf("registry: auth failed for %s", e.Host) }
func (e *AuthError) Unwrap() error { return ErrAuth }
func (e *AuthError) NonRetryable() bool { return true }

// TagMetadata is the result of LatestTagMetadata: enough to decide whether
// a "latest"-tracking container's digest moved, plus whatever provenance
// the registry handed back.
type TagMetadata struct {
	Digest string
	LastUpdated time.Time
	SizeBytes int64
}

// LatestTagInput bundles the tag-selection inputs a Client needs to turn a
// full tag listing into a single recommended tag.
type LatestTagInput struct {
	CurrentTag string
	CurrentDigest string // only meaningful when CurrentTag == "latest"
	Scope string // "patch" | "minor" | "major"
	IncludePrereleases bool
	HostArch string
}

// Client is the contract every registry backend implements.
type Client interface {
	ListTags(ctx context.Context, image string) ([]string, error)
	LatestTagMetadata(ctx context.Context, image, tag string) (TagMetadata, error)
	LatestTag(ctx context.Context, image string, in LatestTagInput) (string, error)
	LatestMajorTag(ctx context.Context, image, currentTag string, includePrereleases bool) (string, error)
}

// withRetry applies the shared httpretry.Default policy and wraps whatever survives it as a
// TransientError — NotFoundError/AuthError short-circuit the loop via their
// NonRetryable method and come back unwrapped.
func withRetry(ctx context.Context, op string, fn func() error) error {
	err := httpretry.Default.Do(ctx, fn)
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	var ae *AuthError
	if errors.As(err, &nf) || errors.As(err, &ae) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

func classifyStatus(resp *http.Response, host, image, tag string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Image: image, Tag: tag}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Host: host}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
