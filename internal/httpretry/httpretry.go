// Package httpretry is the one exponential-backoff retry loop shared by
// every outbound HTTP integration TideWatch makes: registry tag/manifest
// calls, the GHCR/LSCR token dance, the changelog fetcher, and the
// VulnForge client, so the four call sites stop each carrying their own
// copy of the same loop.
package httpretry

import (
	"context"
	"time"
)

// Policy is an exponential backoff schedule: MaxAttempts tries total, delay
// doubling from Base up to Cap between attempts.
type Policy struct {
	MaxAttempts int
	Base time.Duration
	Cap time.Duration
}

// Default is the registry retry policy: 3 attempts, base 1s, cap 10s.
var Default = Policy{MaxAttempts: 3, Base: time.Second, Cap: 10 * time.Second}

// NonRetryable is implemented by errors that should short-circuit the loop
// immediately — a 404 or an auth failure is never going to succeed on
// retry, so retrying it only delays reporting the real problem.
type NonRetryable interface {
	NonRetryable() bool
}

// Do runs fn up to p.MaxAttempts times, sleeping an exponentially growing
// backoff between attempts (capped at p.Cap), and returns the error from
// the final attempt (or immediately, for an error satisfying NonRetryable).
// It never wraps the returned error — callers that want a typed "retries
// exhausted" error wrap it themselves, since each call site has its own
// vocabulary for that (registry.TransientError, changelog's plain error,
// etc).
func (p Policy) Do(ctx context.Context, fn func() error) error {
	backoff := p.Base
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if nr, ok := err.(NonRetryable); ok && nr.NonRetryable() {
			return err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.Cap {
			backoff = p.Cap
		}
	}
	return lastErr
}
