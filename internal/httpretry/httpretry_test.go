package httpretry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type nonRetryableErr struct{}

func (nonRetryableErr) Error() string { return "nope" }
func (nonRetryableErr) NonRetryable() bool { return true }

func TestDoSucceedsImmediately(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("calls=%d err=%v, want 1 call and nil error", calls, err)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("calls=%d err=%v, want 3 calls and nil error", calls, err)
	}
}

func TestDoStopsAtNonRetryable(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 5, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		return nonRetryableErr{}
	})
	if calls != 1 {
		t.Errorf("calls=%d, want 1 — NonRetryable must not retry", calls)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDoReturnsLastErrorAfterExhaustion(t *testing.T) {
	p := Policy{MaxAttempts: 2, Base: time.Millisecond, Cap: 10 * time.Millisecond}
	want := errors.New("boom")
	err := p.Do(context.Background(), func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, Base: time.Second, Cap: time.Second}
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	if calls != 1 {
		t.Errorf("calls=%d, want 1 (cancel should stop after first failed attempt)", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
