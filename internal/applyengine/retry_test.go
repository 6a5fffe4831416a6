package applyengine

import (
	"testing"
	"time"
)

func TestRetryDelayLadder(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, 5 * time.Minute},
		{2, 15 * time.Minute},
		{3, 60 * time.Minute},
		{4, 120 * time.Minute}, // 60 * 2^1
		{5, 240 * time.Minute}, // 60 * 2^2
	}
	for _, c := range cases {
		got := retryDelay(c.retryCount, 2)
		if got != c.want {
			t.Errorf("retryDelay(%d, 2) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestRetryDelayCustomMultiplier(t *testing.T) {
	got := retryDelay(4, 3)
	want := 180 * time.Minute // 60 * 3^1
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRetryDelayDefaultsMultiplierWhenUnset(t *testing.T) {
	got := retryDelay(4, 0)
	want := 120 * time.Minute // defaults to 2
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
