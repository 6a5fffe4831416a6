package changelog

import (
	"context"
	"testing"
)

func TestFetchReturnsEmptyForUnmappedImage(t *testing.T) {
	f := NewFetcher("")
	note, repo, err := f.Fetch(context.Background(), "someoddimage:1.0", "1.0", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note != nil || repo != "" {
		t.Errorf("note=%v repo=%q, want nil/empty for an unmapped image", note, repo)
	}
}
