package decision

import (
	"testing"

	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/tagselect"
)

func TestDecideNoCandidatesNoUpdate(t *testing.T) {
	d, tr := Decide(Input{CurrentTag: "1.25.0", Scope: model.ScopePatch})
	if d.HasUpdate {
		t.Error("HasUpdate = true, want false")
	}
	if d.UpdateKind != model.UpdateKindTag {
		t.Errorf("UpdateKind = %v, want tag", d.UpdateKind)
	}
	if tr.TraceVersion != model.CurrentDecisionTraceVersion {
		t.Errorf("TraceVersion = %d, want %d", tr.TraceVersion, model.CurrentDecisionTraceVersion)
	}
}

func TestDecidePatchUpdateAvailable(t *testing.T) {
	res := tagselect.Select(tagselect.Input{
		CurrentTag: "1.25.0",
		Candidates: []string{"1.25.3", "1.26.0"},
		Scope: model.ScopePatch,
	})
	d, tr := Decide(Input{CurrentTag: "1.25.0", Scope: model.ScopePatch, TagResult: res})

	if !d.HasUpdate {
		t.Fatal("HasUpdate = false, want true")
	}
	if d.LatestTag != "1.25.3" {
		t.Errorf("LatestTag = %q, want 1.25.3", d.LatestTag)
	}
	if d.ChangeType != model.ChangePatch {
		t.Errorf("ChangeType = %v, want patch", d.ChangeType)
	}
	if !d.IsScopeViolation {
		t.Error("IsScopeViolation = false, want true — 1.26.0 is newer but outside patch scope")
	}
	if tr.TagCandidate != "1.25.3" {
		t.Errorf("trace = %+v", tr)
	}
	if tr.MajorCandidateBlocked != "1.26.0" {
		t.Errorf("MajorCandidateBlocked = %q, want 1.26.0 — blocked by patch scope", tr.MajorCandidateBlocked)
	}
}

func TestDecideScopeViolationWhenMajorBlocked(t *testing.T) {
	res := tagselect.Select(tagselect.Input{
		CurrentTag: "1.25.0",
		Candidates: []string{"2.0.0"},
		Scope: model.ScopePatch,
	})
	d, tr := Decide(Input{CurrentTag: "1.25.0", Scope: model.ScopePatch, TagResult: res})

	if d.HasUpdate {
		t.Error("HasUpdate = true, want false — 2.0.0 is out of patch scope")
	}
	if !d.IsScopeViolation {
		t.Fatal("IsScopeViolation = false, want true")
	}
	if d.LatestMajorTag != "2.0.0" {
		t.Errorf("LatestMajorTag = %q, want 2.0.0", d.LatestMajorTag)
	}
	if tr.MajorCandidateBlocked != "2.0.0" {
		t.Errorf("trace.MajorCandidateBlocked = %q, want 2.0.0", tr.MajorCandidateBlocked)
	}
}

func TestDecideMajorScopeNeverFlagsViolation(t *testing.T) {
	res := tagselect.Select(tagselect.Input{
		CurrentTag: "1.25.0",
		Candidates: []string{"2.0.0"},
		Scope: model.ScopeMajor,
	})
	d, _ := Decide(Input{CurrentTag: "1.25.0", Scope: model.ScopeMajor, TagResult: res})
	if d.IsScopeViolation {
		t.Error("IsScopeViolation = true, want false — scope is already major")
	}
	if !d.HasUpdate || d.LatestTag != "2.0.0" {
		t.Errorf("expected 2.0.0 to be directly applicable under major scope, got %+v", d)
	}
}

func TestDecideLatestModeNoPriorDigest(t *testing.T) {
	d, tr := Decide(Input{CurrentTag: "latest", DigestChanged: false, NewDigest: "sha256:aaa"})
	if d.HasUpdate {
		t.Error("HasUpdate = true, want false on first observation")
	}
	if d.UpdateKind != model.UpdateKindDigest {
		t.Errorf("UpdateKind = %v, want digest", d.UpdateKind)
	}
	if tr.UpdateKind != model.UpdateKindDigest {
		t.Errorf("trace.UpdateKind = %v, want digest", tr.UpdateKind)
	}
}

func TestDecideLatestModeDigestChanged(t *testing.T) {
	d, _ := Decide(Input{
		CurrentTag: "latest",
		DigestChanged: true,
		PreviousDigest: "sha256:aaa",
		NewDigest: "sha256:bbb",
	})
	if !d.HasUpdate {
		t.Fatal("HasUpdate = false, want true")
	}
	if d.NewDigest != "sha256:bbb" {
		t.Errorf("NewDigest = %q, want sha256:bbb", d.NewDigest)
	}
	if d.ChangeType != model.ChangeUnknown {
		t.Errorf("ChangeType = %v, want unknown for digest updates", d.ChangeType)
	}
}

func TestDecideLatestModeIgnoresTagResult(t *testing.T) {
	// Even if a tag-selector result were accidentally populated, latest
	// mode must ignore it entirely — the container tracks a digest, not a
	// version ordering.
	res := tagselect.Select(tagselect.Input{
		CurrentTag: "1.25.0",
		Candidates: []string{"1.25.3"},
		Scope: model.ScopePatch,
	})
	d, _ := Decide(Input{CurrentTag: "latest", TagResult: res, DigestChanged: false})
	if d.HasUpdate || d.LatestTag != "" {
		t.Errorf("latest mode leaked tag result: %+v", d)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	in := Input{
		CurrentTag: "1.25.0",
		Scope: model.ScopeMinor,
		TagResult: tagselect.Select(tagselect.Input{
			CurrentTag: "1.25.0",
			Candidates: []string{"1.26.0", "2.0.0"},
			Scope: model.ScopeMinor,
		}),
	}
	d1, t1 := Decide(in)
	d2, t2 := Decide(in)
	if d1 != d2 {
		t.Errorf("Decide not deterministic: %+v vs %+v", d1, d2)
	}
	if t1 != t2 {
		t.Errorf("Trace not deterministic: %+v vs %+v", t1, t2)
	}
}
