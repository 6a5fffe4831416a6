// Package decision fuses a tag-selector result, a digest comparison, and a
// container's policy into one UpdateDecision plus an auditable
// model.DecisionTrace. Decide is pure: no network, no storage,
// no clock reads other than what the caller passes in — the same inputs
// always produce the same decision, which is what makes it testable
// without a database.
package decision

import (
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/tagselect"
)

// Input is everything Decide needs: the container's current state, the
// tag-selector's verdict, and the freshly observed digest (only meaningful
// when CurrentTag == "latest").
type Input struct {
	CurrentTag string
	Scope model.Scope
	EffectiveIncludePrereleases bool

	// TagResult is the tagselect.Select output computed by the caller
	// against the registry's current candidate list. Zero value means "no
	// candidates parsed" (e.g. an unparseable current tag).
	TagResult tagselect.Result

	// DigestChanged/NewDigest/PreviousDigest describe the latest-mode
	// comparison; only consulted when
	// CurrentTag == "latest".
	DigestChanged bool
	NewDigest string
	PreviousDigest string
}

// Decision is the Decision Maker's verdict.
type Decision struct {
	HasUpdate bool
	UpdateKind model.UpdateKind
	ChangeType model.ChangeType
	LatestTag string
	LatestMajorTag string
	IsScopeViolation bool
	DigestChanged bool
	NewDigest string
}

// Decide turns one Input into an UpdateDecision. For a container tracking
// "latest", tag selection is ignored entirely and the verdict is driven by
// the digest comparison alone (mirroring tagselect's own "latest mode"
// short-circuit, which Decide does not repeat — the caller already skipped
// tag selection and populated only the digest fields).
func Decide(in Input) (Decision, model.DecisionTrace) {
	trace := model.DecisionTrace{
		TraceVersion: model.CurrentDecisionTraceVersion,
		CurrentTag: in.CurrentTag,
		Scope: in.Scope,
		IncludePrereleases: in.EffectiveIncludePrereleases,
		SuffixMatch: in.TagResult.Suffix,
		TagCandidate: in.TagResult.BestInScope,
		PreviousDigest: in.PreviousDigest,
		NewDigest: in.NewDigest,
		DigestChanged: in.DigestChanged,
	}

	if in.CurrentTag == "latest" {
		trace.UpdateKind = model.UpdateKindDigest
		trace.ChangeType = model.ChangeUnknown
		return Decision{
			HasUpdate: in.DigestChanged,
			UpdateKind: model.UpdateKindDigest,
			ChangeType: model.ChangeUnknown,
			DigestChanged: in.DigestChanged,
			NewDigest: in.NewDigest,
		}, trace
	}

	d := Decision{
		LatestTag: in.TagResult.BestInScope,
		LatestMajorTag: in.TagResult.BestOverall,
		UpdateKind: model.UpdateKindTag,
		ChangeType: model.ChangeUnknown,
	}

	if in.TagResult.BestInScope != "" {
		d.HasUpdate = true
		d.ChangeType = in.TagResult.ChangeType
	}

	// A major candidate exists but the configured scope forbids reaching
	// it: BestOverall ignores scope entirely (tagselect always evaluates
	// it against the major gate), so any divergence from BestInScope means
	// scope, not suffix/arch/prerelease filtering, is what's blocking it.
	if in.Scope != model.ScopeMajor && in.TagResult.BestOverall != "" && in.TagResult.BestOverall != in.TagResult.BestInScope {
		d.IsScopeViolation = true
		trace.MajorCandidateBlocked = in.TagResult.BestOverall
	}

	trace.UpdateKind = d.UpdateKind
	trace.ChangeType = d.ChangeType

	return d, trace
}
