package tagselect

import "github.com/homelabforge/tidewatch/internal/model"

// inScope reports whether candidate is an acceptable update target from
// current under scope. Greater-than comparisons are not checked here —
// callers filter to candidate.Compare(current) > 0 first.
func inScope(scope model.Scope, current, candidate Version) bool {
	switch scope {
	case model.ScopePatch:
		return candidate.Major == current.Major && candidate.Minor == current.Minor
	case model.ScopeMinor:
		return candidate.Major == current.Major
	case model.ScopeMajor:
		return true
	default:
		return candidate.Major == current.Major && candidate.Minor == current.Minor
	}
}

// ChangeTypeOf classifies the semver distance from current to candidate.
func ChangeTypeOf(current, candidate Version) model.ChangeType {
	switch {
	case candidate.Major != current.Major:
		return model.ChangeMajor
	case candidate.Minor != current.Minor:
		return model.ChangeMinor
	case candidate.Patch != current.Patch || candidate.IsPrerelease() != current.IsPrerelease() || candidate.PreNum != current.PreNum:
		return model.ChangePatch
	default:
		return model.ChangeUnknown
	}
}
