package tagselect

import (
	"sort"

	"github.com/homelabforge/tidewatch/internal/model"
)

// Input is everything the selector needs to pick a candidate. HostArch is the canonical architecture of the Docker host
// ("amd64", "arm64",...), used to filter arch-suffixed candidates.
type Input struct {
	CurrentTag string
	Candidates []string
	Scope model.Scope
	IncludePrereleases bool
	HostArch string
}

// Result is the selector's output: the best candidate honoring scope, and
// separately the best candidate of any scope (used for the informational
// "latest major" lookup and scope-violation detection downstream).
type Result struct {
	BestInScope string
	BestOverall string
	ChangeType model.ChangeType // of BestInScope relative to current, if any
	Suffix string // current tag's pinned non-numeric suffix, if any (e.g. "alpine")
}

type candidate struct {
	tag string
	ver Version
}

// Select implements the full selection pipeline end to end: version parsing,
// hybrid prerelease detection, suffix pinning, architecture filtering, the
// Windows-image filter, and the three scope gates, then picks the
// semver-greatest acceptable candidate. It is order-independent: shuffling
// Candidates never changes the result.
func Select(in Input) Result {
	currentVer, currentSuffix, currentArch, currentParses := parseTag(in.CurrentTag)
	if !currentParses {
		return Result{}
	}

	var inScopeCandidates, allCandidates []candidate
	for _, tag := range in.Candidates {
		if tag == in.CurrentTag {
			continue
		}
		if IsWindowsImageTag(tag) {
			continue
		}

		ver, suffix, arch, ok := parseTag(tag)
		if !ok {
			continue
		}

		// Suffix pinning: if the current tag carries a non-numeric suffix,
		// candidates must carry the identical suffix; if current has none,
		// candidates must have none either (a bare "3.12" never silently
		// jumps to "3.13-alpine").
		if suffix != currentSuffix {
			continue
		}

		// Architecture filter.
		if currentArch != "" {
			if arch != currentArch {
				continue
			}
		} else if arch != "" && arch != in.HostArch {
			continue
		}

		if !in.IncludePrereleases && IsPrerelease(tag) {
			continue
		}

		if ver.Compare(currentVer) <= 0 {
			continue
		}

		c := candidate{tag: tag, ver: ver}
		allCandidates = append(allCandidates, c)
		if inScope(in.Scope, currentVer, ver) {
			inScopeCandidates = append(inScopeCandidates, c)
		}
	}

	res := Result{Suffix: currentSuffix}
	if best := pickGreatest(inScopeCandidates); best != nil {
		res.BestInScope = best.tag
		res.ChangeType = ChangeTypeOf(currentVer, best.ver)
	}
	if best := pickGreatest(allCandidates); best != nil {
		res.BestOverall = best.tag
	}
	return res
}

func pickGreatest(candidates []candidate) *candidate {
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ver.Compare(candidates[j].ver) > 0
	})
	return &candidates[0]
}
