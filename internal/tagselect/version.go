// Package tagselect is the pure tag-selection engine: given a container's
// current tag, a list of registry candidate tags, a scope, and a
// prerelease flag, it picks the best in-scope candidate and, separately,
// the best candidate of any scope (for the informational "latest major"
// lookup). No network or storage access — everything here is a function of
// its inputs, which is what makes the scope/suffix/arch/prerelease
// interactions tractable to test exhaustively.
package tagselect

import (
	"strconv"
	"strings"
)

// Version is a parsed PEP-440-like release version: major.minor.patch plus
// an optional prerelease/dev segment. TideWatch only needs enough of
// PEP 440 to order container image tags — epochs and post-releases are not
// modeled because no observed registry uses them for image tags.
type Version struct {
	Major, Minor, Patch int
	PreLabel string // "a", "b", "rc", "dev", or "" for a final release
	PreNum int
	Raw string
}

// IsPrerelease reports whether the parsed version carries a pre/dev segment.
func (v Version) IsPrerelease() bool { return v.PreLabel != "" }

var preLabelRank = map[string]int{"dev": 0, "a": 1, "alpha": 1, "b": 2, "beta": 2, "rc": 3, "c": 3}

// ParseVersion parses tag as a PEP-440-like version: optional leading "v",
// "major.minor[.patch]", optional build metadata after "+" (discarded, it
// carries no ordering information), and an optional prerelease/dev suffix
// introduced by "-", "." or directly concatenated (e.g. "1.2.3rc1",
// "1.2.3-rc.1", "1.2.3.dev4").
func ParseVersion(tag string) (Version, bool) {
	raw := tag
	tag = strings.TrimPrefix(tag, "v")
	tag = strings.TrimPrefix(tag, "V")
	if tag == "" {
		return Version{}, false
	}

	if idx := strings.Index(tag, "+"); idx >= 0 {
		tag = tag[:idx]
	}

	numEnd := 0
	dots := 0
	for numEnd < len(tag) {
		c := tag[numEnd]
		if c >= '0' && c <= '9' {
			numEnd++
			continue
		}
		if c == '.' && dots < 2 {
			// Only consume the dot if it's followed by another digit run
			// (i.e. still part of major.minor.patch, not a prerelease dot).
			if numEnd+1 < len(tag) && tag[numEnd+1] >= '0' && tag[numEnd+1] <= '9' {
				dots++
				numEnd++
				continue
			}
		}
		break
	}
	if numEnd == 0 {
		return Version{}, false
	}
	numeric := tag[:numEnd]
	rest := tag[numEnd:]

	parts := strings.Split(numeric, ".")
	if len(parts) < 1 || len(parts) > 3 {
		return Version{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, false
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Raw: raw}

	rest = strings.TrimLeft(rest, "-_.")
	if rest == "" {
		return v, true
	}

	label, numPart := splitPreLabel(rest)
	if label == "" {
		// Unrecognized trailing text (e.g. an arch/OS suffix) — not a
		// version component. Caller decides whether to treat it as a
		// suffix-pinned tag or reject it.
		return Version{}, false
	}
	v.PreLabel = label
	if n, err := strconv.Atoi(numPart); err == nil {
		v.PreNum = n
	}
	return v, true
}

// splitPreLabel recognizes a prerelease label only when what follows it is
// empty or purely numeric — this is what keeps distro/variant suffixes like
// "alpine" or "bookworm" from being misread as the single-letter label "a"
// or "b".
func splitPreLabel(s string) (label, num string) {
	s = strings.ToLower(s)
	for _, candidate := range []string{"alpha", "beta", "rc", "dev", "a", "b", "c"} {
		if !strings.HasPrefix(s, candidate) {
			continue
		}
		rest := strings.TrimLeft(s[len(candidate):], "-_.")
		if rest == "" || isAllDigits(rest) {
			return candidate, rest
		}
	}
	return "", ""
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other. A prerelease always sorts before its corresponding final release.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpInt(v.Minor, other.Minor)
	}
	if v.Patch != other.Patch {
		return cmpInt(v.Patch, other.Patch)
	}
	vPre, oPre := v.IsPrerelease(), other.IsPrerelease()
	if vPre != oPre {
		if vPre {
			return -1
		}
		return 1
	}
	if !vPre {
		return 0
	}
	if r := cmpInt(preLabelRank[v.PreLabel], preLabelRank[other.PreLabel]); r != 0 {
		return r
	}
	return cmpInt(v.PreNum, other.PreNum)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
