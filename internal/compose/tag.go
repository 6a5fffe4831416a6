package compose

import "regexp"

var (
	tagRe = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{0,127}$`)
	digestRe = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
)

// ValidTag reports whether s is a well-formed Docker tag or a sha256 digest
// reference.
func ValidTag(s string) bool {
	return tagRe.MatchString(s) || digestRe.MatchString(s)
}
