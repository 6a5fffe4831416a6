package changelog

import (
	"regexp"
	"strings"

	"github.com/homelabforge/tidewatch/internal/model"
)

// Classification is the heuristic categorization of a release body.
type Classification struct {
	ReasonType model.ReasonType
	Summary string
}

var cveRe = regexp.MustCompile(`(?i)CVE-\d{4}-\d+`)

var securitySignals = []string{
	"security fix", "security update", "security patch", "vulnerability",
	"vulnerabilities", "exploit", "cve-",
}

var bugfixSignals = []string{
	"bug fix", "bugfix", "fixes", "fixed", "fix:", "hotfix", "regression",
}

var featureSignals = []string{
	"new feature", "feature:", "add support", "added support", "introduce",
	"introducing",
}

var maintenanceSignals = []string{
	"chore", "refactor", "dependency", "dependencies", "bump", "maintenance",
	"housekeeping", "deprecat",
}

// Classify categorizes free-text release notes into one of {security,
// bugfix, feature, maintenance, unknown}, plus a one-line summary.
// Security signals dominate: a CVE identifier or explicit security
// language wins regardless of what else the body mentions.
func Classify(body string) Classification {
	summary := summarize(body)
	if body == "" {
		return Classification{ReasonType: model.ReasonUnknown, Summary: summary}
	}

	lower := strings.ToLower(body)

	if cveRe.MatchString(body) || containsAny(lower, securitySignals) {
		return Classification{ReasonType: model.ReasonSecurity, Summary: summary}
	}
	if containsAny(lower, bugfixSignals) {
		return Classification{ReasonType: model.ReasonBugfix, Summary: summary}
	}
	if containsAny(lower, featureSignals) {
		return Classification{ReasonType: model.ReasonFeature, Summary: summary}
	}
	if containsAny(lower, maintenanceSignals) {
		return Classification{ReasonType: model.ReasonMaintenance, Summary: summary}
	}
	return Classification{ReasonType: model.ReasonUnknown, Summary: summary}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// summarize takes the first non-blank line of body as a one-line summary,
// truncated to a readable length.
func summarize(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#-*> ")
		if line == "" {
			continue
		}
		const maxLen = 160
		if len(line) > maxLen {
			line = line[:maxLen] + "..."
		}
		return line
	}
	return ""
}
