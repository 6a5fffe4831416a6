package vulnforge

import (
	"fmt"

	"github.com/homelabforge/tidewatch/internal/model"
)

// Enrich applies a VulnForge ScanResult onto an Update: when
// no baseline exists yet for the candidate tag, only the current-vuln
// count is recorded and the Update is otherwise left untouched. Once a
// baseline exists, the CVE delta fields are written, any fixed CVE
// reclassifies the update as security, and — under policy "security" — an
// unsafe result auto-rejects the update with a generated reason.
func Enrich(u *model.Update, policy model.Policy, res ScanResult) {
	if !res.HasBaseline {
		u.CurrentVulns = res.Current
		return
	}

	u.CurrentVulns = res.Current
	u.NewVulns = res.New
	u.VulnDelta = res.Delta
	u.CVEsFixed = res.CVEsFixed

	if len(res.CVEsFixed) > 0 {
		u.ReasonType = model.ReasonSecurity
		if res.Summary != "" {
			u.ReasonSummary = res.Summary
		}
	}

	if policy == model.PolicySecurity && !res.IsSafe {
		u.Status = model.UpdateStatusRejected
		reason := res.Recommendation
		if reason == "" {
			reason = fmt.Sprintf("auto-rejected: introduces %d new vulnerabilities under security policy", res.New)
		}
		u.RejectionReason = reason
	}
}
