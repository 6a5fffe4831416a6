package checker

import (
	"context"
	"time"

	"github.com/homelabforge/tidewatch/internal/changelog"
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/notify"
	"github.com/homelabforge/tidewatch/internal/vulnforge"
)

// enrich implements step 7: fetch a changelog note when a
// release source is known or auto-detectable, reclassify reason_type and
// summary from it, and query VulnForge for a CVE delta when enabled. Both
// are best-effort — a failure here never blocks the update from being
// recorded, it's just left with its decision-derived defaults.
func (c *Checker) enrich(ctx context.Context, container *model.Container, u *model.Update) {
	if u.UpdateKind == model.UpdateKindTag && c.ChangelogFetcher != nil {
		sources := c.ChangelogSources
		if container.ReleaseSource != "" {
			sources = append([]changelog.Source{{ImagePattern: container.Image, GitHubRepo: container.ReleaseSource}}, sources...)
		}
		note, repo, err := c.ChangelogFetcher.Fetch(ctx, container.Image, u.ToTag, sources)
		if err != nil {
			c.logErr(container, "changelog fetch", err)
		} else if note != nil {
			class := changelog.Classify(note.Body)
			u.ReasonType = class.ReasonType
			if class.Summary != "" {
				u.ReasonSummary = class.Summary
			}
			u.Changelog = note.Body
			u.ChangelogURL = note.URL
			if repo != "" && container.ReleaseSource == "" {
				container.ReleaseSource = repo
				_ = c.Store.SaveContainer(container)
			}
		}
	}

	if container.VulnForgeEnabled && c.VulnForge != nil {
		res, err := c.VulnForge.Query(ctx, vulnforge.ScanQuery{
			Image: container.Image,
			Tag: u.ToTag,
			Registry: string(container.Registry),
		})
		if err != nil {
			c.logErr(container, "vulnforge query", err)
			return
		}
		vulnforge.Enrich(u, container.Policy, res)
	}
}

// autoApprove implements step 8's policy table. It never
// downgrades a row that's already past pending (e.g. a manual rejection
// that raced ahead of this check).
func (c *Checker) autoApprove(container *model.Container, u *model.Update, now time.Time) {
	if u.Status != model.UpdateStatusPending {
		return
	}
	if !c.GlobalAutoUpdateEnabled {
		return
	}
	if !approvalAllowed(container.Policy, u) {
		return
	}
	u.Status = model.UpdateStatusApproved
	u.ApprovedBy = "system"
	u.ApprovedAt = now
}

// approvalAllowed evaluates per-container-policy outcome table.
func approvalAllowed(policy model.Policy, u *model.Update) bool {
	switch policy {
	case model.PolicyDisabled, model.PolicyManual:
		return false
	case model.PolicyAuto:
		return true
	case model.PolicySecurity:
		return u.ReasonType == model.ReasonSecurity
	case model.PolicyPatchOnly:
		return u.ChangeType == model.ChangePatch
	case model.PolicyMinorAndPatch:
		return u.ChangeType == model.ChangePatch || u.ChangeType == model.ChangeMinor
	default:
		return false
	}
}

// dispatchNotification implements step 9: a security-update or
// generic update-available notification, depending on how the update was
// classified.
func (c *Checker) dispatchNotification(ctx context.Context, container *model.Container, u *model.Update) {
	if c.Notify == nil {
		return
	}
	evtType := notify.EventUpdateAvailable
	if u.ReasonType == model.ReasonSecurity {
		evtType = notify.EventVersionAvailable
	}
	c.Notify.Notify(ctx, notify.Event{
		Type: evtType,
		ContainerName: container.Name,
		OldImage: container.Image + ":" + u.FromTag,
		NewImage: container.Image + ":" + u.ToTag,
	})
}
