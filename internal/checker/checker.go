// Package checker implements the per-container Update Checker
// orchestration: it ties the registry client set, the tag
// selector, the decision maker, the changelog fetcher, and the VulnForge
// enricher together into one pass over a container, and applies the
// resulting auto-approval policy.
package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/homelabforge/tidewatch/internal/changelog"
	"github.com/homelabforge/tidewatch/internal/decision"
	"github.com/homelabforge/tidewatch/internal/events"
	"github.com/homelabforge/tidewatch/internal/logging"
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/notify"
	"github.com/homelabforge/tidewatch/internal/registry"
	"github.com/homelabforge/tidewatch/internal/tagselect"
	"github.com/homelabforge/tidewatch/internal/vulnforge"
)

// containerStore is the subset of *store.Store the checker needs, factored
// out so tests can supply an in-memory fake.
type containerStore interface {
	SaveContainer(c *model.Container) error
	ListUpdatesByContainer(containerID int64) ([]*model.Update, error)
	ActiveUpdateFor(containerID int64, from, to string) (*model.Update, error)
	SaveUpdate(u *model.Update) error
	DeleteUpdate(id int64) error
}

// registrySet resolves a registry.Client for an image, matching
// *registry.Set's public method.
type registrySet interface {
	For(image string, reg model.Registry) registry.Client
}

// changelogFetcher matches *changelog.Fetcher's public method.
type changelogFetcher interface {
	Fetch(ctx context.Context, imageRef, version string, sources []changelog.Source) (*changelog.Note, string, error)
}

// publisher matches *events.Bus's public method.
type publisher interface {
	Publish(events.Event)
}

// notifier matches *notify.Multi's public method.
type notifier interface {
	Notify(ctx context.Context, event notify.Event) bool
}

// Clock lets tests control "now" without sleeping.
type Clock func() time.Time

// Checker runs per-container update check.
type Checker struct {
	Store containerStore
	Registries registrySet
	ChangelogFetcher changelogFetcher
	ChangelogSources []changelog.Source
	VulnForge vulnforge.Client
	Events publisher
	Notify notifier
	Log *logging.Logger
	Now Clock

	// GlobalIncludePrereleases is the fallback used when a container's
	// per-container tri-state override is unset.
	GlobalIncludePrereleases bool
	// GlobalAutoUpdateEnabled gates every auto-approval outcome besides
	// "disabled"/"manual", matching the scheduler's global pause switch.
	GlobalAutoUpdateEnabled bool
}

// Result summarizes one container's check, returned to callers that need
// to aggregate (the scheduler's per-tick summary, the sync HTTP handler).
type Result struct {
	ContainerID int64
	HasUpdate bool
	UpdateID int64
	ScopeViolated bool
	Err error
}

// Check runs the full pipeline for one container: list tags, select a
// candidate, decide, persist, enrich, auto-approve, notify.
func (c *Checker) Check(ctx context.Context, container *model.Container) Result {
	now := c.now()
	res := Result{ContainerID: container.ID}

	c.publish(events.TypeUpdateCheckStarted, container, "", 0)

	client := c.Registries.For(container.Image, container.Registry)

	tags, err := client.ListTags(ctx, container.Image)
	if err != nil {
		return c.fail(container, now, err)
	}

	meta, metaErr := client.LatestTagMetadata(ctx, container.Image, container.CurrentTag)
	digestChanged := metaErr == nil && meta.Digest != "" && container.CurrentDigest != "" && meta.Digest != container.CurrentDigest
	newDigest := meta.Digest
	if metaErr != nil {
		newDigest = container.CurrentDigest
	}

	effectivePrereleases := container.IncludePrereleases.Resolve(c.GlobalIncludePrereleases)

	tagResult := tagselect.Select(tagselect.Input{
		CurrentTag: container.CurrentTag,
		Candidates: tags,
		Scope: container.Scope,
		IncludePrereleases: effectivePrereleases,
		HostArch: "amd64",
	})

	dec, trace := decision.Decide(decision.Input{
		CurrentTag: container.CurrentTag,
		Scope: container.Scope,
		EffectiveIncludePrereleases: effectivePrereleases,
		TagResult: tagResult,
		DigestChanged: digestChanged,
		NewDigest: newDigest,
		PreviousDigest: container.CurrentDigest,
	})

	// Step 1-3: stamp last_checked, latest_major_tag, and current_digest.
	container.LastChecked = now
	container.LatestMajorTag = tagResult.BestOverall
	if dec.DigestChanged {
		container.CurrentDigest = dec.NewDigest
	}
	container.UpdateAvailable = dec.HasUpdate
	if dec.HasUpdate {
		container.LatestTag = dec.LatestTag
	}
	if err := c.Store.SaveContainer(container); err != nil {
		return c.fail(container, now, err)
	}

	if err := c.reconcileScopeViolation(container, dec, trace, now); err != nil {
		c.logErr(container, "reconcile scope violation", err)
	}

	if !dec.HasUpdate {
		if err := c.clearActiveUpdates(container.ID, false); err != nil {
			c.logErr(container, "clear superseded updates", err)
		}
		if container.VulnForgeEnabled && c.VulnForge != nil {
			_, _ = c.VulnForge.Query(ctx, vulnforge.ScanQuery{Image: container.Image, Tag: container.CurrentTag, Registry: string(container.Registry)})
		}
		c.publish(events.TypeUpdateCheckComplete, container, "no_update", 0)
		return res
	}

	update, err := c.upsertUpdate(container, dec, trace, now)
	if err != nil {
		return c.fail(container, now, err)
	}

	c.enrich(ctx, container, update)
	c.autoApprove(container, update, now)

	if err := c.Store.SaveUpdate(update); err != nil {
		return c.fail(container, now, err)
	}

	c.dispatchNotification(ctx, container, update)
	c.publish(events.TypeUpdateAvailable, container, "", 0)

	res.HasUpdate = true
	res.UpdateID = update.ID
	res.ScopeViolated = dec.IsScopeViolation
	return res
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) fail(container *model.Container, now time.Time, err error) Result {
	container.LastChecked = now
	_ = c.Store.SaveContainer(container)
	c.logErr(container, "update check", err)
	c.publish(events.TypeUpdateCheckError, container, "", 0)
	return Result{ContainerID: container.ID, Err: err}
}

func (c *Checker) logErr(container *model.Container, op string, err error) {
	if c.Log != nil {
		c.Log.Error(op+" failed", "container", container.Name, "error", err.Error())
	}
}

func (c *Checker) publish(t events.Type, container *model.Container, status string, progress float64) {
	if c.Events == nil {
		return
	}
	c.Events.Publish(events.Event{
		Type: t,
		ContainerID: container.ID,
		ContainerName: container.Name,
		Timestamp: c.now(),
		Status: status,
		Progress: progress,
	})
}

// upsertUpdate implements steps 5-6: an existing active row for the same
// (from, to) pair is reused when one exists — for a digest-only update the
// pair is (current tag, current tag) and the reused row's maintenance
// summary is refreshed with the new digest — otherwise any older target is
// superseded and a new row inserted.
func (c *Checker) upsertUpdate(container *model.Container, dec decision.Decision, trace model.DecisionTrace, now time.Time) (*model.Update, error) {
	toTag := dec.LatestTag
	if dec.UpdateKind == model.UpdateKindDigest {
		toTag = container.CurrentTag
	}

	if existing, err := c.Store.ActiveUpdateFor(container.ID, container.CurrentTag, toTag); err == nil && existing != nil {
		if dec.DigestChanged {
			existing.ReasonType = model.ReasonMaintenance
			existing.ReasonSummary = digestSummary(trace.PreviousDigest, dec.NewDigest)
		}
		return existing, nil
	}

	if err := c.clearActiveUpdates(container.ID, false); err != nil {
		return nil, err
	}

	traceJSON, err := encodeTrace(trace)
	if err != nil {
		return nil, err
	}

	u := &model.Update{
		ContainerID: container.ID,
		FromTag: container.CurrentTag,
		ToTag: toTag,
		Registry: container.Registry,
		Status: model.UpdateStatusPending,
		UpdateKind: dec.UpdateKind,
		ChangeType: dec.ChangeType,
		DecisionTrace: traceJSON,
		MaxRetries: 3,
	}

	if dec.UpdateKind == model.UpdateKindDigest {
		u.ReasonType = model.ReasonMaintenance
		u.ReasonSummary = digestSummary(trace.PreviousDigest, dec.NewDigest)
	} else {
		u.ReasonType = model.ReasonUnknown
	}

	if err := c.Store.SaveUpdate(u); err != nil {
		return nil, fmt.Errorf("checker: save update: %w", err)
	}
	return u, nil
}

func digestSummary(prev, next string) string {
	return fmt.Sprintf("Image digest updated: %s → %s", shortDigest(prev), shortDigest(next))
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// clearActiveUpdates deletes every active update for a container, optionally
// restricted to scope-violation rows (the two buckets supersede
// independently — a new main candidate never deletes the scope-violation
// row and vice versa).
func (c *Checker) clearActiveUpdates(containerID int64, scopeViolation bool) error {
	updates, err := c.Store.ListUpdatesByContainer(containerID)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if !u.Status.IsActive() || u.ScopeViolation != scopeViolation {
			continue
		}
		if err := c.Store.DeleteUpdate(u.ID); err != nil {
			return err
		}
	}
	return nil
}

// reconcileScopeViolation implements scope-violation Update:
// created/refreshed whenever a blocked major exists, deduped against an
// identical active row, and superseded when the blocked major moves on.
func (c *Checker) reconcileScopeViolation(container *model.Container, dec decision.Decision, trace model.DecisionTrace, now time.Time) error {
	if !dec.IsScopeViolation {
		return c.clearActiveUpdates(container.ID, true)
	}

	if existing, err := c.Store.ActiveUpdateFor(container.ID, container.CurrentTag, trace.MajorCandidateBlocked); err == nil && existing != nil {
		return nil // identical to an already-active row, no supersede
	}

	if err := c.clearActiveUpdates(container.ID, true); err != nil {
		return err
	}

	traceJSON, err := encodeTrace(trace)
	if err != nil {
		return err
	}

	u := &model.Update{
		ContainerID: container.ID,
		FromTag: container.CurrentTag,
		ToTag: trace.MajorCandidateBlocked,
		Registry: container.Registry,
		Status: model.UpdateStatusPending,
		UpdateKind: model.UpdateKindTag,
		ChangeType: model.ChangeMajor,
		ReasonType: model.ReasonFeature,
		ScopeViolation: true,
		Recommendation: "Review required — change scope to major to apply",
		DecisionTrace: traceJSON,
		MaxRetries: 3,
	}
	return c.Store.SaveUpdate(u)
}
