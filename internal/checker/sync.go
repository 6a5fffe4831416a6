package checker

import (
	"context"
	"strings"

	"github.com/moby/moby/api/types/container"

	"github.com/homelabforge/tidewatch/internal/model"
)

// syncStore is the subset the Sync step needs beyond containerStore —
// factored separately since it's only exercised by the supplemented
// POST /containers/sync endpoint, not the per-container check path.
type syncStore interface {
	GetContainerByName(name string) (*model.Container, error)
	SaveContainer(c *model.Container) error
}

// dockerLister matches *dockerclient.Client's ListAllContainers.
type dockerLister interface {
	ListAllContainers(ctx context.Context) ([]container.Summary, error)
}

// SyncResult is the POST /containers/sync response shape.
type SyncResult struct {
	Added int `json:"added"`
	Updated int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Total int `json:"total"`
}

const (
	maxLabels = 100
	maxLabelKey = 255
	maxLabelVal = 4096
	composeLabel = "com.docker.compose.project"
)

// Sync implements the supplemented POST /containers/sync operation:
// discover every running compose-managed container via Docker, and create
// or update the corresponding tracked Container records. tidewatch.*
// labels seed a newly-discovered container's initial settings only — an
// already-tracked container's persisted settings are never overwritten by
// label drift, matching "read-only labels" and "dynamic
// attribute injection" notes.
func Sync(ctx context.Context, docker dockerLister, st syncStore) (SyncResult, error) {
	summaries, err := docker.ListAllContainers(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, s := range summaries {
		labels := sanitizeLabels(s.Labels)
		if labels[composeLabel] == "" {
			continue // not compose-managed, out of scope for discovery
		}
		if enabled, ok := labels["tidewatch.enabled"]; ok && enabled == "false" {
			continue
		}

		name := strings.TrimPrefix(firstName(s.Names), "/")
		if name == "" {
			continue
		}
		result.Total++

		existing, err := st.GetContainerByName(name)
		if err != nil {
			return result, err
		}
		if existing != nil {
			if reconcileDiscovered(existing, s, labels) {
				if err := st.SaveContainer(existing); err != nil {
					return result, err
				}
				result.Updated++
			} else {
				result.Unchanged++
			}
			continue
		}

		c := newDiscoveredContainer(name, s, labels)
		if err := st.SaveContainer(c); err != nil {
			return result, err
		}
		result.Added++
	}

	return result, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// sanitizeLabels enforces label limits: at most 100 labels, keys
// up to 255 chars, values up to 4096 chars, control characters stripped.
func sanitizeLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	count := 0
	for k, v := range in {
		if count >= maxLabels {
			break
		}
		k = stripControl(truncate(k, maxLabelKey))
		v = stripControl(truncate(v, maxLabelVal))
		out[k] = v
		count++
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// newDiscoveredContainer seeds a new Container record from a running
// summary and its tidewatch.* labels, defaulting to safe values (manual
// policy, patch scope) when a label is absent or unparseable.
func newDiscoveredContainer(name string, s container.Summary, labels map[string]string) *model.Container {
	c := &model.Container{
		Name: name,
		Image: s.Image,
		ComposeProject: labels[composeLabel],
		ServiceName: labels["com.docker.compose.service"],
		Policy: model.PolicyManual,
		Scope: model.ScopePatch,
		HealthCheckMethod: model.HealthCheckAuto,
		AutoRestartEnabled: true,
		Labels: labels,
	}
	c.CurrentTag = tagFromImage(s.Image)

	if p, ok := labels["tidewatch.policy"]; ok && validPolicy(model.Policy(p)) {
		c.Policy = model.Policy(p)
	}
	if sc, ok := labels["tidewatch.scope"]; ok && validScope(model.Scope(sc)) {
		c.Scope = model.Scope(sc)
	}
	if ip, ok := labels["tidewatch.include_prereleases"]; ok {
		c.IncludePrereleases = model.TriFrom(ip == "true")
	}
	if vf, ok := labels["tidewatch.vulnforge"]; ok {
		c.VulnForgeEnabled = vf == "true"
	}
	if url, ok := labels["tidewatch.health_check_url"]; ok {
		c.HealthCheckURL = url
	}
	if m, ok := labels["tidewatch.health_check_method"]; ok && validHealthCheckMethod(model.HealthCheckMethod(m)) {
		c.HealthCheckMethod = model.HealthCheckMethod(m)
	}

	return c
}

// reconcileDiscovered refreshes the fields Docker itself is authoritative
// for (image, compose project/service) without touching user-editable
// settings, reporting whether anything changed.
func reconcileDiscovered(existing *model.Container, s container.Summary, labels map[string]string) bool {
	changed := false
	if existing.Image != s.Image {
		existing.Image = s.Image
		changed = true
	}
	if project := labels[composeLabel]; project != "" && existing.ComposeProject != project {
		existing.ComposeProject = project
		changed = true
	}
	if service := labels["com.docker.compose.service"]; service != "" && existing.ServiceName != service {
		existing.ServiceName = service
		changed = true
	}
	return changed
}

func tagFromImage(image string) string {
	if i := strings.LastIndex(image, ":"); i >= 0 && !strings.Contains(image[i:], "/") {
		return image[i+1:]
	}
	return "latest"
}

func validPolicy(p model.Policy) bool {
	switch p {
	case model.PolicyAuto, model.PolicyManual, model.PolicyDisabled, model.PolicySecurity, model.PolicyPatchOnly, model.PolicyMinorAndPatch:
		return true
	}
	return false
}

func validScope(s model.Scope) bool {
	switch s {
	case model.ScopePatch, model.ScopeMinor, model.ScopeMajor:
		return true
	}
	return false
}

func validHealthCheckMethod(m model.HealthCheckMethod) bool {
	switch m {
	case model.HealthCheckAuto, model.HealthCheckHTTP, model.HealthCheckDocker:
		return true
	}
	return false
}
