package dockerclient

import (
	"strconv"
	"strings"

	"github.com/homelabforge/tidewatch/internal/model"
)

// Per-container overrides are read from `tidewatch.*` compose labels,
// covering the fuller per-container label surface beyond a single
// policy override.
const (
	labelPolicy = "tidewatch.policy"
	labelScope = "tidewatch.scope"
	labelIncludePrereleases = "tidewatch.include_prereleases"
	labelVulnForge = "tidewatch.vulnforge"
	labelHealthCheckURL = "tidewatch.healthcheck.url"
	labelHealthCheckMethod = "tidewatch.healthcheck.method"
	labelHealthCheckAuth = "tidewatch.healthcheck.auth"
	labelReleaseSource = "tidewatch.release_source"
	labelUpdateWindow = "tidewatch.update_window"
	labelAutoRestart = "tidewatch.auto_restart"
	labelDependsOn = "tidewatch.depends_on"
)

// ApplyLabelOverrides mutates c in place with any tidewatch.* label values
// present, leaving fields untouched (to keep global defaults) where the
// label is absent or unparseable.
func ApplyLabelOverrides(c *model.Container, labels map[string]string) {
	if v, ok := labels[labelPolicy]; ok {
		if p := parsePolicy(v); p != "" {
			c.Policy = p
		}
	}
	if v, ok := labels[labelScope]; ok {
		if sc := parseScope(v); sc != "" {
			c.Scope = sc
		}
	}
	if v, ok := labels[labelIncludePrereleases]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.IncludePrereleases = model.TriFrom(b)
		}
	}
	if v, ok := labels[labelVulnForge]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.VulnForgeEnabled = b
		}
	}
	if v, ok := labels[labelHealthCheckURL]; ok && v != "" {
		c.HealthCheckURL = v
	}
	if v, ok := labels[labelHealthCheckMethod]; ok {
		switch model.HealthCheckMethod(strings.ToLower(v)) {
		case model.HealthCheckAuto, model.HealthCheckHTTP, model.HealthCheckDocker:
			c.HealthCheckMethod = model.HealthCheckMethod(strings.ToLower(v))
		}
	}
	if v, ok := labels[labelHealthCheckAuth]; ok && v != "" {
		c.HealthCheckAuth = v
	}
	if v, ok := labels[labelReleaseSource]; ok && v != "" {
		c.ReleaseSource = v
	}
	if v, ok := labels[labelUpdateWindow]; ok && v != "" {
		c.UpdateWindow = v
	}
	if v, ok := labels[labelAutoRestart]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoRestartEnabled = b
		}
	}
	if v, ok := labels[labelDependsOn]; ok && v != "" {
		var deps []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				deps = append(deps, d)
			}
		}
		c.DependsOn = deps
	}
}

func parsePolicy(v string) model.Policy {
	switch model.Policy(strings.ToLower(v)) {
	case model.PolicyAuto, model.PolicyManual, model.PolicyDisabled, model.PolicySecurity, model.PolicyPatchOnly, model.PolicyMinorAndPatch:
		return model.Policy(strings.ToLower(v))
	default:
		return ""
	}
}

func parseScope(v string) model.Scope {
	switch model.Scope(strings.ToLower(v)) {
	case model.ScopePatch, model.ScopeMinor, model.ScopeMajor:
		return model.Scope(strings.ToLower(v))
	default:
		return ""
	}
}

// IsLocalImage always reports false: no image reference is classed as
// local-only, so the registry is checked for every image. A locally built
// "myapp:v1" looks the same as a Docker Hub single-segment name like
// "nginx:latest", and both go to the registry client, which fails
// gracefully for genuinely local images.
func IsLocalImage(imageRef string) bool {
	return false
}
