package changelog

import "strings"

// Source maps an image pattern to a GitHub "owner/repo" for release-note
// lookups. A container's own release_source, once detected, is
// persisted and takes priority over every curated table on subsequent
// checks — DetectSource is only consulted while that field is empty.
type Source struct {
	ImagePattern string
	GitHubRepo string
}

// curatedAliases covers popular images whose GitHub repo can't be derived
// mechanically from the image reference.
var curatedAliases = map[string]string{
	"nginx": "nginx/nginx",
	"redis": "redis/redis",
	"postgres": "postgres/postgres",
	"mysql": "mysql/mysql-server",
	"mongo": "mongodb/mongo",
	"traefik": "traefik/traefik",
	"grafana": "grafana/grafana",
	"prometheus": "prometheus/prometheus",
	"caddy": "caddyserver/caddy",
}

// DetectSource auto-detects the GitHub repo for an image reference: custom
// sources first (container- or operator-supplied), then structural rules
// for GHCR/LSCR images, then the curated alias table. Returns "" if none
// match.
func DetectSource(imageRef string, sources []Source) string {
	ref := stripTagOrDigest(imageRef)

	for _, src := range sources {
		if matchImagePattern(ref, src.ImagePattern) {
			return src.GitHubRepo
		}
	}

	if strings.HasPrefix(ref, "ghcr.io/") {
		return strings.TrimPrefix(ref, "ghcr.io/")
	}
	if strings.HasPrefix(ref, "lscr.io/linuxserver/") {
		return "linuxserver/docker-" + strings.TrimPrefix(ref, "lscr.io/linuxserver/")
	}
	if strings.HasPrefix(ref, "linuxserver/") {
		return "linuxserver/docker-" + strings.TrimPrefix(ref, "linuxserver/")
	}

	bareName := ref
	if i := strings.LastIndex(bareName, "/"); i >= 0 {
		bareName = bareName[i+1:]
	}
	if repo, ok := curatedAliases[bareName]; ok {
		return repo
	}

	return ""
}

func stripTagOrDigest(imageRef string) string {
	ref := imageRef
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		candidate := ref[i+1:]
		if !strings.Contains(candidate, "/") {
			ref = ref[:i]
		}
	}
	return ref
}

// matchImagePattern supports exact match, a "*" wildcard suffix, and a bare
// name matching any path whose last segment equals it (e.g. "nginx"
// matches "library/nginx").
func matchImagePattern(imageRef, pattern string) bool {
	if pattern == "" {
		return false
	}
	if pattern == imageRef {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(imageRef, strings.TrimSuffix(pattern, "*"))
	}
	if !strings.Contains(pattern, "/") {
		parts := strings.Split(imageRef, "/")
		return parts[len(parts)-1] == pattern
	}
	return false
}
