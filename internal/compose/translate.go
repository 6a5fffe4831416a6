package compose

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrTranslation covers path-translation failures distinct from
// ErrInvalidPath so callers can tell a config problem (bad bases) from a
// caller problem (path outside the container base).
var ErrTranslation = fmt.Errorf("compose: path translation failed")

// ToHostPath rewrites a TideWatch-container-visible compose path (mounted
// under containerBase, e.g. "/compose") to the path the Docker daemon sees
// on the host (hostBase, e.g. "/srv/raid0/docker/compose") so it can be
// passed to `docker compose -f` against the host daemon.
//
// The result is independently containment-checked against hostBase: a
// mapping bug that produces a path outside hostBase is a translation
// failure, not silently returned.
func ToHostPath(containerPath, containerBase, hostBase string) (string, error) {
	cleanContainerBase := filepath.Clean(containerBase)
	cleanPath := filepath.Clean(containerPath)

	if cleanPath != cleanContainerBase && !strings.HasPrefix(cleanPath, cleanContainerBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is not under container base %q", ErrTranslation, containerPath, containerBase)
	}

	rel, err := filepath.Rel(cleanContainerBase, cleanPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranslation, err)
	}

	hostPath := filepath.Join(filepath.Clean(hostBase), rel)

	cleanHostBase := filepath.Clean(hostBase)
	if hostPath != cleanHostBase && !strings.HasPrefix(hostPath, cleanHostBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: translated path %q escapes host base %q", ErrTranslation, hostPath, hostBase)
	}

	return hostPath, nil
}
