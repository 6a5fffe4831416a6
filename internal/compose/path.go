// Package compose owns the Compose Mutator: validating and
// rewriting docker-compose files in place, translating TideWatch's
// container-visible compose paths to the paths the Docker daemon sees on
// the host, and extracting health-check and release-source hints from a
// compose service block. It never shells out — rewrites are done with
// gopkg.in/yaml.v3's Node tree so comments, anchors, and quoting survive.
package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is wrapped by every path validation failure.
var ErrInvalidPath = fmt.Errorf("compose: invalid path")

// ValidatePath rejects traversal attempts and anything outside allowedBase,
// and requires the target be a regular.yml/.yaml file.
func ValidatePath(path, allowedBase string) (string, error) {
	if strings.Contains(path, "..") || strings.Contains(path, "//") || strings.ContainsRune(path, '\\') || strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: %q contains a disallowed sequence", ErrInvalidPath, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yml" && ext != ".yaml" {
		return "", fmt.Errorf("%w: %q is not a .yml/.yaml file", ErrInvalidPath, path)
	}

	resolvedBase, err := filepath.Abs(filepath.Clean(allowedBase))
	if err != nil {
		return "", fmt.Errorf("%w: resolving base %q: %v", ErrInvalidPath, allowedBase, err)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("%w: resolving %q: %v", ErrInvalidPath, path, err)
	}
	if resolved != resolvedBase && !strings.HasPrefix(resolved, resolvedBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes base %q", ErrInvalidPath, path, allowedBase)
	}

	info, err := os.Lstat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q is not a regular file", ErrInvalidPath, path)
	}

	return resolved, nil
}

// ValidatePathAgainstBases runs ValidatePath against each candidate base in
// order and succeeds on the first that both contains the path and resolves
// to a real file. Used where a path may live under any of several allowed
// roots (the configured compose base plus test fixtures bases).
func ValidatePathAgainstBases(path string, bases []string) (string, error) {
	var lastErr error
	for _, base := range bases {
		resolved, err := ValidatePath(path, base)
		if err == nil {
			return resolved, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no bases configured", ErrInvalidPath)
	}
	return "", lastErr
}
