package databackup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/homelabforge/tidewatch/internal/dockerclient"
)

// CheckVolumeSpace reports free bytes on the backup volume by running a
// throwaway `df` inside a helper container, returning ok=false if the check
// itself fails (treated as "unknown", not "no space", by callers).
func (s *Service) CheckVolumeSpace(ctx context.Context) (free int64, ok bool) {
	cmd := []string{"sh", "-c", "df -B1 /backup | tail -1 | awk '{print $4}'"}
	mounts := []dockerclient.HelperMount{{Source: BackupVolumeName, Target: "/backup", ReadOnly: true}}
	exitCode, out, err := s.docker.RunHelper(ctx, "alpine:latest", "tw-space-check", cmd, mounts, 30*time.Second)
	if err != nil || exitCode != 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListBackups returns every backup's metadata for a container, newest first.
func (s *Service) ListBackups(containerName string) ([]metadata, error) {
	dir := filepath.Join(s.baseDir, containerName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var m metadata
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PruneBackups removes backup directories beyond the most recent `keep`,
// plus any directory missing valid metadata (an interrupted backup).
// Returns the number of directories removed.
func (s *Service) PruneBackups(containerName string, keep int) (int, error) {
	dir := filepath.Join(s.baseDir, containerName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	type candidate struct {
		path string
		modTime time.Time
		valid bool
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		_, statErr := os.Stat(filepath.Join(p, "metadata.json"))
		candidates = append(candidates, candidate{path: p, modTime: info.ModTime(), valid: statErr == nil})
	}

	removed := 0
	var valid []candidate
	for _, c := range candidates {
		if !c.valid {
			os.RemoveAll(c.path)
			removed++
			continue
		}
		valid = append(valid, c)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].modTime.After(valid[j].modTime) })
	for _, c := range valid[min(keep, len(valid)):] {
		os.RemoveAll(c.path)
		removed++
	}
	return removed, nil
}
