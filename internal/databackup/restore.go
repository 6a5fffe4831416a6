package databackup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/homelabforge/tidewatch/internal/dockerclient"
)

// RestoreResult is the outcome of a Restore call.
type RestoreResult struct {
	BackupID string
	ContainerName string
	Status string // success, partial, failed
	MountsRestored int
	Duration time.Duration
	Error string
}

// restoreScript stages the extracted tarball into.restore-staging before
// replacing the target directory's contents, so a crash mid-restore leaves
// either the old data or the staging directory intact — never a half-wiped
// target. The `|| true` on the dotfile mv tolerates globs that match
// nothing; the final test verifies staging was actually drained.
const restoreScriptTemplate = `set -e && ` +
	`rm -rf /target/.restore-staging && ` +
	`mkdir -p /target/.restore-staging && ` +
	`tar xzf /backup/%s/%s -C /target/.restore-staging && ` +
	`test "$(ls -A /target/.restore-staging)" && ` +
	`find /target -mindepth 1 -maxdepth 1 ! -name .restore-staging -exec rm -rf {} + && ` +
	`mv /target/.restore-staging/* /target/ 2>/dev/null || true && ` +
	`mv /target/.restore-staging/.* /target/ 2>/dev/null || true && ` +
	`rmdir /target/.restore-staging 2>/dev/null || true && ` +
	`test ! -d /target/.restore-staging && ` +
	`test "$(ls -A /target)"`

// Restore replays a prior Backup for containerName, restoring every mount
// that backed up cleanly. The target container's mounts should already be
// stopped/unmounted by the caller; this only touches volumes and bind mount
// sources, never a live container's filesystem view.
func (s *Service) Restore(ctx context.Context, containerName, backupID string) RestoreResult {
	unlock := s.locks.lock(containerName)
	defer unlock()

	start := time.Now()
	dir := s.backupDir(containerName, backupID)
	metaPath := filepath.Join(dir, "metadata.json")

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return RestoreResult{BackupID: backupID, ContainerName: containerName, Status: "failed", Error: fmt.Sprintf("backup metadata not found: %v", err), Duration: time.Since(start)}
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return RestoreResult{BackupID: backupID, ContainerName: containerName, Status: "failed", Error: fmt.Sprintf("corrupt backup metadata: %v", err), Duration: time.Since(start)}
	}

	var restored int
	var errs []string
	for _, m := range meta.Mounts {
		if m.Error != "" || m.TarFilename == "" {
			continue
		}
		tarPath := filepath.Join(dir, m.TarFilename)
		if _, err := os.Stat(tarPath); err != nil {
			errs = append(errs, fmt.Sprintf("%s: tarball missing", m.Source))
			continue
		}
		if err := s.restoreMount(ctx, m, containerName, backupID); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", m.Source, err))
			continue
		}
		restored++
	}

	status := "failed"
	switch {
	case restored > 0 && len(errs) == 0:
		status = "success"
	case restored > 0:
		status = "partial"
	}

	var errMsg string
	if len(errs) > 0 {
		errMsg = fmt.Sprintf("%v", errs)
	}
	return RestoreResult{BackupID: backupID, ContainerName: containerName, Status: status, MountsRestored: restored, Duration: time.Since(start), Error: errMsg}
}

func (s *Service) restoreMount(ctx context.Context, m MountResult, containerName, backupID string) error {
	subdir := fmt.Sprintf("%s/%s", containerName, backupID)
	script := fmt.Sprintf(restoreScriptTemplate, subdir, m.TarFilename)
	cmd := []string{"sh", "-c", script}

	target := m.Source
	if m.Type == "volume" && m.VolumeName != "" {
		target = m.VolumeName
	}
	mounts := []dockerclient.HelperMount{
		{Source: BackupVolumeName, Target: "/backup", ReadOnly: true},
		{Source: target, Target: "/target"},
	}

	exitCode, logs, err := s.docker.RunHelper(ctx, "alpine:latest", "tw-restore-"+uuid.New().String()[:8], cmd, mounts, 5*time.Minute)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("restore helper exited %d: %s", exitCode, logs)
	}
	return nil
}
