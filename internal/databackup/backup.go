// Package databackup implements the pre-update data safety net: best-effort backup of a container's volumes and bind mounts into
// a shared backup volume before an apply, and crash-safe staged restore if
// the update needs to be rolled back. Backups are created by spawning
// ephemeral alpine helper containers that tar a mount into the backup
// volume — the same Docker-native approach (no host filesystem access from
// the TideWatch process itself) as the system this was distilled from.
package databackup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/logging"
)

// BackupVolumeName is the named Docker volume all helper containers share
// to exchange tarballs with the TideWatch process's own backup directory.
const BackupVolumeName = "tidewatch_rollback_data"

// skipSourcePrefixes are host paths never backed up: the runtime socket
// directories. Compose, build and media paths are not excluded by prefix;
// they are backed up unless another rule in shouldSkipMount skips them.
var skipSourcePrefixes = []string{
	"/var/run", "/run",
}

var skipFileExts = map[string]bool{
	".conf": true, ".yml": true, ".yaml": true, ".json": true, ".toml": true,
	".env": true, ".ini": true, ".cfg": true, ".xml": true, ".sock": true,
	".log": true, ".pid": true, ".lock": true, ".key": true, ".pem": true,
	".crt": true, ".cert": true,
}

// MinFreeSpaceBytes is the floor below which a backup is refused outright
// rather than risk filling the volume mid-tar.
const MinFreeSpaceBytes = 500 * 1024 * 1024

// Mount describes one container mount as reported by `docker inspect`.
type Mount struct {
	Type string // "bind" or "volume"
	Source string
	Destination string
	VolumeName string
	ReadOnly bool
}

// MountResult records the outcome of backing up a single mount.
type MountResult struct {
	Type string `json:"type"`
	Source string `json:"source"`
	Destination string `json:"destination"`
	VolumeName string `json:"volume_name,omitempty"`
	TarFilename string `json:"tar_filename,omitempty"`
	SizeBytes int64 `json:"size_bytes"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a Backup call, persisted to UpdateHistory.
type Result struct {
	BackupID string
	ContainerName string
	Status string // success, partial, timeout, failed, skipped
	MountsBackedUp int
	TotalSizeBytes int64
	Duration time.Duration
	Error string
	Mounts []MountResult
}

type metadata struct {
	BackupID string `json:"backup_id"`
	ContainerName string `json:"container_name"`
	ContainerImage string `json:"container_image"`
	CreatedAt time.Time `json:"created_at"`
	PGVersion string `json:"pg_version,omitempty"`
	PGUser string `json:"pg_user,omitempty"`
	Mounts []MountResult `json:"mounts"`
}

// Service backs up and restores container data using ephemeral helper
// containers, per-container serialized so overlapping apply attempts can't
// race on the same backup directory.
type Service struct {
	docker *dockerclient.Client
	baseDir string // host-visible backup base directory
	log *logging.Logger
	locks *keyedMutex
}

// New constructs a Service. baseDir is the directory (mounted from
// BackupVolumeName into this process and into every helper container) under
// which per-container, per-backup subdirectories are created.
func New(docker *dockerclient.Client, baseDir string, log *logging.Logger) *Service {
	return &Service{docker: docker, baseDir: baseDir, log: log, locks: newKeyedMutex()}
}

func (s *Service) backupDir(containerName, backupID string) string {
	return filepath.Join(s.baseDir, containerName, backupID)
}

func shouldSkipMount(m Mount) (bool, string) {
	if m.ReadOnly {
		return true, "read-only mount"
	}
	if strings.HasSuffix(m.Source, ".sock") {
		return true, "socket mount"
	}
	for _, prefix := range skipSourcePrefixes {
		if strings.HasPrefix(m.Source, prefix) {
			return true, fmt.Sprintf("infrastructure path (%s)", prefix)
		}
	}
	if m.Type == "bind" && !strings.HasSuffix(m.Source, "/") {
		if ext := strings.ToLower(path.Ext(m.Source)); skipFileExts[ext] {
			return true, fmt.Sprintf("single-file mount (%s)", ext)
		}
	}
	return false, ""
}

// Backup creates a best-effort backup of every eligible mount belonging to
// containerName, skipping read-only mounts, sockets, infrastructure paths,
// and single-file binds. It never fails the caller's apply flow: every
// backup error, including too little free space on the backup volume or a
// backup directory that can't be created, surfaces as
// Result.Status="failed", not a returned error.
func (s *Service) Backup(ctx context.Context, containerName string, mounts []Mount, image string, timeout time.Duration) Result {
	unlock := s.locks.lock(containerName)
	defer unlock()

	start := time.Now()
	backupID := uuid.New().String()[:12]
	dir := s.backupDir(containerName, backupID)

	if len(mounts) == 0 {
		return Result{BackupID: backupID, ContainerName: containerName, Status: "skipped", Duration: time.Since(start)}
	}

	var eligible []Mount
	for _, m := range mounts {
		if skip, reason := shouldSkipMount(m); skip {
			s.log.Debug("skipping mount for backup", "source", m.Source, "reason", reason)
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) == 0 {
		return Result{BackupID: backupID, ContainerName: containerName, Status: "skipped", Duration: time.Since(start)}
	}

	if free, ok := s.CheckVolumeSpace(ctx); ok && free < MinFreeSpaceBytes {
		msg := fmt.Sprintf("backup volume has %d bytes free, below the %d-byte minimum", free, MinFreeSpaceBytes)
		return Result{BackupID: backupID, ContainerName: containerName, Status: "failed", Error: msg, Duration: time.Since(start)}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Result{BackupID: backupID, ContainerName: containerName, Status: "failed", Error: err.Error(), Duration: time.Since(start)}
	}

	meta := metadata{BackupID: backupID, ContainerName: containerName, ContainerImage: image, CreatedAt: start}
	perMountTimeout := timeout / time.Duration(len(eligible))
	if perMountTimeout < time.Minute {
		perMountTimeout = time.Minute
	}

	var results []MountResult
	var total int64
	for _, m := range eligible {
		if time.Since(start) > timeout {
			s.writeMetadata(dir, meta)
			return Result{
				BackupID: backupID, ContainerName: containerName, Status: "timeout",
				MountsBackedUp: countSuccesses(results), TotalSizeBytes: total,
				Duration: time.Since(start), Mounts: results,
			}
		}
		r := s.backupMount(ctx, m, containerName, backupID, perMountTimeout)
		results = append(results, r)
		meta.Mounts = append(meta.Mounts, r)
		total += r.SizeBytes
	}
	s.writeMetadata(dir, meta)

	succeeded := countSuccesses(results)
	status := "success"
	switch {
	case succeeded == 0:
		status = "failed"
	case succeeded < len(results):
		status = "partial"
	}

	return Result{
		BackupID: backupID, ContainerName: containerName, Status: status,
		MountsBackedUp: succeeded, TotalSizeBytes: total, Duration: time.Since(start), Mounts: results,
	}
}

func countSuccesses(results []MountResult) int {
	n := 0
	for _, r := range results {
		if r.Error == "" {
			n++
		}
	}
	return n
}

func (s *Service) backupMount(ctx context.Context, m Mount, containerName, backupID string, timeout time.Duration) MountResult {
	var safeName, tarName, source string
	if m.Type == "volume" && m.VolumeName != "" {
		safeName = sanitizeName(m.Destination)
		tarName = fmt.Sprintf("vol_%s.tar.gz", safeName)
		source = m.VolumeName
	} else {
		safeName = sanitizeName(m.Source)
		tarName = fmt.Sprintf("bind_%s.tar.gz", safeName)
		source = m.Source
	}
	subdir := fmt.Sprintf("%s/%s", containerName, backupID)
	cmd := []string{"sh", "-c", fmt.Sprintf("mkdir -p /backup/%s && tar czf /backup/%s/%s -C /source .", subdir, subdir, tarName)}

	mounts := []dockerclient.HelperMount{
		{Source: source, Target: "/source", ReadOnly: true},
		{Source: BackupVolumeName, Target: "/backup"},
	}

	exitCode, logs, err := s.docker.RunHelper(ctx, "alpine:latest", "tw-backup-"+uuid.New().String()[:8], cmd, mounts, timeout)
	res := MountResult{Type: m.Type, Source: source, Destination: m.Destination, VolumeName: m.VolumeName, TarFilename: tarName}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if exitCode != 0 {
		res.Error = fmt.Sprintf("backup helper exited %d: %s", exitCode, logs)
		return res
	}

	tarPath := filepath.Join(s.backupDir(containerName, backupID), tarName)
	if info, err := os.Stat(tarPath); err == nil {
		res.SizeBytes = info.Size()
	}
	return res
}

func (s *Service) writeMetadata(dir string, meta metadata) {
	data, err := json.MarshalIndent(meta, "", " ")
	if err != nil {
		s.log.Warn("marshal backup metadata failed", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o640); err != nil {
		s.log.Warn("write backup metadata failed", "error", err)
	}
}

func sanitizeName(p string) string {
	p = strings.Trim(p, "/")
	return strings.ReplaceAll(p, "/", "_")
}
