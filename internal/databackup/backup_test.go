package databackup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/homelabforge/tidewatch/internal/logging"
)

func TestShouldSkipMount(t *testing.T) {
	tests := []struct {
		name string
		m Mount
		skip bool
	}{
		{"read-only bind", Mount{Type: "bind", Source: "/data", ReadOnly: true}, true},
		{"socket mount", Mount{Type: "bind", Source: "/var/run/app.sock"}, true},
		{"infra path", Mount{Type: "bind", Source: "/var/run/docker.sock"}, true},
		{"single file conf", Mount{Type: "bind", Source: "/etc/app/app.conf"}, true},
		{"eligible bind dir", Mount{Type: "bind", Source: "/srv/app/data"}, false},
		{"eligible named volume", Mount{Type: "volume", Source: "app_data", VolumeName: "app_data"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, _ := shouldSkipMount(tt.m)
			if skip != tt.skip {
				t.Errorf("shouldSkipMount(%+v) = %v, want %v", tt.m, skip, tt.skip)
			}
		})
	}
}

func TestBackupSkippedWhenNoMounts(t *testing.T) {
	s := New(nil, t.TempDir(), logging.New(false))
	res := s.Backup(nil, "app", nil, "myimage:latest", time.Minute)
	if res.Status != "skipped" {
		t.Errorf("Status = %q, want skipped", res.Status)
	}
}

func TestBackupSkippedWhenAllMountsIneligible(t *testing.T) {
	s := New(nil, t.TempDir(), logging.New(false))
	res := s.Backup(nil, "app", []Mount{{Type: "bind", Source: "/var/run/docker.sock", ReadOnly: false}}, "myimage", time.Minute)
	if res.Status != "skipped" {
		t.Errorf("Status = %q, want skipped", res.Status)
	}
}

func TestListAndPruneBackups(t *testing.T) {
	base := t.TempDir()
	s := New(nil, base, logging.New(false))

	write := func(id string, age time.Duration) {
		dir := filepath.Join(base, "app", id)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatal(err)
		}
		m := metadata{BackupID: id, ContainerName: "app", CreatedAt: time.Now().Add(-age)}
		data, _ := json.Marshal(m)
		if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o640); err != nil {
			t.Fatal(err)
		}
		// stagger mtimes so prune's sort is deterministic
		mtime := time.Now().Add(-age)
		os.Chtimes(dir, mtime, mtime)
	}

	write("backup-1", 3*time.Hour)
	write("backup-2", 2*time.Hour)
	write("backup-3", time.Hour)

	// orphaned directory with no metadata
	if err := os.MkdirAll(filepath.Join(base, "app", "orphan"), 0o750); err != nil {
		t.Fatal(err)
	}

	backups, err := s.ListBackups("app")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("got %d backups, want 3", len(backups))
	}
	if backups[0].BackupID != "backup-3" {
		t.Errorf("newest first: got %q, want backup-3", backups[0].BackupID)
	}

	removed, err := s.PruneBackups("app", 2)
	if err != nil {
		t.Fatalf("PruneBackups: %v", err)
	}
	// 1 orphan + 1 over-the-keep-limit backup
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	remaining, err := s.ListBackups("app")
	if err != nil {
		t.Fatalf("ListBackups after prune: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d remaining, want 2", len(remaining))
	}
}

func TestRestoreFailsWithoutMetadata(t *testing.T) {
	s := New(nil, t.TempDir(), logging.New(false))
	res := s.Restore(nil, "app", "missing-backup")
	if res.Status != "failed" {
		t.Errorf("Status = %q, want failed", res.Status)
	}
}
