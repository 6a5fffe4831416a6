package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BackupPath returns the path a compose file backup is written to: a
// timestamped copy under backupDir named after the compose file itself,
// e.g. "/data/backups/myapp.yml.20260801-153000.backup".
func BackupPath(backupDir, composePath string, at time.Time) string {
	name := filepath.Base(composePath)
	return filepath.Join(backupDir, fmt.Sprintf("%s.%s.backup", name, at.UTC().Format("20060102-150405")))
}

// Backup copies composePath to BackupPath(backupDir, composePath, at)
// before mutation, so a bad rewrite or failed apply can be reverted with
// Restore.
func Backup(composePath, backupDir string, at time.Time) (string, error) {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return "", fmt.Errorf("compose: read %s for backup: %w", composePath, err)
	}
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return "", fmt.Errorf("compose: create backup dir: %w", err)
	}
	dest := BackupPath(backupDir, composePath, at)
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return "", fmt.Errorf("compose: write backup %s: %w", dest, err)
	}
	return dest, nil
}

// Restore overwrites composePath with the contents of backupPath.
func Restore(backupPath, composePath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("compose: read backup %s: %w", backupPath, err)
	}
	if err := os.WriteFile(composePath, data, 0o600); err != nil {
		return fmt.Errorf("compose: restore %s: %w", composePath, err)
	}
	return nil
}
