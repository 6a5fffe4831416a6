package databackup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DumpPostgreSQL runs pg_dumpall inside a live PostgreSQL container and
// writes the output alongside the rest of the backup, so a data restore can
// be paired with a database restore for containers whose state lives in
// both a volume and a database.
func (s *Service) DumpPostgreSQL(ctx context.Context, containerID, containerName, backupID, pgUser string) error {
	dir := s.backupDir(containerName, backupID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	exitCode, out, err := s.docker.Exec(ctx, containerID, []string{"pg_dumpall", "-U", pgUser}, 2*time.Minute)
	if err != nil {
		return fmt.Errorf("pg_dumpall: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("pg_dumpall exited %d: %s", exitCode, out)
	}
	return os.WriteFile(filepath.Join(dir, "pg_dumpall.sql"), []byte(out), 0o640)
}

// RestorePostgreSQL replays a pg_dumpall dump into a running PostgreSQL
// container. It must be called after the container is recreated and
// healthy. A PostgreSQL major-version mismatch between the backup and the
// freshly started container aborts the restore — cross-major pg_dumpall
// replay is not something TideWatch attempts automatically.
func (s *Service) RestorePostgreSQL(ctx context.Context, containerID, containerName, backupID, pgUser, backupPGVersion, currentPGVersion string) (bool, error) {
	dumpPath := filepath.Join(s.backupDir(containerName, backupID), "pg_dumpall.sql")
	dump, err := os.ReadFile(dumpPath)
	if err != nil {
		return false, nil // no dump recorded for this backup — nothing to do
	}

	if backupPGVersion != "" && currentPGVersion != "" && backupPGVersion != currentPGVersion {
		return false, fmt.Errorf("postgres version mismatch: backup=%s current=%s, skipping database restore", backupPGVersion, currentPGVersion)
	}

	const remotePath = "/tmp/pg_dumpall.sql"
	if err := s.writeFileIntoContainer(ctx, containerID, remotePath, dump); err != nil {
		return false, fmt.Errorf("copy dump into container: %w", err)
	}
	defer s.docker.Exec(ctx, containerID, []string{"rm", "-f", remotePath}, 10*time.Second)

	exitCode, out, err := s.docker.Exec(ctx, containerID, []string{"sh", "-c", fmt.Sprintf("psql -U %s < %s", pgUser, remotePath)}, 2*time.Minute)
	if err != nil {
		return false, fmt.Errorf("psql restore: %w", err)
	}
	if exitCode != 0 {
		return false, fmt.Errorf("psql restore exited %d: %s", exitCode, out)
	}
	return true, nil
}

// writeFileIntoContainer writes content to path inside a running container
// by piping it over Exec's stdin into `cat >`, avoiding a dependency on the tar-based
// CopyToContainer API for this single small text file.
func (s *Service) writeFileIntoContainer(ctx context.Context, containerID, path string, content []byte) error {
	script := fmt.Sprintf("cat > %s", path)
	exitCode, out, err := s.docker.ExecWithStdin(ctx, containerID, []string{"sh", "-c", script}, strings.NewReader(string(content)), time.Minute)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("write dump into container exited %d: %s", exitCode, out)
	}
	return nil
}

// PGUserFromEnv extracts the POSTGRES_USER value from a container's Env
// list, defaulting to "postgres" when unset.
func PGUserFromEnv(env []string) string {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "POSTGRES_USER="); ok {
			return v
		}
	}
	return "postgres"
}

// IsPostgres reports whether an image reference looks like a PostgreSQL
// image, the trigger for the database-dump step of a backup.
func IsPostgres(image string) bool {
	image = strings.ToLower(image)
	return strings.Contains(image, "postgres")
}
