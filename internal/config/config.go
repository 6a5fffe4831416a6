// Package config loads TideWatch's runtime configuration from environment
// variables, matching the convention used throughout the rest of the
// module: immutable fields resolved once at startup, a small set of
// hot-reloadable fields guarded by an RWMutex so the scheduler goroutine and
// the HTTP API can both touch them safely.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all TideWatch configuration.
type Config struct {
	// Docker connection.
	DockerSock string
	DockerHost string // DOCKER_HOST to export to docker/docker-compose subprocesses

	// Compose layout.
	ComposeBase string // container-visible base, e.g. "/compose"
	HostComposeBase string // host-visible base the daemon understands
	ComposeCommand string // e.g. "docker compose"; parsed into argv, never shelled out

	// Storage.
	DBPath string
	DataDir string // e.g. "/data" — holds compose backups
	BackupDir string // e.g. "/data/backups"
	RollbackVolume string // named volume mounted at /rollback-data for data backups

	// Logging.
	LogJSON bool

	// Web API.
	WebPort string
	WebEnabled bool
	APIToken string // bearer token checked by internal/web's auth middleware

	// External collaborators.
	GitHubToken string // optional PAT for changelog fetches
	VulnForgeURL string
	VulnForgeKey string

	// mu protects the mutable runtime fields below.
	mu sync.RWMutex
	checkSchedule string // cron expression for the update-check job
	autoApplyInterval time.Duration // default 5m
	restartInterval time.Duration // default 30s
	autoUpdateEnabled bool
	autoUpdateMaxConcurrent int
	includePrereleases bool // global default; per-container tri-state can override
	paused bool
}

// Load reads configuration from environment variables with TideWatch defaults.
func Load() *Config {
	return &Config{
		DockerSock: envStr("TIDEWATCH_DOCKER_SOCK", "/var/run/docker.sock"),
		DockerHost: envStr("TIDEWATCH_DOCKER_HOST", "unix:///var/run/docker.sock"),
		ComposeBase: envStr("TIDEWATCH_COMPOSE_BASE", "/compose"),
		HostComposeBase: envStr("TIDEWATCH_HOST_COMPOSE_BASE", "/compose"),
		ComposeCommand: envStr("TIDEWATCH_COMPOSE_COMMAND", "docker compose"),
		DBPath: envStr("TIDEWATCH_DB_PATH", "/data/tidewatch.db"),
		DataDir: envStr("TIDEWATCH_DATA_DIR", "/data"),
		BackupDir: envStr("TIDEWATCH_BACKUP_DIR", "/data/backups"),
		RollbackVolume: envStr("TIDEWATCH_ROLLBACK_VOLUME", "tidewatch_rollback_data"),
		LogJSON: envBool("TIDEWATCH_LOG_JSON", true),
		WebPort: envStr("TIDEWATCH_WEB_PORT", "8787"),
		WebEnabled: envBool("TIDEWATCH_WEB_ENABLED", true),
		APIToken: envStr("TIDEWATCH_API_TOKEN", ""),
		GitHubToken: envStr("TIDEWATCH_GITHUB_TOKEN", ""),
		VulnForgeURL: envStr("TIDEWATCH_VULNFORGE_URL", ""),
		VulnForgeKey: envStr("TIDEWATCH_VULNFORGE_KEY", ""),
		checkSchedule: envStr("TIDEWATCH_CHECK_SCHEDULE", "0 */6 * * *"),
		autoApplyInterval: envDuration("TIDEWATCH_AUTO_APPLY_INTERVAL", 5*time.Minute),
		restartInterval: envDuration("TIDEWATCH_RESTART_INTERVAL", 30*time.Second),
		autoUpdateEnabled: envBool("TIDEWATCH_AUTO_UPDATE_ENABLED", true),
		autoUpdateMaxConcurrent: envInt("TIDEWATCH_AUTO_UPDATE_MAX_CONCURRENT", 3),
		includePrereleases: envBool("TIDEWATCH_INCLUDE_PRERELEASES", false),
	}
}

// NewTestConfig returns sane defaults for unit tests.
func NewTestConfig() *Config {
	return &Config{
		DockerSock: "/var/run/docker.sock",
		ComposeBase: "/compose",
		HostComposeBase: "/compose",
		ComposeCommand: "docker compose",
		DataDir: "/data",
		BackupDir: "/data/backups",
		RollbackVolume: "tidewatch_rollback_data",
		checkSchedule: "0 */6 * * *",
		autoApplyInterval: 5 * time.Minute,
		restartInterval: 30 * time.Second,
		autoUpdateEnabled: true,
		autoUpdateMaxConcurrent: 3,
	}
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	c.mu.RLock()
	sched := c.checkSchedule
	maxConc := c.autoUpdateMaxConcurrent
	c.mu.RUnlock()

	var errs []error
	if c.ComposeBase == "" {
		errs = append(errs, fmt.Errorf("TIDEWATCH_COMPOSE_BASE must be set"))
	}
	if maxConc <= 0 {
		errs = append(errs, fmt.Errorf("TIDEWATCH_AUTO_UPDATE_MAX_CONCURRENT must be > 0, got %d", maxConc))
	}
	if strings.TrimSpace(sched) == "" {
		errs = append(errs, fmt.Errorf("TIDEWATCH_CHECK_SCHEDULE must be set"))
	}
	return errors.Join(errs...)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// CheckSchedule returns the cron expression for the update-check job.
func (c *Config) CheckSchedule() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkSchedule
}

// SetCheckSchedule updates the cron expression at runtime.
func (c *Config) SetCheckSchedule(s string) {
	c.mu.Lock()
	c.checkSchedule = s
	c.mu.Unlock()
}

func (c *Config) AutoApplyInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoApplyInterval
}

func (c *Config) RestartInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.restartInterval
}

func (c *Config) AutoUpdateEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoUpdateEnabled
}

func (c *Config) SetAutoUpdateEnabled(b bool) {
	c.mu.Lock()
	c.autoUpdateEnabled = b
	c.mu.Unlock()
}

func (c *Config) AutoUpdateMaxConcurrent() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoUpdateMaxConcurrent
}

func (c *Config) SetAutoUpdateMaxConcurrent(n int) {
	c.mu.Lock()
	c.autoUpdateMaxConcurrent = n
	c.mu.Unlock()
}

func (c *Config) IncludePrereleases() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.includePrereleases
}

func (c *Config) SetIncludePrereleases(b bool) {
	c.mu.Lock()
	c.includePrereleases = b
	c.mu.Unlock()
}

func (c *Config) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

func (c *Config) SetPaused(b bool) {
	c.mu.Lock()
	c.paused = b
	c.mu.Unlock()
}

// Values returns all configuration as a string map for display/debugging.
func (c *Config) Values() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]string{
		"TIDEWATCH_DOCKER_SOCK": c.DockerSock,
		"TIDEWATCH_COMPOSE_BASE": c.ComposeBase,
		"TIDEWATCH_HOST_COMPOSE_BASE": c.HostComposeBase,
		"TIDEWATCH_DB_PATH": c.DBPath,
		"TIDEWATCH_CHECK_SCHEDULE": c.checkSchedule,
		"TIDEWATCH_AUTO_APPLY_INTERVAL": c.autoApplyInterval.String(),
		"TIDEWATCH_RESTART_INTERVAL": c.restartInterval.String(),
		"TIDEWATCH_AUTO_UPDATE_ENABLED": fmt.Sprintf("%t", c.autoUpdateEnabled),
		"TIDEWATCH_AUTO_UPDATE_MAX_CONCURRENT": fmt.Sprintf("%d", c.autoUpdateMaxConcurrent),
		"TIDEWATCH_INCLUDE_PRERELEASES": fmt.Sprintf("%t", c.includePrereleases),
		"TIDEWATCH_WEB_PORT": c.WebPort,
		"TIDEWATCH_WEB_ENABLED": fmt.Sprintf("%t", c.WebEnabled),
	}
}
