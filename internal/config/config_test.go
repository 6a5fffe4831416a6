package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"TIDEWATCH_DOCKER_SOCK", "TIDEWATCH_CHECK_SCHEDULE", "TIDEWATCH_AUTO_APPLY_INTERVAL",
		"TIDEWATCH_AUTO_UPDATE_MAX_CONCURRENT", "TIDEWATCH_DB_PATH",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()
	if cfg.DockerSock != "/var/run/docker.sock" {
		t.Errorf("DockerSock = %q, want /var/run/docker.sock", cfg.DockerSock)
	}
	if cfg.CheckSchedule() != "0 */6 * * *" {
		t.Errorf("CheckSchedule = %q, want 0 */6 * * *", cfg.CheckSchedule())
	}
	if cfg.AutoApplyInterval() != 5*time.Minute {
		t.Errorf("AutoApplyInterval = %s, want 5m", cfg.AutoApplyInterval())
	}
	if cfg.AutoUpdateMaxConcurrent() != 3 {
		t.Errorf("AutoUpdateMaxConcurrent = %d, want 3", cfg.AutoUpdateMaxConcurrent())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestValidateRejectsBadMaxConcurrent(t *testing.T) {
	cfg := NewTestConfig()
	cfg.SetAutoUpdateMaxConcurrent(0)
	if err := cfg.Validate(); err == nil {
		t.Error("Validate = nil, want error for max_concurrent=0")
	}
}

func TestHotReloadableFieldsAreConcurrencySafe(t *testing.T) {
	cfg := NewTestConfig()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			cfg.SetAutoUpdateMaxConcurrent(i + 1)
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = cfg.AutoUpdateMaxConcurrent()
	}
	<-done
}
