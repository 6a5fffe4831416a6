package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/homelabforge/tidewatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "tidewatch.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetContainer(t *testing.T) {
	s := openTestStore(t)
	c := &model.Container{Name: "nginx", Image: "nginx", CurrentTag: "1.25", Policy: model.PolicyManual, Scope: model.ScopeMinor}
	if err := s.SaveContainer(c); err != nil {
		t.Fatalf("SaveContainer: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("expected non-zero ID after save")
	}
	got, err := s.GetContainer(c.ID)
	if err != nil || got == nil {
		t.Fatalf("GetContainer: %v, %v", got, err)
	}
	if got.Name != "nginx" {
		t.Errorf("Name = %q, want nginx", got.Name)
	}

	byName, err := s.GetContainerByName("nginx")
	if err != nil || byName == nil || byName.ID != c.ID {
		t.Fatalf("GetContainerByName: %+v, %v", byName, err)
	}
}

func TestDeleteContainerCascades(t *testing.T) {
	s := openTestStore(t)
	c := &model.Container{Name: "redis"}
	s.SaveContainer(c)

	u := &model.Update{ContainerID: c.ID, FromTag: "6", ToTag: "7", Status: model.UpdateStatusPending}
	if err := s.SaveUpdate(u); err != nil {
		t.Fatalf("SaveUpdate: %v", err)
	}
	h := &model.UpdateHistory{ContainerID: c.ID, Status: model.HistorySuccess, StartedAt: time.Now()}
	s.SaveHistory(h)
	s.SaveRestartState(&model.RestartState{ContainerID: c.ID, Enabled: true})

	if err := s.DeleteContainer(c.ID); err != nil {
		t.Fatalf("DeleteContainer: %v", err)
	}

	if got, _ := s.GetContainer(c.ID); got != nil {
		t.Error("container still present after delete")
	}
	if got, _ := s.GetUpdate(u.ID); got != nil {
		t.Error("update still present after cascade delete")
	}
	if rows, _ := s.ListHistoryByContainer(c.ID); len(rows) != 0 {
		t.Error("history rows still present after cascade delete")
	}
	if st, _ := s.GetRestartState(c.ID); st != nil {
		t.Error("restart state still present after cascade delete")
	}
}

func TestSaveUpdateRejectsDuplicateActive(t *testing.T) {
	s := openTestStore(t)
	c := &model.Container{Name: "postgres"}
	s.SaveContainer(c)

	first := &model.Update{ContainerID: c.ID, FromTag: "15", ToTag: "16", Status: model.UpdateStatusPending}
	if err := s.SaveUpdate(first); err != nil {
		t.Fatalf("first SaveUpdate: %v", err)
	}

	dup := &model.Update{ContainerID: c.ID, FromTag: "15", ToTag: "16", Status: model.UpdateStatusPending}
	if err := s.SaveUpdate(dup); err == nil {
		t.Fatal("expected error inserting duplicate active update, got nil")
	}

	// A non-active duplicate (e.g. a historical rejected row) is fine.
	rejected := &model.Update{ContainerID: c.ID, FromTag: "15", ToTag: "16", Status: model.UpdateStatusRejected}
	if err := s.SaveUpdate(rejected); err != nil {
		t.Fatalf("rejected duplicate should be allowed: %v", err)
	}
}

func TestActiveUpdateForClearsOnTerminalStatus(t *testing.T) {
	s := openTestStore(t)
	c := &model.Container{Name: "grafana"}
	s.SaveContainer(c)

	u := &model.Update{ContainerID: c.ID, FromTag: "10", ToTag: "11", Status: model.UpdateStatusPending}
	s.SaveUpdate(u)

	active, err := s.ActiveUpdateFor(c.ID, "10", "11")
	if err != nil || active == nil {
		t.Fatalf("expected active update, got %+v, %v", active, err)
	}

	u.Status = model.UpdateStatusApplied
	if err := s.SaveUpdate(u); err != nil {
		t.Fatalf("SaveUpdate transition: %v", err)
	}

	active, err = s.ActiveUpdateFor(c.ID, "10", "11")
	if err != nil {
		t.Fatalf("ActiveUpdateFor: %v", err)
	}
	if active != nil {
		t.Error("expected no active update once applied")
	}
}

func TestInProgressHistoryFor(t *testing.T) {
	s := openTestStore(t)
	c := &model.Container{Name: "mqtt"}
	s.SaveContainer(c)

	h := &model.UpdateHistory{ContainerID: c.ID, Status: model.HistoryInProgress, StartedAt: time.Now()}
	s.SaveHistory(h)

	got, err := s.InProgressHistoryFor(c.ID)
	if err != nil || got == nil {
		t.Fatalf("expected in-progress row, got %+v, %v", got, err)
	}

	h.Status = model.HistorySuccess
	h.CompletedAt = time.Now()
	s.SaveHistory(h)

	got, err = s.InProgressHistoryFor(c.ID)
	if err != nil {
		t.Fatalf("InProgressHistoryFor: %v", err)
	}
	if got != nil {
		t.Error("expected no in-progress row once completed")
	}
}

func TestRestartStateGetOrCreate(t *testing.T) {
	s := openTestStore(t)
	st, err := s.GetOrCreateRestartState(42)
	if err != nil {
		t.Fatalf("GetOrCreateRestartState: %v", err)
	}
	if st.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want default 5", st.MaxAttempts)
	}

	st.ConsecutiveFailures = 3
	if err := s.SaveRestartState(st); err != nil {
		t.Fatalf("SaveRestartState: %v", err)
	}

	again, err := s.GetOrCreateRestartState(42)
	if err != nil || again.ConsecutiveFailures != 3 {
		t.Fatalf("expected persisted failures=3, got %+v, %v", again, err)
	}
}

func TestScanJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	j := &model.PendingScanJob{ContainerName: "app", Status: model.ScanJobPending, MaxPolls: 10}
	if err := s.SaveScanJob(j); err != nil {
		t.Fatalf("SaveScanJob: %v", err)
	}

	active, err := s.ListActiveScanJobs()
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActiveScanJobs: %+v, %v", active, err)
	}

	j.Status = model.ScanJobCompleted
	s.SaveScanJob(j)

	active, err = s.ListActiveScanJobs()
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active jobs after completion, got %+v, %v", active, err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if v, err := s.GetSetting("check_schedule"); err != nil || v != "" {
		t.Fatalf("expected empty default, got %q, %v", v, err)
	}
	if err := s.SetSetting("check_schedule", "0 */6 * * *"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	v, err := s.GetSetting("check_schedule")
	if err != nil || v != "0 */6 * * *" {
		t.Fatalf("GetSetting: %q, %v", v, err)
	}
	if err := s.DeleteSetting("check_schedule"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if v, _ := s.GetSetting("check_schedule"); v != "" {
		t.Errorf("expected setting cleared, got %q", v)
	}
}

func TestTagCacheExpiry(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	if err := s.PutCachedTags("library/nginx", []string{"1.25", "1.26"}, now); err != nil {
		t.Fatalf("PutCachedTags: %v", err)
	}

	ct, ok, err := s.GetCachedTags("library/nginx", time.Hour)
	if err != nil || !ok || len(ct.Tags) != 2 {
		t.Fatalf("expected cache hit, got %+v, %v, %v", ct, ok, err)
	}

	if err := s.PutCachedTags("library/redis", []string{"7"}, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("PutCachedTags: %v", err)
	}
	_, ok, err = s.GetCachedTags("library/redis", time.Hour)
	if err != nil {
		t.Fatalf("GetCachedTags: %v", err)
	}
	if ok {
		t.Error("expected expired cache entry to miss")
	}
}

func TestRateLimitRoundTrip(t *testing.T) {
	s := openTestStore(t)
	reset := time.Now().Add(30 * time.Minute)
	if err := s.PutRateLimit("ghcr.io", RateLimitState{ResetAt: reset, Reason: "429"}); err != nil {
		t.Fatalf("PutRateLimit: %v", err)
	}
	st, ok, err := s.GetRateLimit("ghcr.io")
	if err != nil || !ok {
		t.Fatalf("GetRateLimit: %+v, %v, %v", st, ok, err)
	}
	if !st.ResetAt.Equal(reset) {
		t.Errorf("ResetAt = %v, want %v", st.ResetAt, reset)
	}
}
