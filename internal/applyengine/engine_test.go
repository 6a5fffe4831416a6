package applyengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/homelabforge/tidewatch/internal/databackup"
	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/events"
	"github.com/homelabforge/tidewatch/internal/logging"
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/notify"

	dockercontainer "github.com/moby/moby/api/types/container"
)

type fakeStore struct {
	containers map[int64]*model.Container
	updates    map[int64]*model.Update
	history    map[int64]*model.UpdateHistory
	inProgress map[int64]*model.UpdateHistory
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		containers: map[int64]*model.Container{},
		updates:    map[int64]*model.Update{},
		history:    map[int64]*model.UpdateHistory{},
		inProgress: map[int64]*model.UpdateHistory{},
	}
}

func (s *fakeStore) GetContainer(id int64) (*model.Container, error) { return s.containers[id], nil }
func (s *fakeStore) SaveContainer(c *model.Container) error {
	s.containers[c.ID] = c
	return nil
}
func (s *fakeStore) SaveUpdate(u *model.Update) error {
	s.updates[u.ID] = u
	return nil
}
func (s *fakeStore) SaveHistory(h *model.UpdateHistory) error {
	if h.ID == 0 {
		s.nextID++
		h.ID = s.nextID
	}
	s.history[h.ID] = h
	return nil
}
func (s *fakeStore) InProgressHistoryFor(containerID int64) (*model.UpdateHistory, error) {
	return s.inProgress[containerID], nil
}

type fakeCompose struct {
	upErr, pullErr, stopErr error
	upCalls, pullCalls      int
	upFailCalls             int // when > 0, only the first upFailCalls Up calls return upErr
}

func (c *fakeCompose) Up(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error) {
	c.upCalls++
	if c.upFailCalls > 0 && c.upCalls > c.upFailCalls {
		return "", nil
	}
	return "", c.upErr
}
func (c *fakeCompose) Pull(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error) {
	c.pullCalls++
	return "", c.pullErr
}
func (c *fakeCompose) Stop(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error) {
	return "", c.stopErr
}

type fakeDataBackup struct{ result databackup.Result }

func (f *fakeDataBackup) Backup(ctx context.Context, containerName string, mounts []databackup.Mount, image string, timeout time.Duration) databackup.Result {
	return f.result
}
func (f *fakeDataBackup) Restore(ctx context.Context, containerName, backupID string) databackup.RestoreResult {
	return databackup.RestoreResult{Status: "success"}
}
func (f *fakeDataBackup) PruneBackups(containerName string, keep int) (int, error) { return 0, nil }
func (f *fakeDataBackup) DumpPostgreSQL(ctx context.Context, containerID, containerName, backupID, pgUser string) error {
	return nil
}
func (f *fakeDataBackup) RestorePostgreSQL(ctx context.Context, containerID, containerName, backupID, pgUser, backupPGVersion, currentPGVersion string) (bool, error) {
	return true, nil
}

type fakeInspector struct {
	running bool
	digest  string
}

func (f *fakeInspector) Inspect(ctx context.Context, id string) (dockercontainer.InspectResponse, error) {
	resp := dockercontainer.InspectResponse{}
	resp.State = &dockercontainer.State{Running: f.running, Status: "exited"}
	if f.running {
		resp.State.Status = "running"
	}
	resp.Config = &dockercontainer.Config{Env: []string{"POSTGRES_USER=app"}}
	resp.ID = "abc123"
	return resp, nil
}
func (f *fakeInspector) ImageDigest(ctx context.Context, imageRef string) (string, error) {
	return f.digest, nil
}

type fakeScanQueue struct{ enqueued []string }

func (f *fakeScanQueue) Enqueue(containerName string, updateID int64) (*model.PendingScanJob, error) {
	f.enqueued = append(f.enqueued, containerName)
	return &model.PendingScanJob{}, nil
}

type fakePublisher struct{ events []events.Event }

func (f *fakePublisher) Publish(e events.Event) { f.events = append(f.events, e) }

type fakeNotifier struct{ events []notify.Event }

func (f *fakeNotifier) Notify(ctx context.Context, e notify.Event) bool {
	f.events = append(f.events, e)
	return true
}

func writeTestCompose(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "docker-compose.yml")
	content := "services:\n  web:\n    image: nginx:1.25.3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(t *testing.T, c *fakeCompose, db *fakeDataBackup, insp *fakeInspector) (*Engine, *fakeStore, string) {
	t.Helper()
	dir := t.TempDir()
	composePath := writeTestCompose(t, dir)
	backupDir := filepath.Join(dir, "backups")

	st := newFakeStore()
	return &Engine{
		Store:           st,
		Compose:         c,
		DataBackup:      db,
		Docker:          insp,
		ScanQueue:       &fakeScanQueue{},
		Events:          &fakePublisher{},
		Notify:          &fakeNotifier{},
		Log:             logging.New(false),
		BackupDir:       backupDir,
		ComposeBase:     dir,
		HostComposeBase: dir,
		HTTPClient:      http.DefaultClient,
	}, st, composePath
}

func seedContainerAndUpdate(st *fakeStore, composePath string) (*model.Container, *model.Update) {
	c := &model.Container{ID: 1, Name: "web", Image: "nginx", CurrentTag: "1.25.3", ComposeFile: composePath, ComposeProject: "myapp", ServiceName: "web"}
	st.containers[c.ID] = c
	u := &model.Update{ID: 1, ContainerID: c.ID, FromTag: "1.25.3", ToTag: "1.26.0", Status: model.UpdateStatusApproved, MaxRetries: 3}
	st.updates[u.ID] = u
	return c, u
}

func TestApplySucceedsAndCommits(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{BackupID: "bkp1", Status: "success"}}
	insp := &fakeInspector{running: true, digest: "sha256:abc"}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)

	outcome, err := e.Apply(context.Background(), u, "manual")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != model.UpdateStatusApplied {
		t.Errorf("status = %s, want applied", outcome.Status)
	}
	if c.CurrentTag != "1.26.0" {
		t.Errorf("CurrentTag = %s, want 1.26.0", c.CurrentTag)
	}
	if compose.upCalls != 1 || compose.pullCalls != 1 {
		t.Errorf("upCalls=%d pullCalls=%d, want 1 each", compose.upCalls, compose.pullCalls)
	}
	h := st.history[outcome.HistoryID]
	if h.Status != model.HistorySuccess || !h.CanRollback {
		t.Errorf("history = %+v", h)
	}
}

func TestApplyRejectsUnapprovedUpdate(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{Status: "skipped"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	_, u := seedContainerAndUpdate(st, composePath)
	u.Status = model.UpdateStatusPending

	if _, err := e.Apply(context.Background(), u, "manual"); err == nil {
		t.Error("expected error for a non-approved update")
	}
}

func TestApplyRejectsWhenAlreadyInProgress(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{Status: "skipped"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)
	st.inProgress[c.ID] = &model.UpdateHistory{ID: 99, ContainerID: c.ID, Status: model.HistoryInProgress}

	if _, err := e.Apply(context.Background(), u, "manual"); err == nil {
		t.Error("expected error when an apply is already in progress")
	}
}

func TestApplySchedulesRetryOnComposeUpFailure(t *testing.T) {
	compose := &fakeCompose{upErr: context.DeadlineExceeded}
	db := &fakeDataBackup{result: databackup.Result{Status: "success", BackupID: "bkp1"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	_, u := seedContainerAndUpdate(st, composePath)

	outcome, err := e.Apply(context.Background(), u, "auto")
	if err == nil {
		t.Fatal("expected error")
	}
	if outcome.Status != model.UpdateStatusPendingRetry {
		t.Errorf("status = %s, want pending_retry", outcome.Status)
	}
	if u.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", u.RetryCount)
	}
	if u.NextRetryAt.Sub(time.Now()) < 4*time.Minute {
		t.Errorf("NextRetryAt too soon: %v", u.NextRetryAt)
	}
}

func TestApplyRollsBackAfterRetriesExhausted(t *testing.T) {
	// The apply's `up` fails; the rollback's own `up` succeeds.
	compose := &fakeCompose{upErr: context.DeadlineExceeded, upFailCalls: 1}
	db := &fakeDataBackup{result: databackup.Result{Status: "success", BackupID: "bkp1"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)
	u.RetryCount = 2 // one more failure exhausts the default of 3

	outcome, err := e.Apply(context.Background(), u, "auto")
	if err == nil {
		t.Fatal("expected error")
	}
	if outcome.Status != model.UpdateStatusRolledBack {
		t.Errorf("status = %s, want rolled_back", outcome.Status)
	}
	if c.CurrentTag != u.FromTag {
		t.Errorf("CurrentTag = %s, want rolled back to %s", c.CurrentTag, u.FromTag)
	}
}

func TestCheckHealthPrefersHTTPWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := &Engine{Docker: &fakeInspector{running: false}, HTTPClient: http.DefaultClient}
	c := &model.Container{HealthCheckURL: srv.URL, HealthCheckMethod: model.HealthCheckAuto}

	res := e.checkHealth(context.Background(), c, "web")
	if !res.Healthy || res.Fallback {
		t.Errorf("got %+v, want HTTP success without fallback", res)
	}
}

func TestCheckHealthFallsBackToDockerInspect(t *testing.T) {
	e := &Engine{Docker: &fakeInspector{running: true}, HTTPClient: http.DefaultClient}
	c := &model.Container{}

	res := e.checkHealth(context.Background(), c, "web")
	if !res.Healthy || !res.Fallback {
		t.Errorf("got %+v, want docker-inspect fallback success", res)
	}
}
