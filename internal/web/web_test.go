package web

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homelabforge/tidewatch/internal/applyengine"
	"github.com/homelabforge/tidewatch/internal/checker"
	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/model"
)

// fakeContainerStore implements containerStore in memory for handler tests.
type fakeContainerStore struct {
	containers map[int64]*model.Container
	history map[int64][]*model.UpdateHistory
	saveErr error
}

func newFakeContainerStore() *fakeContainerStore {
	return &fakeContainerStore{
		containers: make(map[int64]*model.Container),
		history: make(map[int64][]*model.UpdateHistory),
	}
}

func (f *fakeContainerStore) ListContainers() ([]*model.Container, error) {
	out := make([]*model.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeContainerStore) GetContainer(id int64) (*model.Container, error) {
	return f.containers[id], nil
}

func (f *fakeContainerStore) SaveContainer(c *model.Container) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.containers[c.ID] = c
	return nil
}

func (f *fakeContainerStore) ListHistoryByContainer(containerID int64) ([]*model.UpdateHistory, error) {
	return f.history[containerID], nil
}

// fakeUpdateStore implements updateStore in memory for handler tests.
type fakeUpdateStore struct {
	updates map[int64]*model.Update
	saveErr error
}

func newFakeUpdateStore() *fakeUpdateStore {
	return &fakeUpdateStore{updates: make(map[int64]*model.Update)}
}

func (f *fakeUpdateStore) ListUpdates() ([]*model.Update, error) {
	out := make([]*model.Update, 0, len(f.updates))
	for _, u := range f.updates {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUpdateStore) ListUpdatesByContainer(containerID int64) ([]*model.Update, error) {
	var out []*model.Update
	for _, u := range f.updates {
		if u.ContainerID == containerID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUpdateStore) ListUpdatesByStatus(status model.UpdateStatus) ([]*model.Update, error) {
	var out []*model.Update
	for _, u := range f.updates {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUpdateStore) GetUpdate(id int64) (*model.Update, error) {
	return f.updates[id], nil
}

func (f *fakeUpdateStore) SaveUpdate(u *model.Update) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.updates[u.ID] = u
	return nil
}

func (f *fakeUpdateStore) DeleteUpdate(id int64) error {
	delete(f.updates, id)
	return nil
}

// fakeSettingsStore implements settingsStore in memory for handler tests.
type fakeSettingsStore struct {
	data map[string]string
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{data: make(map[string]string)}
}

func (f *fakeSettingsStore) GetSetting(key string) (string, error) { return f.data[key], nil }

func (f *fakeSettingsStore) SetSetting(key, value string) error {
	f.data[key] = value
	return nil
}

func (f *fakeSettingsStore) DeleteSetting(key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeSettingsStore) AllSettings() (map[string]string, error) {
	cp := make(map[string]string, len(f.data))
	for k, v := range f.data {
		cp[k] = v
	}
	return cp, nil
}

// fakeComposeRestarter implements composeRestarter for restart-endpoint tests.
type fakeComposeRestarter struct {
	restartErr error
	calledWith dockerclient.Invocation
	services []string
}

func (f *fakeComposeRestarter) Restart(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error) {
	f.calledWith = inv
	f.services = services
	if f.restartErr != nil {
		return "", f.restartErr
	}
	return "restarted", nil
}

// fakeSyncer adapts a closure to the syncer function type for tests.
func fakeSyncer(result checker.SyncResult, err error) syncer {
	return func(ctx context.Context) (checker.SyncResult, error) { return result, err }
}

// fakeUpdateChecker implements updateChecker with a scripted per-call result.
type fakeUpdateChecker struct {
	result checker.Result
}

func (f *fakeUpdateChecker) Check(ctx context.Context, container *model.Container) checker.Result {
	r := f.result
	r.ContainerID = container.ID
	return r
}

// fakeUpdateApplier implements updateApplier for apply-endpoint tests.
type fakeUpdateApplier struct {
	outcome *applyengine.Outcome
	err error
}

func (f *fakeUpdateApplier) Apply(ctx context.Context, update *model.Update, triggeredBy string) (*applyengine.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

// fakeScheduleReloader implements scheduleReloader for settings-reload tests.
type fakeScheduleReloader struct {
	reloadErr error
	lastName, lastSchedule string
}

func (f *fakeScheduleReloader) Reload(name, schedule string) error {
	f.lastName, f.lastSchedule = name, schedule
	return f.reloadErr
}

// fakeNotifyTester implements notifyTester for settings-test-endpoint tests.
type fakeNotifyTester struct {
	ok bool
	message string
	err error
}

func (f *fakeNotifyTester) Test(ctx context.Context, provider string, settings json.RawMessage) (bool, string, error) {
	if f.err != nil {
		return false, "", f.err
	}
	return f.ok, f.message, nil
}

var errBoom = fmt.Errorf("boom")
