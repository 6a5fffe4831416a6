package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/homelabforge/tidewatch/internal/checker"
	"github.com/homelabforge/tidewatch/internal/model"
)

func newTestServer(containers *fakeContainerStore, updates *fakeUpdateStore) *Server {
	return &Server{
		deps: Dependencies{
			Containers: containers,
			Updates: updates,
		},
	}
}

func withPathValue(r *http.Request, key, value string) *http.Request {
	r.SetPathValue(key, value)
	return r
}

func TestListContainersFiltersByPolicy(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1, Name: "a", Policy: model.PolicyAuto}
	cs.containers[2] = &model.Container{ID: 2, Name: "b", Policy: model.PolicyManual}
	srv := newTestServer(cs, newFakeUpdateStore())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/containers?policy=auto", nil)
	srv.listContainers(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []*model.Container
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("got %+v, want only container a", got)
	}
}

func TestGetContainerNotFound(t *testing.T) {
	srv := newTestServer(newFakeContainerStore(), newFakeUpdateStore())

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodGet, "/containers/99", nil), "id", "99")
	srv.getContainer(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateContainerRejectsInvalidPolicy(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1, Policy: model.PolicyAuto}
	srv := newTestServer(cs, newFakeUpdateStore())

	body := `{"policy":"bogus"}`
	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPut, "/containers/1", strings.NewReader(body)), "id", "1")
	srv.updateContainer(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if cs.containers[1].Policy != model.PolicyAuto {
		t.Fatalf("policy was mutated despite validation failure: %v", cs.containers[1].Policy)
	}
}

func TestUpdateContainerAppliesPartialFields(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1, Policy: model.PolicyAuto, Scope: model.ScopePatch}
	srv := newTestServer(cs, newFakeUpdateStore())

	body := `{"scope":"major","vulnforge_enabled":true}`
	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPut, "/containers/1", strings.NewReader(body)), "id", "1")
	srv.updateContainer(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	got := cs.containers[1]
	if got.Scope != model.ScopeMajor || !got.VulnForgeEnabled || got.Policy != model.PolicyAuto {
		t.Fatalf("unexpected container state: %+v", got)
	}
}

func TestContainerDetailsIncludesActiveUpdate(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1, Name: "a"}
	us := newFakeUpdateStore()
	us.updates[10] = &model.Update{ID: 10, ContainerID: 1, Status: model.UpdateStatusPending}
	srv := newTestServer(cs, us)

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodGet, "/containers/1/details", nil), "id", "1")
	srv.containerDetails(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got containerDetails
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CurrentUpdate == nil || got.CurrentUpdate.ID != 10 {
		t.Fatalf("expected active update 10 surfaced, got %+v", got.CurrentUpdate)
	}
}

func TestSyncContainersNotImplementedWithoutSyncer(t *testing.T) {
	srv := newTestServer(newFakeContainerStore(), newFakeUpdateStore())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/containers/sync", nil)
	srv.syncContainers(w, r)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotImplemented)
	}
}

func TestSyncContainersReturnsResult(t *testing.T) {
	srv := newTestServer(newFakeContainerStore(), newFakeUpdateStore())
	srv.deps.Syncer = fakeSyncer(checker.SyncResult{Added: 2, Total: 5}, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/containers/sync", nil)
	srv.syncContainers(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got checker.SyncResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Added != 2 || got.Total != 5 {
		t.Fatalf("got %+v, want Added=2 Total=5", got)
	}
}

func TestRestartContainerNotFound(t *testing.T) {
	srv := newTestServer(newFakeContainerStore(), newFakeUpdateStore())
	srv.deps.Docker = &fakeComposeRestarter{}

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/containers/1/restart", nil), "id", "1")
	srv.restartContainer(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRestartContainerInvokesCompose(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1, ComposeFile: "/srv/compose.yml", ComposeProject: "myapp", ServiceName: "web"}
	srv := newTestServer(cs, newFakeUpdateStore())
	restarter := &fakeComposeRestarter{}
	srv.deps.Docker = restarter

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/containers/1/restart", nil), "id", "1")
	srv.restartContainer(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if restarter.calledWith.Project != "myapp" || len(restarter.services) != 1 || restarter.services[0] != "web" {
		t.Fatalf("restart called with unexpected args: %+v %v", restarter.calledWith, restarter.services)
	}
}
