package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/homelabforge/tidewatch/internal/applyengine"
	"github.com/homelabforge/tidewatch/internal/checker"
	"github.com/homelabforge/tidewatch/internal/model"
)

func TestListUpdatesFiltersByStatus(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, Status: model.UpdateStatusPending}
	us.updates[2] = &model.Update{ID: 2, Status: model.UpdateStatusApplied}
	srv := newTestServer(newFakeContainerStore(), us)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/updates?status=pending", nil)
	srv.listUpdates(w, r)

	var got []*model.Update
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("got %+v, want only pending update 1", got)
	}
}

func TestCheckUpdatesAggregatesSummary(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1}
	cs.containers[2] = &model.Container{ID: 2}
	srv := newTestServer(cs, newFakeUpdateStore())
	srv.deps.Checker = &fakeUpdateChecker{result: checker.Result{HasUpdate: true}}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/updates/check", nil)
	srv.checkUpdates(w, r)

	var got checkUpdateSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 2 || got.Checked != 2 || got.UpdatesFound != 2 {
		t.Fatalf("got %+v, want Total=2 Checked=2 UpdatesFound=2", got)
	}
}

func TestCheckUpdatesNotImplementedWithoutChecker(t *testing.T) {
	srv := newTestServer(newFakeContainerStore(), newFakeUpdateStore())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/updates/check", nil)
	srv.checkUpdates(w, r)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotImplemented)
	}
}

func TestApproveUpdateRequiresPendingStatus(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, Status: model.UpdateStatusApplied}
	srv := newTestServer(newFakeContainerStore(), us)

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/updates/1/approve", strings.NewReader("{}")), "id", "1")
	srv.approveUpdate(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestApproveUpdateSetsApprovedFields(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, Status: model.UpdateStatusPending}
	srv := newTestServer(newFakeContainerStore(), us)

	body := `{"approved_by":"alice"}`
	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/updates/1/approve", strings.NewReader(body)), "id", "1")
	srv.approveUpdate(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	got := us.updates[1]
	if got.Status != model.UpdateStatusApproved || got.ApprovedBy != "alice" || got.ApprovedAt.IsZero() {
		t.Fatalf("unexpected update state: %+v", got)
	}
}

func TestRejectUpdateClearsContainerUpdateAvailable(t *testing.T) {
	cs := newFakeContainerStore()
	cs.containers[1] = &model.Container{ID: 1, UpdateAvailable: true, LatestTag: "1.2.0"}
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, ContainerID: 1, Status: model.UpdateStatusPending}
	srv := newTestServer(cs, us)

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/updates/1/reject", strings.NewReader(`{"reason":"not now"}`)), "id", "1")
	srv.rejectUpdate(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if us.updates[1].Status != model.UpdateStatusRejected || us.updates[1].RejectionReason != "not now" {
		t.Fatalf("unexpected update state: %+v", us.updates[1])
	}
	if cs.containers[1].UpdateAvailable || cs.containers[1].LatestTag != "" {
		t.Fatalf("expected container update flags cleared, got %+v", cs.containers[1])
	}
}

func TestApplyUpdateRequiresApprovedStatus(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, Status: model.UpdateStatusPending}
	srv := newTestServer(newFakeContainerStore(), us)
	srv.deps.Applier = &fakeUpdateApplier{}

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/updates/1/apply", strings.NewReader("{}")), "id", "1")
	srv.applyUpdate(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestApplyUpdateReturnsOutcome(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, Status: model.UpdateStatusApproved}
	srv := newTestServer(newFakeContainerStore(), us)
	srv.deps.Applier = &fakeUpdateApplier{outcome: &applyengine.Outcome{}}

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/updates/1/apply", strings.NewReader("{}")), "id", "1")
	srv.applyUpdate(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestBatchUpdatesApprove(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1, Status: model.UpdateStatusPending}
	us.updates[2] = &model.Update{ID: 2, Status: model.UpdateStatusApplied}
	srv := newTestServer(newFakeContainerStore(), us)

	body := `{"update_ids":[1,2,3]}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/updates/batch/approve", strings.NewReader(body))
	srv.batchUpdates(true)(w, r)

	var got batchUpdateResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ApprovedCount != 1 || got.FailedCount != 2 {
		t.Fatalf("got %+v, want ApprovedCount=1 FailedCount=2 (id 2 not pending, id 3 missing)", got)
	}
}

func TestDeleteUpdate(t *testing.T) {
	us := newFakeUpdateStore()
	us.updates[1] = &model.Update{ID: 1}
	srv := newTestServer(newFakeContainerStore(), us)

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodDelete, "/updates/1", nil), "id", "1")
	srv.deleteUpdate(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if _, ok := us.updates[1]; ok {
		t.Fatalf("expected update 1 to be deleted")
	}
}
