package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newSettingsTestServer(ss *fakeSettingsStore) *Server {
	return &Server{deps: Dependencies{Settings: ss}}
}

func TestListSettingsMasksSensitiveKeys(t *testing.T) {
	ss := newFakeSettingsStore()
	ss.data["ntfy_topic"] = "alerts"
	ss.data["ghcr_token"] = "ghp_abcdefghijklmnop"
	srv := newSettingsTestServer(ss)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/settings", nil)
	srv.listSettings(w, r)

	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["ntfy_topic"] != "alerts" {
		t.Fatalf("non-sensitive setting was masked: %q", got["ntfy_topic"])
	}
	if got["ghcr_token"] == "ghp_abcdefghijklmnop" || !strings.Contains(got["ghcr_token"], "*") {
		t.Fatalf("sensitive setting was not masked: %q", got["ghcr_token"])
	}
	if !strings.HasPrefix(got["ghcr_token"], "ghp") || !strings.HasSuffix(got["ghcr_token"], "nop") {
		t.Fatalf("masked value should keep prefix/suffix, got %q", got["ghcr_token"])
	}
}

func TestGetSettingMasksShortSecretCompletely(t *testing.T) {
	ss := newFakeSettingsStore()
	ss.data["api_key"] = "short"
	srv := newSettingsTestServer(ss)

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodGet, "/settings/api_key", nil), "key", "api_key")
	srv.getSetting(w, r)

	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["value"] != "*****" {
		t.Fatalf("short secret should be fully masked, got %q", got["value"])
	}
}

func TestPutSettingStoresValue(t *testing.T) {
	ss := newFakeSettingsStore()
	srv := newSettingsTestServer(ss)

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPut, "/settings/check_interval", strings.NewReader(`{"value":"6h"}`)), "key", "check_interval")
	srv.putSetting(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ss.data["check_interval"] != "6h" {
		t.Fatalf("setting not stored, got %q", ss.data["check_interval"])
	}
}

func TestPutSettingReloadsSchedulerForCheckSchedule(t *testing.T) {
	ss := newFakeSettingsStore()
	srv := newSettingsTestServer(ss)
	reloader := &fakeScheduleReloader{}
	srv.deps.Scheduler = reloader

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPut, "/settings/check_schedule", strings.NewReader(`{"value":"0 */4 * * *"}`)), "key", "check_schedule")
	srv.putSetting(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if reloader.lastName != "update_check" || reloader.lastSchedule != "0 */4 * * *" {
		t.Fatalf("scheduler not reloaded correctly: name=%q schedule=%q", reloader.lastName, reloader.lastSchedule)
	}
}

func TestBatchSettingsStoresAllKeys(t *testing.T) {
	ss := newFakeSettingsStore()
	srv := newSettingsTestServer(ss)

	body := `{"a":"1","b":"2"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/settings/batch", strings.NewReader(body))
	srv.batchSettings(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ss.data["a"] != "1" || ss.data["b"] != "2" {
		t.Fatalf("batch settings not stored: %+v", ss.data)
	}
}

func TestResetSettingsDeletesListedKeys(t *testing.T) {
	ss := newFakeSettingsStore()
	ss.data["a"] = "1"
	ss.data["b"] = "2"
	srv := newSettingsTestServer(ss)

	body := `{"keys":["a"]}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/settings/reset", strings.NewReader(body))
	srv.resetSettings(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, ok := ss.data["a"]; ok {
		t.Fatalf("key a should have been deleted")
	}
	if ss.data["b"] != "2" {
		t.Fatalf("key b should have been left alone")
	}
}

func TestTestSettingNotImplementedWithoutTester(t *testing.T) {
	srv := newSettingsTestServer(newFakeSettingsStore())

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/settings/test/ntfy", strings.NewReader("{}")), "provider", "ntfy")
	srv.testSetting(w, r)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotImplemented)
	}
}

func TestTestSettingReturnsProviderResult(t *testing.T) {
	srv := newSettingsTestServer(newFakeSettingsStore())
	srv.deps.Notify = &fakeNotifyTester{ok: true, message: "connected"}

	w := httptest.NewRecorder()
	r := withPathValue(httptest.NewRequest(http.MethodPost, "/settings/test/ntfy", strings.NewReader(`{"topic":"x"}`)), "provider", "ntfy")
	srv.testSetting(w, r)

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["success"] != true || got["message"] != "connected" {
		t.Fatalf("got %+v, want success=true message=connected", got)
	}
}
