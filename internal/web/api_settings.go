package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

// sensitiveSettingKeys marks keys whose GET value is masked, leaving only
// enough of the prefix/suffix to confirm the right value is configured
// without ever round-tripping the secret itself back to the browser.
var sensitiveSettingKeys = []string{
	"TOKEN", "KEY", "SECRET", "PASSWORD", "_AUTH",
}

func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, suffix := range sensitiveSettingKeys {
		if strings.Contains(upper, suffix) {
			return true
		}
	}
	return false
}

// maskValue preserves the first/last couple characters so an operator can
// still tell which credential is configured, masking everything between.
func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + strings.Repeat("*", len(v)-6) + v[len(v)-3:]
}

func maskedSettings(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if isSensitiveKey(k) {
			out[k] = maskValue(v)
		} else {
			out[k] = v
		}
	}
	return out
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.deps.Settings.AllSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, maskedSettings(values))
}

func (s *Server) getSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := s.deps.Settings.GetSetting(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if isSensitiveKey(key) {
		v = maskValue(v)
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": v})
}

func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.deps.Settings.SetSetting(key, body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if key == "check_schedule" && s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.Reload("update_check", body.Value); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) batchSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for k, v := range body {
		if err := s.deps.Settings.SetSetting(k, v); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) resetSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, k := range body.Keys {
		if err := s.deps.Settings.DeleteSetting(k); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// testSetting handles POST /settings/test/{provider}, covering both
// registry/Docker/VulnForge connectivity checks and notification channel
// test sends — whichever the configured notifyTester recognizes.
func (s *Server) testSetting(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if s.deps.Notify == nil {
		writeError(w, http.StatusNotImplemented, "no tester configured for "+provider)
		return
	}
	var settings json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&settings)

	ok, message, err := s.deps.Notify.Test(r.Context(), provider, settings)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": ok, "message": message})
}
