package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/model"
)

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// listContainers handles GET /containers?skip&limit&policy&name&image.
// Filtering happens in-process over the full list — the store has no
// per-field index, and the expected fleet size (tens to low hundreds of
// containers) makes a linear scan the right tradeoff over adding one.
func (s *Server) listContainers(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Containers.ListContainers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	q := r.URL.Query()
	policy := q.Get("policy")
	name := q.Get("name")
	image := q.Get("image")

	var filtered []*model.Container
	for _, c := range all {
		if policy != "" && string(c.Policy) != policy {
			continue
		}
		if name != "" && c.Name != name {
			continue
		}
		if image != "" && c.Image != image {
			continue
		}
		filtered = append(filtered, c)
	}

	skip := queryInt(q, "skip", 0)
	limit := queryInt(q, "limit", 0)
	if skip > len(filtered) {
		skip = len(filtered)
	}
	filtered = filtered[skip:]
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}

	writeJSON(w, http.StatusOK, filtered)
}

func queryInt(q map[string][]string, key string, def int) int {
	v, ok := q[key]
	if !ok || len(v) == 0 {
		return def
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return def
	}
	return n
}

func (s *Server) getContainer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid container id")
		return
	}
	c, err := s.deps.Containers.GetContainer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "container not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

var validPolicies = map[model.Policy]bool{
	model.PolicyAuto: true, model.PolicyManual: true, model.PolicyDisabled: true,
	model.PolicySecurity: true, model.PolicyPatchOnly: true, model.PolicyMinorAndPatch: true,
}

var validHealthMethods = map[model.HealthCheckMethod]bool{
	model.HealthCheckAuto: true, model.HealthCheckHTTP: true, model.HealthCheckDocker: true,
}

// containerUpdateRequest is the PUT /containers/{id} body: the mutable
// per-container settings an operator can override.
type containerUpdateRequest struct {
	Policy *model.Policy `json:"policy,omitempty"`
	Scope *model.Scope `json:"scope,omitempty"`
	IncludePrereleases *bool `json:"include_prereleases,omitempty"`
	VulnForgeEnabled *bool `json:"vulnforge_enabled,omitempty"`
	HealthCheckURL *string `json:"health_check_url,omitempty"`
	HealthCheckMethod *model.HealthCheckMethod `json:"health_check_method,omitempty"`
	HealthCheckAuth *string `json:"health_check_auth,omitempty"`
	ReleaseSource *string `json:"release_source,omitempty"`
}

func (s *Server) updateContainer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid container id")
		return
	}
	c, err := s.deps.Containers.GetContainer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "container not found")
		return
	}

	var body containerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.Policy != nil {
		if !validPolicies[*body.Policy] {
			writeError(w, http.StatusBadRequest, "invalid policy")
			return
		}
		c.Policy = *body.Policy
	}
	if body.HealthCheckMethod != nil {
		if !validHealthMethods[*body.HealthCheckMethod] {
			writeError(w, http.StatusBadRequest, "invalid health_check_method")
			return
		}
		c.HealthCheckMethod = *body.HealthCheckMethod
	}
	if body.Scope != nil {
		c.Scope = *body.Scope
	}
	if body.IncludePrereleases != nil {
		c.IncludePrereleases = model.TriFrom(*body.IncludePrereleases)
	}
	if body.VulnForgeEnabled != nil {
		c.VulnForgeEnabled = *body.VulnForgeEnabled
	}
	if body.HealthCheckURL != nil {
		c.HealthCheckURL = *body.HealthCheckURL
	}
	if body.HealthCheckAuth != nil {
		c.HealthCheckAuth = *body.HealthCheckAuth
	}
	if body.ReleaseSource != nil {
		c.ReleaseSource = *body.ReleaseSource
	}

	if err := s.deps.Containers.SaveContainer(c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// containerHealthStatus mirrors the GET /containers/{id}/details shape's
// health_status enum.
type containerHealthStatus string

const (
	healthHealthy containerHealthStatus = "healthy"
	healthUnhealthy containerHealthStatus = "unhealthy"
	healthStopped containerHealthStatus = "stopped"
	healthUnknown containerHealthStatus = "unknown"
)

type containerDetails struct {
	Container *model.Container `json:"container"`
	CurrentUpdate *model.Update `json:"current_update,omitempty"`
	History []*model.UpdateHistory `json:"history"`
	HealthStatus containerHealthStatus `json:"health_status"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
}

func (s *Server) containerDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid container id")
		return
	}
	c, err := s.deps.Containers.GetContainer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "container not found")
		return
	}

	history, err := s.deps.Containers.ListHistoryByContainer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(history) > 20 {
		history = history[len(history)-20:]
	}

	var current *model.Update
	if s.deps.Updates != nil {
		updates, err := s.deps.Updates.ListUpdatesByContainer(id)
		if err == nil {
			for _, u := range updates {
				if u.Status.IsActive() {
					current = u
					break
				}
			}
		}
	}

	status := healthUnknown
	if !c.LastChecked.IsZero() {
		status = healthHealthy
	}

	writeJSON(w, http.StatusOK, containerDetails{
		Container: c,
		CurrentUpdate: current,
		History: history,
		HealthStatus: status,
		LastHealthCheck: c.LastChecked,
	})
}

func (s *Server) syncContainers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		writeError(w, http.StatusNotImplemented, "container sync is not configured")
		return
	}
	result, err := s.deps.Syncer(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// restartContainer runs a validated `docker compose restart` with a 30s
// timeout, independent of the apply/rollback state machine.
func (s *Server) restartContainer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid container id")
		return
	}
	c, err := s.deps.Containers.GetContainer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "container not found")
		return
	}
	if s.deps.Docker == nil {
		writeError(w, http.StatusNotImplemented, "restart is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	inv := dockerclient.Invocation{File: c.ComposeFile, Project: c.ComposeProject}
	if _, err := s.deps.Docker.Restart(ctx, inv, c.ServiceName); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}
