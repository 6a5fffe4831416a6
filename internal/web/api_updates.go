package web

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/homelabforge/tidewatch/internal/model"
)

// listUpdates handles GET /updates?status&container_id&skip&limit, sorted
// by created_at desc.
func (s *Server) listUpdates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var all []*model.Update
	var err error
	switch {
	case q.Get("container_id") != "":
		id := queryInt(q, "container_id", 0)
		all, err = s.deps.Updates.ListUpdatesByContainer(int64(id))
	case q.Get("status") != "":
		all, err = s.deps.Updates.ListUpdatesByStatus(model.UpdateStatus(q.Get("status")))
	default:
		all, err = s.deps.Updates.ListUpdates()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	skip := queryInt(q, "skip", 0)
	limit := queryInt(q, "limit", 0)
	if skip > len(all) {
		skip = len(all)
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	writeJSON(w, http.StatusOK, all)
}

// checkUpdateSummary is the response shape for both the global and
// per-container POST /updates/check[/{container_id}] forms.
type checkUpdateSummary struct {
	Checked int `json:"checked"`
	UpdatesFound int `json:"updates_found"`
	Errors int `json:"errors"`
	Total int `json:"total"`
}

func (s *Server) checkUpdates(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		writeError(w, http.StatusNotImplemented, "update checking is not configured")
		return
	}

	var containers []*model.Container
	if idStr := r.PathValue("container_id"); idStr != "" {
		id := queryInt(map[string][]string{"id": {idStr}}, "id", 0)
		c, err := s.deps.Containers.GetContainer(int64(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "container not found")
			return
		}
		containers = []*model.Container{c}
	} else {
		all, err := s.deps.Containers.ListContainers()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		containers = all
	}

	summary := checkUpdateSummary{Total: len(containers)}
	for _, c := range containers {
		summary.Checked++
		res := s.deps.Checker.Check(r.Context(), c)
		if res.Err != nil {
			summary.Errors++
			continue
		}
		if res.HasUpdate {
			summary.UpdatesFound++
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) approveUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid update id")
		return
	}
	u, err := s.deps.Updates.GetUpdate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "update not found")
		return
	}
	if u.Status != model.UpdateStatusPending {
		writeError(w, http.StatusBadRequest, "update is not pending approval")
		return
	}

	var body struct {
		ApprovedBy string `json:"approved_by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	u.Status = model.UpdateStatusApproved
	u.ApprovedBy = body.ApprovedBy
	u.ApprovedAt = time.Now()
	if err := s.deps.Updates.SaveUpdate(u); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) rejectUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid update id")
		return
	}
	u, err := s.deps.Updates.GetUpdate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "update not found")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	u.Status = model.UpdateStatusRejected
	u.RejectionReason = body.Reason
	if err := s.deps.Updates.SaveUpdate(u); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	c, err := s.deps.Containers.GetContainer(u.ContainerID)
	if err == nil && c != nil {
		c.UpdateAvailable = false
		c.LatestTag = ""
		_ = s.deps.Containers.SaveContainer(c)
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) applyUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid update id")
		return
	}
	u, err := s.deps.Updates.GetUpdate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "update not found")
		return
	}
	if u.Status != model.UpdateStatusApproved && u.Status != model.UpdateStatusPendingRetry {
		writeError(w, http.StatusBadRequest, "update is not approved")
		return
	}
	if s.deps.Applier == nil {
		writeError(w, http.StatusNotImplemented, "apply is not configured")
		return
	}

	var body struct {
		TriggeredBy string `json:"triggered_by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.TriggeredBy == "" {
		body.TriggeredBy = "api"
	}

	outcome, err := s.deps.Applier.Apply(r.Context(), u, body.TriggeredBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type batchUpdateRequest struct {
	UpdateIDs []int64 `json:"update_ids"`
	Reason string `json:"reason,omitempty"`
}

type batchUpdateResult struct {
	ApprovedCount int `json:"approved_count,omitempty"`
	RejectedCount int `json:"rejected_count,omitempty"`
	FailedCount int `json:"failed_count"`
	Errors []string `json:"errors,omitempty"`
}

// batchUpdates returns a handler for POST /updates/batch/{approve|reject},
// parameterized on which transition to apply to each ID in the request.
func (s *Server) batchUpdates(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body batchUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result := batchUpdateResult{}
		for _, id := range body.UpdateIDs {
			u, err := s.deps.Updates.GetUpdate(id)
			if err != nil || u == nil {
				result.FailedCount++
				continue
			}
			if approve {
				if u.Status != model.UpdateStatusPending {
					result.FailedCount++
					continue
				}
				u.Status = model.UpdateStatusApproved
				u.ApprovedAt = time.Now()
			} else {
				u.Status = model.UpdateStatusRejected
				u.RejectionReason = body.Reason
			}
			if err := s.deps.Updates.SaveUpdate(u); err != nil {
				result.FailedCount++
				continue
			}
			if approve {
				result.ApprovedCount++
			} else {
				result.RejectedCount++
			}
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) deleteUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid update id")
		return
	}
	if err := s.deps.Updates.DeleteUpdate(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

