package vulnforge

import (
	"context"
	"time"

	"github.com/homelabforge/tidewatch/internal/model"
)

const (
	MaxTriggerAttempts = 5
	DiscoveryTriggerAtAttempt = 3
	DefaultMaxPolls = 12
	triggerBackoffBase = 15 * time.Second
	triggerBackoffCap = 5 * time.Minute
)

// jobStore is the subset of *store.Store the worker needs, factored out so
// tests can supply an in-memory fake instead of a real bolt database.
type jobStore interface {
	SaveScanJob(j *model.PendingScanJob) error
	GetUpdate(id int64) (*model.Update, error)
	SaveUpdate(u *model.Update) error
	GetContainer(id int64) (*model.Container, error)
	GetContainerByName(name string) (*model.Container, error)
	ListHistoryByContainer(containerID int64) ([]*model.UpdateHistory, error)
	SaveHistory(h *model.UpdateHistory) error
}

// Clock lets tests control "now" without sleeping.
type Clock func() time.Time

// Worker drives PendingScanJob through pending -> triggered -> polling ->
// completed|failed.
type Worker struct {
	Client Client
	Store jobStore
	Now Clock
}

// NewWorker builds a Worker using the real wall clock.
func NewWorker(client Client, store jobStore) *Worker {
	return &Worker{Client: client, Store: store, Now: time.Now}
}

// Enqueue creates a new PendingScanJob for a just-applied update.
func (w *Worker) Enqueue(containerName string, updateID int64) (*model.PendingScanJob, error) {
	job := &model.PendingScanJob{
		ContainerName: containerName,
		UpdateID: updateID,
		Status: model.ScanJobPending,
		MaxPolls: DefaultMaxPolls,
	}
	if err := w.Store.SaveScanJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// nextTriggerBackoff computes the delay before the next trigger attempt:
// exponential from triggerBackoffBase, capped at triggerBackoffCap.
func nextTriggerBackoff(attempt int) time.Duration {
	d := triggerBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= triggerBackoffCap {
			return triggerBackoffCap
		}
	}
	return d
}

// ReadyForTriggerRetry reports whether enough time has passed since the
// last trigger attempt to try again.
func ReadyForTriggerRetry(job *model.PendingScanJob, now time.Time) bool {
	if job.LastTriggerAttemptAt.IsZero() {
		return true
	}
	return now.Sub(job.LastTriggerAttemptAt) >= nextTriggerBackoff(job.TriggerAttemptCount)
}

// ReadyForPoll reports whether the job's 15s poll interval has elapsed.
func ReadyForPoll(job *model.PendingScanJob, now time.Time) bool {
	if job.LastPolledAt.IsZero() {
		return true
	}
	return now.Sub(job.LastPolledAt) >= 15*time.Second
}

// Tick advances job by exactly one state transition and persists the
// result. It is safe to call repeatedly on a schedule — jobs not yet ready
// for their next trigger/poll are left untouched.
func (w *Worker) Tick(ctx context.Context, job *model.PendingScanJob) error {
	now := w.Now()
	switch job.Status {
	case model.ScanJobPending:
		return w.tryTrigger(ctx, job, now)
	case model.ScanJobTriggered:
		job.Status = model.ScanJobPolling
		return w.Store.SaveScanJob(job)
	case model.ScanJobPolling:
		return w.poll(ctx, job, now)
	default:
		return nil // terminal, nothing to do
	}
}

func (w *Worker) tryTrigger(ctx context.Context, job *model.PendingScanJob, now time.Time) error {
	if !ReadyForTriggerRetry(job, now) {
		return nil
	}

	update, err := w.Store.GetUpdate(job.UpdateID)
	if err != nil {
		return err
	}
	var q ScanQuery
	if update != nil {
		q = ScanQuery{Tag: update.ToTag, Registry: string(update.Registry)}
		if c, cerr := w.Store.GetContainer(update.ContainerID); cerr == nil && c != nil {
			q.Image = c.Image
		}
	}

	if job.TriggerAttemptCount+1 >= DiscoveryTriggerAtAttempt {
		_ = w.Client.Discover(ctx, job.ContainerName)
	}

	jobID, terr := w.Client.Trigger(ctx, job.ContainerName, q)
	job.TriggerAttemptCount++
	job.LastTriggerAttemptAt = now

	if terr == nil {
		job.VulnForgeJobID = jobID
		job.Status = model.ScanJobTriggered
		job.ErrorMessage = ""
		return w.Store.SaveScanJob(job)
	}

	if job.TriggerAttemptCount >= MaxTriggerAttempts {
		job.Status = model.ScanJobFailed
		job.ErrorMessage = terr.Error()
	}
	return w.Store.SaveScanJob(job)
}

func (w *Worker) poll(ctx context.Context, job *model.PendingScanJob, now time.Time) error {
	if !ReadyForPoll(job, now) {
		return nil
	}

	status, err := w.Client.PollJob(ctx, job.VulnForgeJobID)
	job.PollCount++
	job.LastPolledAt = now

	if err != nil {
		if job.PollsExhausted() {
			job.Status = model.ScanJobFailed
			job.ErrorMessage = err.Error()
		}
		return w.Store.SaveScanJob(job)
	}

	if status.Failed {
		job.Status = model.ScanJobFailed
		job.ErrorMessage = status.ErrorMessage
		return w.Store.SaveScanJob(job)
	}

	if status.Complete {
		job.VulnForgeScanID = status.ScanID
		job.Status = model.ScanJobCompleted
		if err := w.writeResults(job, status); err != nil {
			return err
		}
		return w.Store.SaveScanJob(job)
	}

	if job.PollsExhausted() {
		job.Status = model.ScanJobFailed
		job.ErrorMessage = "poll budget exhausted before completion"
	}
	return w.Store.SaveScanJob(job)
}

// writeResults applies a completed job's CVE delta onto the originating
// Update and its matching UpdateHistory row.
func (w *Worker) writeResults(job *model.PendingScanJob, status JobStatus) error {
	if update, err := w.Store.GetUpdate(job.UpdateID); err == nil && update != nil {
		update.CVEsFixed = status.CVEsFixed
		update.NewVulns = status.NewVulns
		update.VulnDelta = status.VulnDelta
		if err := w.Store.SaveUpdate(update); err != nil {
			return err
		}
	}

	container, err := w.Store.GetContainerByName(job.ContainerName)
	if err != nil || container == nil {
		return nil
	}
	rows, err := w.Store.ListHistoryByContainer(container.ID)
	if err != nil {
		return nil
	}
	for _, h := range rows {
		if h.UpdateID == job.UpdateID {
			h.CVEsFixed = status.CVEsFixed
			return w.Store.SaveHistory(h)
		}
	}
	return nil
}

// ResumeAll implements crash-recovery rule: triggered jobs with
// a known VulnForge job ID resume polling; triggered jobs without one fall
// back to pending (so Trigger is retried); polling jobs stay polling with
// their counters preserved. Terminal jobs are returned unchanged.
func ResumeAll(jobs []*model.PendingScanJob) []*model.PendingScanJob {
	for _, j := range jobs {
		switch j.Status {
		case model.ScanJobTriggered:
			if j.VulnForgeJobID != "" {
				j.Status = model.ScanJobPolling
			} else {
				j.Status = model.ScanJobPending
			}
		}
	}
	return jobs
}
