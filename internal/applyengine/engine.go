// Package applyengine drives one Update from an approved row to a running
// container on the new tag: back up the compose file, best-effort back up
// the container's data, rewrite the compose file, pull and recreate the
// service, health-check it, then commit or fail into the retry/rollback
// path. The step numbering follows the same shape as a classic
// snapshot-mutate-pull-recreate-validate container updater, generalized from
// create/start a whole container to rewrite-and-recreate one compose
// service, and from an in-memory snapshot to a compose-file backup plus an
// independent best-effort data backup.
package applyengine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/homelabforge/tidewatch/internal/compose"
	"github.com/homelabforge/tidewatch/internal/databackup"
	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/events"
	"github.com/homelabforge/tidewatch/internal/logging"
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/notify"

	dockercontainer "github.com/moby/moby/api/types/container"
)

const defaultMaxRetries = 3

// applyStore is the subset of *store.Store the engine needs.
type applyStore interface {
	GetContainer(id int64) (*model.Container, error)
	SaveContainer(c *model.Container) error
	SaveUpdate(u *model.Update) error
	SaveHistory(h *model.UpdateHistory) error
	InProgressHistoryFor(containerID int64) (*model.UpdateHistory, error)
}

// composeRunner matches *dockerclient.Compose's subprocess methods.
type composeRunner interface {
	Pull(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error)
	Stop(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error)
	Up(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error)
}

// dataBackupper matches *databackup.Service's methods the engine calls.
type dataBackupper interface {
	Backup(ctx context.Context, containerName string, mounts []databackup.Mount, image string, timeout time.Duration) databackup.Result
	Restore(ctx context.Context, containerName, backupID string) databackup.RestoreResult
	PruneBackups(containerName string, keep int) (int, error)
	DumpPostgreSQL(ctx context.Context, containerID, containerName, backupID, pgUser string) error
	RestorePostgreSQL(ctx context.Context, containerID, containerName, backupID, pgUser, backupPGVersion, currentPGVersion string) (bool, error)
}

// dockerInspector matches *dockerclient.Client's inspection methods.
type dockerInspector interface {
	Inspect(ctx context.Context, id string) (dockercontainer.InspectResponse, error)
	ImageDigest(ctx context.Context, imageRef string) (string, error)
}

// scanEnqueuer matches *vulnforge.Worker's Enqueue.
type scanEnqueuer interface {
	Enqueue(containerName string, updateID int64) (*model.PendingScanJob, error)
}

type publisher interface{ Publish(events.Event) }
type notifier interface {
	Notify(ctx context.Context, event notify.Event) bool
}

// Clock lets tests control "now" without sleeping.
type Clock func() time.Time

// Engine applies one Update at a time for a container. Callers (the
// scheduler's auto-apply job, or the manual "apply" web endpoint) serialize
// concurrent applies per container via InProgressHistoryFor.
type Engine struct {
	Store           applyStore
	Compose         composeRunner
	DataBackup      dataBackupper
	Docker          dockerInspector
	ScanQueue       scanEnqueuer
	Events          publisher
	Notify          notifier
	Log             *logging.Logger
	Now             Clock
	HTTPClient      *http.Client
	ComposeBase     string
	HostComposeBase string
	BackupDir       string
	KeepDataBackups int
}

// Outcome summarizes the result of one Apply call.
type Outcome struct {
	Status    model.UpdateStatus
	HistoryID int64
	Message   string
}

// Apply drives update through the full state machine. update must already
// be loaded with Status == approved (or pending_retry, for a scheduled
// retry); the caller is responsible for that selection.
func (e *Engine) Apply(ctx context.Context, update *model.Update, triggeredBy string) (*Outcome, error) {
	if update.Status != model.UpdateStatusApproved && update.Status != model.UpdateStatusPendingRetry {
		return nil, fmt.Errorf("applyengine: update %d is not approved", update.ID)
	}

	container, err := e.Store.GetContainer(update.ContainerID)
	if err != nil {
		return nil, err
	}
	if container == nil {
		return nil, fmt.Errorf("applyengine: container %d not found", update.ContainerID)
	}

	if inProgress, err := e.Store.InProgressHistoryFor(container.ID); err != nil {
		return nil, err
	} else if inProgress != nil {
		return nil, fmt.Errorf("applyengine: an apply is already in progress for %s", container.Name)
	}

	if container.ComposeProject == "" {
		if info, ierr := e.Docker.Inspect(ctx, container.Name); ierr == nil && info.Config != nil {
			container.ComposeProject = info.Config.Labels["com.docker.compose.project"]
		}
	}

	now := e.now()
	history := &model.UpdateHistory{
		ContainerID: container.ID,
		UpdateID:    update.ID,
		FromTag:     update.FromTag,
		ToTag:       update.ToTag,
		UpdateType:  updateTypeFor(triggeredBy),
		Status:      model.HistoryInProgress,
		StartedAt:   now,
		TriggeredBy: triggeredBy,
	}
	if err := e.Store.SaveHistory(history); err != nil {
		return nil, err
	}
	e.progress(container, "starting", 0, "", "apply started")

	inv := e.invocation(container)

	backupPath, err := compose.Backup(inv.File, e.BackupDir, now)
	if err != nil {
		return e.fail(ctx, container, update, history, fmt.Errorf("backup compose file: %w", err))
	}
	history.BackupPath = backupPath
	e.Store.SaveHistory(history)
	e.progress(container, "backup_compose", 0.1, "", "compose file backed up")

	dbResult := e.backupData(ctx, container)
	history.DataBackupID = dbResult.BackupID
	history.DataBackupStatus = model.DataBackupStatus(dbResult.Status)
	e.Store.SaveHistory(history)
	e.progress(container, "data_backup", 0.2, "", "data backup: "+dbResult.Status)

	svc := serviceName(container)
	if err := compose.SetServiceTag(inv.File, svc, update.ToTag); err != nil {
		return e.fail(ctx, container, update, history, fmt.Errorf("rewrite compose file: %w", err))
	}
	e.progress(container, "compose_mutated", 0.3, "", "compose file rewritten to "+update.ToTag)

	pullCtx, cancel := context.WithTimeout(ctx, 20*time.Minute)
	_, err = e.Compose.Pull(pullCtx, inv, svc)
	cancel()
	if err != nil {
		return e.fail(ctx, container, update, history, fmt.Errorf("compose pull: %w", err))
	}
	e.progress(container, "pulling", 0.5, "", "image pulled")

	deployCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	e.Compose.Stop(deployCtx, inv, svc) // best-effort; the service may not be running
	_, err = e.Compose.Up(deployCtx, inv, svc)
	cancel()
	if err != nil {
		return e.fail(ctx, container, update, history, fmt.Errorf("compose up: %w", err))
	}
	e.progress(container, "deploying", 0.7, "", "service recreated")

	healthCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
	health := e.checkHealth(healthCtx, container, container.Name)
	cancel()
	e.progress(container, "health_check", 0.85, "", health.Message)
	if !health.Healthy {
		return e.fail(ctx, container, update, history, fmt.Errorf("health check failed"))
	}

	return e.commit(ctx, container, update, history, dbResult)
}

func (e *Engine) commit(ctx context.Context, c *model.Container, u *model.Update, h *model.UpdateHistory, dbResult databackup.Result) (*Outcome, error) {
	now := e.now()

	c.CurrentTag = u.ToTag
	if u.UpdateKind == model.UpdateKindDigest || strings.EqualFold(u.ToTag, "latest") {
		if digest, err := e.Docker.ImageDigest(ctx, c.Image+":"+u.ToTag); err == nil {
			c.CurrentDigest = digest
		}
	}
	c.UpdateAvailable = false
	c.LatestTag = ""
	c.LastUpdated = now
	if err := e.Store.SaveContainer(c); err != nil {
		e.Log.Warn("save container after apply failed", "container", c.Name, "error", err)
	}

	h.Status = model.HistorySuccess
	h.CanRollback = true
	h.CompletedAt = now
	if err := e.Store.SaveHistory(h); err != nil {
		e.Log.Warn("save history after apply failed", "container", c.Name, "error", err)
	}

	u.Status = model.UpdateStatusApplied
	u.Version++
	if err := e.Store.SaveUpdate(u); err != nil {
		e.Log.Warn("save update after apply failed", "container", c.Name, "error", err)
	}

	e.notify(ctx, c, notify.EventUpdateSucceeded, u)

	if e.ScanQueue != nil {
		if _, err := e.ScanQueue.Enqueue(c.Name, u.ID); err != nil {
			e.Log.Warn("enqueue post-update scan failed", "container", c.Name, "error", err)
		}
	}
	if e.DataBackup != nil && dbResult.Status != "skipped" {
		if _, err := e.DataBackup.PruneBackups(c.Name, e.keepBackups()); err != nil {
			e.Log.Warn("prune data backups failed", "container", c.Name, "error", err)
		}
	}

	e.publish(events.Event{Type: events.TypeUpdateComplete, ContainerID: c.ID, ContainerName: c.Name, Status: "success", Timestamp: now})
	return &Outcome{Status: u.Status, HistoryID: h.ID}, nil
}

// fail implements the single failure-handling point: restore the compose
// file, bump the retry ladder, and either schedule a retry or finalize the
// history row and attempt an automatic rollback.
func (e *Engine) fail(ctx context.Context, c *model.Container, u *model.Update, h *model.UpdateHistory, cause error) (*Outcome, error) {
	e.Log.Error("apply failed", "container", c.Name, "error", cause)

	if h.BackupPath != "" {
		if err := compose.Restore(h.BackupPath, e.invocation(c).File); err != nil {
			e.Log.Warn("restore compose backup failed", "container", c.Name, "error", err)
		}
	}

	u.RetryCount++
	u.LastError = cause.Error()

	if u.RetryCount < maxRetries(u) {
		u.Status = model.UpdateStatusPendingRetry
		u.NextRetryAt = e.now().Add(retryDelay(u.RetryCount, u.BackoffMultiplier))
		e.Store.SaveUpdate(u)

		h.Status = model.HistoryFailed
		h.CompletedAt = e.now()
		h.ErrorMessage = cause.Error()
		e.Store.SaveHistory(h)

		e.notify(ctx, c, notify.EventUpdateFailed, u)
		e.publish(events.Event{Type: events.TypeUpdateComplete, ContainerID: c.ID, ContainerName: c.Name, Status: "failed", Message: cause.Error(), Timestamp: e.now()})
		return &Outcome{Status: u.Status, HistoryID: h.ID, Message: cause.Error()}, cause
	}

	// Retries exhausted: finalize the history row first so the in-progress
	// concurrency guard clears, then attempt a rollback.
	h.Status = model.HistoryFailed
	h.CompletedAt = e.now()
	h.ErrorMessage = cause.Error()
	h.CanRollback = true
	e.Store.SaveHistory(h)

	if rbErr := e.rollback(ctx, c, u, h); rbErr != nil {
		u.Status = model.UpdateStatusFailed
		e.Store.SaveUpdate(u)
		e.notify(ctx, c, notify.EventUpdateFailed, u)
		e.publish(events.Event{Type: events.TypeUpdateComplete, ContainerID: c.ID, ContainerName: c.Name, Status: "failed", Message: rbErr.Error(), Timestamp: e.now()})
		return &Outcome{Status: u.Status, HistoryID: h.ID, Message: rbErr.Error()}, rbErr
	}

	u.Status = model.UpdateStatusRolledBack
	e.Store.SaveUpdate(u)
	return &Outcome{Status: u.Status, HistoryID: h.ID, Message: cause.Error()}, cause
}

func (e *Engine) backupData(ctx context.Context, c *model.Container) databackup.Result {
	if e.DataBackup == nil {
		return databackup.Result{Status: "skipped"}
	}
	info, err := e.Docker.Inspect(ctx, c.Name)
	if err != nil {
		return databackup.Result{Status: "failed", Error: err.Error()}
	}

	backupCtx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()
	result := e.DataBackup.Backup(backupCtx, c.Name, mountsFromInspect(info), c.Image, 300*time.Second)

	if databackup.IsPostgres(c.Image) && result.BackupID != "" && result.Status != "failed" {
		var env []string
		if info.Config != nil {
			env = info.Config.Env
		}
		if err := e.DataBackup.DumpPostgreSQL(backupCtx, info.ID, c.Name, result.BackupID, databackup.PGUserFromEnv(env)); err != nil {
			e.Log.Warn("postgres dump failed", "container", c.Name, "error", err)
		}
	}
	return result
}

func mountsFromInspect(info dockercontainer.InspectResponse) []databackup.Mount {
	out := make([]databackup.Mount, 0, len(info.Mounts))
	for _, m := range info.Mounts {
		out = append(out, databackup.Mount{
			Type:        string(m.Type),
			Source:      m.Source,
			Destination: m.Destination,
			VolumeName:  m.Name,
			ReadOnly:    !m.RW,
		})
	}
	return out
}

func serviceName(c *model.Container) string {
	if c.ServiceName != "" {
		return c.ServiceName
	}
	return c.Name
}

// invocation assumes ComposeBase and HostComposeBase coincide for the
// common single-host deployment (both default to "/compose"); when they
// differ, the translated host path is only valid if that path is also
// reachable from this process's own filesystem, since `docker compose` runs
// as a local subprocess rather than against a remote helper.
func (e *Engine) invocation(c *model.Container) dockerclient.Invocation {
	path := c.ComposeFile
	if translated, err := compose.ToHostPath(c.ComposeFile, e.ComposeBase, e.HostComposeBase); err == nil {
		path = translated
	}
	return dockerclient.Invocation{File: path, Project: c.ComposeProject}
}

func (e *Engine) progress(c *model.Container, phase string, progress float64, status, message string) {
	e.publish(events.Event{
		Type:          events.TypeUpdateProgress,
		ContainerID:   c.ID,
		ContainerName: c.Name,
		Phase:         phase,
		Progress:      progress,
		Status:        status,
		Message:       message,
		Timestamp:     e.now(),
	})
}

func (e *Engine) publish(evt events.Event) {
	if e.Events != nil {
		e.Events.Publish(evt)
	}
}

func (e *Engine) notify(ctx context.Context, c *model.Container, t notify.EventType, u *model.Update) {
	if e.Notify == nil {
		return
	}
	e.Notify.Notify(ctx, notify.Event{
		Type:          t,
		ContainerName: c.Name,
		OldImage:      c.Image + ":" + u.FromTag,
		NewImage:      c.Image + ":" + u.ToTag,
		Error:         u.LastError,
		Timestamp:     e.now(),
	})
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) httpClient() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

func (e *Engine) keepBackups() int {
	if e.KeepDataBackups > 0 {
		return e.KeepDataBackups
	}
	return 3
}

func maxRetries(u *model.Update) int {
	if u.MaxRetries > 0 {
		return u.MaxRetries
	}
	return defaultMaxRetries
}

func updateTypeFor(triggeredBy string) model.UpdateType {
	switch triggeredBy {
	case "auto":
		return model.UpdateTypeAuto
	case "rollback":
		return model.UpdateTypeRollback
	case "dependency_update":
		return model.UpdateTypeDependencyUpdate
	default:
		return model.UpdateTypeManual
	}
}
