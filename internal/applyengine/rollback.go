package applyengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homelabforge/tidewatch/internal/compose"
	"github.com/homelabforge/tidewatch/internal/databackup"
	"github.com/homelabforge/tidewatch/internal/events"
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/notify"
)

var errRollbackDrift = errors.New("applyengine: container tag drifted since the update, refusing to roll back")

// rollback restores the compose file and, if the original data backup
// succeeded, the container's data, then points the container back at
// from_tag. It serves two callers: fail()'s automatic rollback right after
// retries are exhausted (h.Status==failed, the apply never reached commit so
// current_tag never moved off from_tag), and a manual rollback of a past
// successful update (h.Status==success, current_tag should still equal
// to_tag unless a later update already moved it further). The drift guard
// only applies to the latter — there's nothing to drift-check on a rollback
// of an update that never committed.
func (e *Engine) rollback(ctx context.Context, c *model.Container, u *model.Update, h *model.UpdateHistory) error {
	if !h.CanRollback || h.Status == model.HistoryRolledBack {
		return fmt.Errorf("applyengine: history %d is not eligible for rollback", h.ID)
	}
	if h.Status == model.HistorySuccess && c.CurrentTag != h.ToTag {
		return errRollbackDrift
	}

	e.publish(events.Event{Type: events.TypeRollbackStarted, ContainerID: c.ID, ContainerName: c.Name, Timestamp: e.now()})

	inv := e.invocation(c)
	if err := compose.SetServiceTag(inv.File, serviceName(c), h.FromTag); err != nil {
		return fmt.Errorf("rewrite compose file to %s: %w", h.FromTag, err)
	}

	if h.DataBackupStatus == model.DataBackupSuccess && e.DataBackup != nil {
		deployCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		e.Compose.Stop(deployCtx, inv, serviceName(c))
		restoreResult := e.DataBackup.Restore(deployCtx, c.Name, h.DataBackupID)
		if restoreResult.Status == "failed" {
			e.Log.Warn("data restore failed during rollback", "container", c.Name, "error", restoreResult.Error)
		}
		if _, err := e.Compose.Up(deployCtx, inv, serviceName(c)); err != nil {
			cancel()
			return fmt.Errorf("compose up during rollback: %w", err)
		}
		cancel()

		if databackup.IsPostgres(c.Image) {
			if info, ierr := e.Docker.Inspect(ctx, c.Name); ierr == nil {
				var env []string
				if info.Config != nil {
					env = info.Config.Env
				}
				pgUser := databackup.PGUserFromEnv(env)
				if _, err := e.DataBackup.RestorePostgreSQL(ctx, info.ID, c.Name, h.DataBackupID, pgUser, "", ""); err != nil {
					e.Log.Warn("postgres restore failed during rollback", "container", c.Name, "error", err)
				}
			}
		}
	}

	c.CurrentTag = h.FromTag
	if err := e.Store.SaveContainer(c); err != nil {
		e.Log.Warn("save container after rollback failed", "container", c.Name, "error", err)
	}

	h.RolledBackAt = e.now()
	h.Status = model.HistoryRolledBack
	if err := e.Store.SaveHistory(h); err != nil {
		e.Log.Warn("save history after rollback failed", "container", c.Name, "error", err)
	}

	e.publish(events.Event{Type: events.TypeRollbackComplete, ContainerID: c.ID, ContainerName: c.Name, Status: "success", Timestamp: e.now()})
	e.Notify.Notify(ctx, notify.Event{
		Type:          notify.EventRollbackOK,
		ContainerName: c.Name,
		OldImage:      c.Image + ":" + h.ToTag,
		NewImage:      c.Image + ":" + h.FromTag,
		Timestamp:     e.now(),
	})
	return nil
}
