package applyengine

import (
	"context"
	"errors"
	"testing"

	"github.com/homelabforge/tidewatch/internal/databackup"
	"github.com/homelabforge/tidewatch/internal/model"
)

func TestRollbackRefusesDriftedSuccessfulUpdate(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{Status: "skipped"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)
	c.CurrentTag = "1.27.0" // a later update already moved the container further

	h := &model.UpdateHistory{ID: 1, ContainerID: c.ID, FromTag: u.FromTag, ToTag: u.ToTag, Status: model.HistorySuccess, CanRollback: true}

	err := e.rollback(context.Background(), c, u, h)
	if !errors.Is(err, errRollbackDrift) {
		t.Errorf("err = %v, want errRollbackDrift", err)
	}
}

func TestRollbackSkipsDriftCheckForNeverCommittedUpdate(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{Status: "skipped"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)
	// c.CurrentTag is still FromTag since the apply never reached commit.

	h := &model.UpdateHistory{ID: 1, ContainerID: c.ID, FromTag: u.FromTag, ToTag: u.ToTag, Status: model.HistoryFailed, CanRollback: true}

	if err := e.rollback(context.Background(), c, u, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CurrentTag != u.FromTag {
		t.Errorf("CurrentTag = %s, want %s", c.CurrentTag, u.FromTag)
	}
	if h.Status != model.HistoryRolledBack {
		t.Errorf("history status = %s, want rolled_back", h.Status)
	}
}

func TestRollbackRejectsAlreadyRolledBack(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{Status: "skipped"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)

	h := &model.UpdateHistory{ID: 1, ContainerID: c.ID, Status: model.HistoryRolledBack, CanRollback: true}
	if err := e.rollback(context.Background(), c, u, h); err == nil {
		t.Error("expected error for an already rolled-back history row")
	}
}

func TestRollbackRestoresDataWhenBackupSucceeded(t *testing.T) {
	compose := &fakeCompose{}
	db := &fakeDataBackup{result: databackup.Result{Status: "skipped"}}
	insp := &fakeInspector{running: true}
	e, st, composePath := newTestEngine(t, compose, db, insp)
	c, u := seedContainerAndUpdate(st, composePath)

	h := &model.UpdateHistory{ID: 1, ContainerID: c.ID, FromTag: u.FromTag, ToTag: u.ToTag, Status: model.HistoryFailed, CanRollback: true, DataBackupStatus: model.DataBackupSuccess, DataBackupID: "bkp1"}

	if err := e.rollback(context.Background(), c, u, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compose.upCalls != 1 {
		t.Errorf("upCalls = %d, want 1 (recreate after data restore)", compose.upCalls)
	}
}
