package web

import (
	"context"
	"encoding/json"

	"github.com/homelabforge/tidewatch/internal/applyengine"
	"github.com/homelabforge/tidewatch/internal/checker"
	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/model"
)

// containerStore is the subset of *store.Store the container handlers need.
type containerStore interface {
	ListContainers() ([]*model.Container, error)
	GetContainer(id int64) (*model.Container, error)
	SaveContainer(c *model.Container) error
	ListHistoryByContainer(containerID int64) ([]*model.UpdateHistory, error)
}

// updateStore is the subset of *store.Store the update handlers need.
type updateStore interface {
	ListUpdates() ([]*model.Update, error)
	ListUpdatesByContainer(containerID int64) ([]*model.Update, error)
	ListUpdatesByStatus(status model.UpdateStatus) ([]*model.Update, error)
	GetUpdate(id int64) (*model.Update, error)
	SaveUpdate(u *model.Update) error
	DeleteUpdate(id int64) error
}

// settingsStore is the subset of *store.Store the settings handlers need.
type settingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	DeleteSetting(key string) error
	AllSettings() (map[string]string, error)
}

// composeRestarter matches *dockerclient.Compose's Restart method.
type composeRestarter interface {
	Restart(ctx context.Context, inv dockerclient.Invocation, services ...string) (string, error)
}

// syncer matches checker.Sync's signature as a bound function, keeping this
// package free of a direct dependency on *dockerclient.Client.
type syncer func(ctx context.Context) (checker.SyncResult, error)

// updateChecker matches *checker.Checker's Check method.
type updateChecker interface {
	Check(ctx context.Context, container *model.Container) checker.Result
}

// updateApplier matches *applyengine.Engine's Apply method.
type updateApplier interface {
	Apply(ctx context.Context, update *model.Update, triggeredBy string) (*applyengine.Outcome, error)
}

// scheduleReloader matches *scheduler.Scheduler's Reload method.
type scheduleReloader interface {
	Reload(name, schedule string) error
}

// notifyTester backs POST /settings/test/{provider}: each provider has its
// own connectivity check (a registry tag fetch, a Docker ping, a
// notification channel's Send), wired by the caller rather than
// implemented here so this package stays free of every provider's
// transport dependency.
type notifyTester interface {
	Test(ctx context.Context, provider string, settings json.RawMessage) (success bool, message string, err error)
}
