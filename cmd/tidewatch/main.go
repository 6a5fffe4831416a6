// Command tidewatch runs the autonomous container-update orchestrator: it
// watches a Docker Compose fleet for new image tags, decides what to do
// about them per-container policy, applies approved updates, and supervises
// restarts of crashed containers — all driven off one scheduler and exposed
// through a small HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homelabforge/tidewatch/internal/applyengine"
	"github.com/homelabforge/tidewatch/internal/changelog"
	"github.com/homelabforge/tidewatch/internal/checker"
	"github.com/homelabforge/tidewatch/internal/config"
	"github.com/homelabforge/tidewatch/internal/databackup"
	"github.com/homelabforge/tidewatch/internal/dockerclient"
	"github.com/homelabforge/tidewatch/internal/events"
	"github.com/homelabforge/tidewatch/internal/logging"
	"github.com/homelabforge/tidewatch/internal/model"
	"github.com/homelabforge/tidewatch/internal/notify"
	"github.com/homelabforge/tidewatch/internal/registry"
	"github.com/homelabforge/tidewatch/internal/restart"
	"github.com/homelabforge/tidewatch/internal/scheduler"
	"github.com/homelabforge/tidewatch/internal/store"
	"github.com/homelabforge/tidewatch/internal/vulnforge"
	"github.com/homelabforge/tidewatch/internal/web"
)

// version and commit are set at build time via ldflags:
//
//	-X main.version=$(VERSION) -X main.commit=$(COMMIT)
var version = "dev"
var commit = "unknown"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("tidewatch starting",
		"version", version,
		"commit", commit,
		"check_schedule", cfg.CheckSchedule(),
		"auto_update_enabled", cfg.AutoUpdateEnabled(),
		"web_enabled", cfg.WebEnabled,
	)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	docker, err := dockerclient.NewClient(cfg.DockerHost, nil)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer docker.Close()

	compose := dockerclient.NewCompose(cfg.ComposeCommand, cfg.DockerHost)
	bus := events.New()
	notifier := notify.NewMulti(log.Logger, loadNotifiers(db, log)...)

	// No credential store exists yet, so every registry is queried
	// anonymously; rate limits apply but public images resolve fine.
	noCredentials := func(string) (registry.Credential, bool) { return registry.Credential{}, false }
	registries := registry.NewSet(noCredentials, db)
	changelogFetcher := changelog.NewFetcher(cfg.GitHubToken)

	var vulnClient vulnforge.Client
	if cfg.VulnForgeURL != "" {
		vulnClient = vulnforge.NewHTTPClient(cfg.VulnForgeURL, cfg.VulnForgeKey)
	}
	scanWorker := vulnforge.NewWorker(vulnClient, db)

	chk := &checker.Checker{
		Store: db,
		Registries: registries,
		ChangelogFetcher: changelogFetcher,
		VulnForge: vulnClient,
		Events: bus,
		Notify: notifier,
		Log: log,
		GlobalIncludePrereleases: cfg.IncludePrereleases(),
		GlobalAutoUpdateEnabled: cfg.AutoUpdateEnabled(),
	}

	dataBackup := databackup.New(docker, cfg.BackupDir, log)
	engine := &applyengine.Engine{
		Store: db,
		Compose: compose,
		DataBackup: dataBackup,
		Docker: docker,
		ScanQueue: scanWorker,
		Events: bus,
		Notify: notifier,
		Log: log,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		ComposeBase: cfg.ComposeBase,
		HostComposeBase: cfg.HostComposeBase,
		BackupDir: cfg.BackupDir,
		KeepDataBackups: 5,
	}
	// AutoApplyJob's ApplyFunc returns only an error; Engine.Apply also
	// returns the Outcome, which the scheduler has no use for.
	applyFn := func(ctx context.Context, update *model.Update, triggeredBy string) error {
		_, err := engine.Apply(ctx, update, triggeredBy)
		return err
	}

	supervisor := restart.New(db, docker, bus, log)

	sched := scheduler.New(log)
	registerJobs(sched, cfg, db, chk, applyFn, supervisor, log)

	var srv *web.Server
	if cfg.WebEnabled {
		srv = web.NewServer(web.Dependencies{
			Containers: db,
			Updates: db,
			Settings: db,
			Docker: compose,
			Syncer: func(ctx context.Context) (checker.SyncResult, error) { return checker.Sync(ctx, docker, db) },
			Checker: chk,
			Applier: engine,
			Scheduler: sched,
			Notify: newNotifyTester(docker, vulnClient),
			Log: log,
			APIToken: cfg.APIToken,
			MetricsEnabled: true,
		})

		go func() {
			addr := net.JoinHostPort("", cfg.WebPort)
			log.Info("web server listening", "addr", addr)
			if err := srv.ListenAndServe(addr); err != nil {
				log.Error("web server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	if err := sched.Run(ctx); err != nil {
		log.Error("tidewatch exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("tidewatch shutdown complete")
}

// registerJobs builds and registers the full periodic job table: update
// checks, the auto-apply sweep, restart supervision, metrics refresh, and
// a couple of registration-only placeholders for concerns genuinely out of
// this process's scope.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, db *store.Store, chk *checker.Checker, applyFn scheduler.ApplyFunc, supervisor *restart.Supervisor, log *logging.Logger) {
	jobs := []struct {
		name, schedule string
		fn scheduler.JobFunc
	}{
		{scheduler.JobUpdateCheck, cfg.CheckSchedule(), scheduler.UpdateCheckJob(db, chk)},
		{scheduler.JobAutoApply, scheduler.DefaultAutoApplySchedule, scheduler.AutoApplyJob(db, applyFn, cfg.AutoUpdateMaxConcurrent)},
		{scheduler.JobRestartTick, fmt.Sprintf("@every %s", cfg.RestartInterval()), scheduler.RestartTickJob(supervisor)},
		{scheduler.JobRestartCleanup, scheduler.DefaultRestartCleanupSchedule, scheduler.RestartCleanupJob(supervisor)},
		{scheduler.JobMetricsCollection, scheduler.DefaultMetricsCollectionSchedule, scheduler.MetricsCollectionJob(db, db)},
		{scheduler.JobMetricsCleanup, scheduler.DefaultMetricsCleanupSchedule, scheduler.PlaceholderJob("metrics retention is the scraper's own concern")},
		{scheduler.JobDockerfileDependenciesCheck, scheduler.DefaultDockerfileDependenciesCheckSchedule, scheduler.PlaceholderJob("dependency-graph triage is a distinct concern from registry tag tracking")},
	}
	for _, j := range jobs {
		if err := sched.Register(j.name, j.schedule, j.fn); err != nil {
			log.Error("failed to register job", "job", j.name, "error", err)
		}
	}

	if dockerCleanupSchedule, err := db.GetSetting("docker_cleanup_schedule"); err == nil && dockerCleanupSchedule != "" {
		if err := sched.Register(scheduler.JobDockerCleanup, dockerCleanupSchedule, dockerCleanupJob()); err != nil {
			log.Error("failed to register optional docker_cleanup job", "error", err)
		}
	}
}

// dockerCleanupJob reserves the docker_cleanup schedule slot. TideWatch
// leaves actual image/container pruning to the operator's own tooling
// (e.g. a sibling docker system prune cron) rather than reaching into the
// host's Docker daemon for destructive cleanup on its own.
func dockerCleanupJob() scheduler.JobFunc {
	return scheduler.PlaceholderJob("image/container pruning is left to operator-managed tooling")
}

// loadNotifiers builds the configured notification channel set from the
// "notification_channels" setting, a JSON array of notify.Channel. A
// LogNotifier is always included so update/restart/rollback events are
// visible in the process log even with zero channels configured.
func loadNotifiers(db *store.Store, log *logging.Logger) []notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(log.Logger)}

	raw, err := db.GetSetting("notification_channels")
	if err != nil || raw == "" {
		return notifiers
	}
	var channels []notify.Channel
	if err := json.Unmarshal([]byte(raw), &channels); err != nil {
		log.Warn("failed to decode notification_channels setting", "error", err)
		return notifiers
	}
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		n, err := notify.BuildFilteredNotifier(ch)
		if err != nil {
			log.Warn("failed to build notifier", "channel", ch.Name, "type", ch.Type, "error", err)
			continue
		}
		notifiers = append(notifiers, n)
	}
	return notifiers
}

// pinger is the subset of *dockerclient.Client the "docker" test target needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// apiTester is the subset of vulnforge.Client the "vulnforge" test target needs.
type apiTester interface {
	Query(ctx context.Context, q vulnforge.ScanQuery) (vulnforge.ScanResult, error)
}

// notifyTesterAdapter answers the web API's settings-test endpoint. It
// recognizes two built-in targets ("docker", "vulnforge") for connectivity
// checks and otherwise treats the provider name as a notify.ProviderType,
// building a throwaway Channel from the posted settings and sending one
// synthetic test event through it — internal/notify has no dedicated Test
// method on any provider, so this fabricates one from Send.
type notifyTesterAdapter struct {
	docker pinger
	vuln apiTester
}

func newNotifyTester(docker pinger, vuln vulnforge.Client) *notifyTesterAdapter {
	return &notifyTesterAdapter{docker: docker, vuln: vuln}
}

func (t *notifyTesterAdapter) Test(ctx context.Context, provider string, settings json.RawMessage) (bool, string, error) {
	switch provider {
	case "docker":
		if err := t.docker.Ping(ctx); err != nil {
			return false, "", err
		}
		return true, "connected to the Docker daemon", nil
	case "vulnforge":
		if t.vuln == nil {
			return false, "VulnForge is not configured", nil
		}
		if _, err := t.vuln.Query(ctx, vulnforge.ScanQuery{Image: "tidewatch/connectivity-check", Tag: "latest"}); err != nil {
			return false, "", err
		}
		return true, "connected to VulnForge", nil
	default:
		ch := notify.Channel{Type: notify.ProviderType(provider), Settings: settings}
		n, err := notify.BuildNotifier(ch)
		if err != nil {
			return false, "", err
		}
		if err := n.Send(ctx, notify.Event{
			Type: notify.EventUpdateAvailable,
			ContainerName: "tidewatch-test",
			Timestamp: time.Now(),
		}); err != nil {
			return false, "", err
		}
		return true, "test notification sent", nil
	}
}
