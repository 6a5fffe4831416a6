// Package scheduler drives TideWatch's periodic jobs off one robfig/cron
// instance: update checks, the auto-apply sweep, restart-state cleanup, and
// metrics refresh all register here rather than each running their own
// ticker goroutine. Entries guard themselves against overlap with an
// in-flight set, since cron itself happily fires a new run on top of a slow
// one.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/homelabforge/tidewatch/internal/logging"
)

// Well-known job names. Registered schedules are looked up by name so a
// settings change can find and replace the right cron entry.
const (
	JobUpdateCheck = "update_check"
	JobAutoApply = "auto_apply"
	JobRestartTick = "restart_tick"
	JobRestartCleanup = "restart_cleanup"
	JobMetricsCollection = "metrics_collection"
	JobMetricsCleanup = "metrics_cleanup"
	JobDockerfileDependenciesCheck = "dockerfile_dependencies_check"
	JobDockerCleanup = "docker_cleanup"
)

// Default cron expressions for jobs whose schedule isn't user-configurable.
// JobUpdateCheck's default lives in internal/config (TIDEWATCH_CHECK_SCHEDULE)
// since it's the one schedule exposed through settings; JobDockerCleanup has
// no default at all — it only runs if the operator configures one.
const (
	DefaultAutoApplySchedule = "@every 5m"
	DefaultRestartCleanupSchedule = "@every 1h"
	DefaultMetricsCollectionSchedule = "@every 1m"
	DefaultMetricsCleanupSchedule = "0 0 * * *"
	DefaultDockerfileDependenciesCheckSchedule = "0 0 * * *"
)

// JobFunc is one scheduled unit of work. A returned error is logged, never
// propagated — a failed run must not bring down the process or the cron.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	schedule string
	run JobFunc
}

// Scheduler wraps a single *cron.Cron and enforces max_instances=1 per job
// name: if a run is still in flight when its next tick fires, the tick is
// skipped and logged rather than queued or run concurrently.
type Scheduler struct {
	cron *cron.Cron
	log *logging.Logger

	mu sync.Mutex
	jobs map[string]job
	entryIDs map[string]cron.EntryID

	inFlight sync.Map // name -> struct{}
}

// New builds an idle Scheduler. Call Register for each job, then Run.
func New(log *logging.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log: log,
		jobs: make(map[string]job),
		entryIDs: make(map[string]cron.EntryID),
	}
}

// Register adds a named job on a cron schedule (standard 5-field cron, or a
// "@every 1h30m"-style descriptor). Registering the same name twice replaces
// the earlier entry.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entryIDs[name]; ok {
		s.cron.Remove(existing)
	}

	id, err := s.cron.AddFunc(schedule, s.guard(name, fn))
	if err != nil {
		return fmt.Errorf("scheduler: register job %q on %q: %w", name, schedule, err)
	}
	s.jobs[name] = job{name: name, schedule: schedule, run: fn}
	s.entryIDs[name] = id
	return nil
}

// Reload replaces name's schedule if it differs from what's registered,
// keeping the same job body. A no-op schedule change is a no-op call —
// the settings API can call this unconditionally on every save.
func (s *Scheduler) Reload(name, schedule string) error {
	s.mu.Lock()
	existing, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: reload unknown job %q", name)
	}
	if existing.schedule == schedule {
		return nil
	}
	if err := s.Register(name, schedule, existing.run); err != nil {
		return err
	}
	s.log.Info("job schedule reloaded", "job", name, "schedule", schedule)
	return nil
}

// Schedule returns the cron expression currently registered for name, and
// whether the job is registered at all.
func (s *Scheduler) Schedule(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j.schedule, ok
}

func (s *Scheduler) guard(name string, fn JobFunc) func() {
	return func() {
		if _, loaded := s.inFlight.LoadOrStore(name, struct{}{}); loaded {
			s.log.Warn("job skipped: previous run still in flight", "job", name)
			return
		}
		defer s.inFlight.Delete(name)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", "job", name, "panic", fmt.Sprintf("%v", r))
			}
		}()

		start := time.Now()
		if err := fn(context.Background()); err != nil {
			s.log.Error("job failed", "job", name, "error", err.Error(), "elapsed", time.Since(start).String())
			return
		}
		s.log.Debug("job completed", "job", name, "elapsed", time.Since(start).String())
	}
}

// Run starts the cron and blocks until ctx is cancelled, then waits (up to
// 30s) for any in-flight job to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", s.jobNames())
	<-ctx.Done()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn("scheduler stop timed out waiting for in-flight jobs")
	}
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) jobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
