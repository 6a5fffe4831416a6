// Package restart implements the crash-loop restart supervisor: for every
// container with auto-restart enabled it inspects current Docker state,
// decides whether a crashed container is worth restarting, and schedules
// the next attempt behind an exponential backoff with a circuit breaker
// once the attempt budget is exhausted. The inspect-then-act-then-log shape
// follows the same pattern as a policy-driven container mutation — look at
// live Docker state first, then decide, then persist and log the outcome.
package restart

import (
	"context"
	"time"

	dockercontainer "github.com/moby/moby/api/types/container"

	"github.com/homelabforge/tidewatch/internal/events"
	"github.com/homelabforge/tidewatch/internal/logging"
	"github.com/homelabforge/tidewatch/internal/model"
)

const (
	defaultMaxAttempts = 5
	defaultSuccessWindow = 5 * time.Minute
	backoffBase = 30 * time.Second
	backoffCap = 30 * time.Minute
)

// containerStore is the subset of *store.Store the supervisor needs.
type containerStore interface {
	ListContainers() ([]*model.Container, error)
	GetOrCreateRestartState(containerID int64) (*model.RestartState, error)
	SaveRestartState(st *model.RestartState) error
	ListRestartStates() ([]*model.RestartState, error)
	GetContainer(id int64) (*model.Container, error)
}

// dockerInspector matches *dockerclient.Client's methods the supervisor needs.
type dockerInspector interface {
	Inspect(ctx context.Context, id string) (dockercontainer.InspectResponse, error)
	Start(ctx context.Context, id string) error
}

type publisher interface{ Publish(events.Event) }

// Clock lets tests control "now" without sleeping.
type Clock func() time.Time

// Supervisor drives one restart-evaluation pass per container per tick.
type Supervisor struct {
	Store containerStore
	Docker dockerInspector
	Events publisher
	Log *logging.Logger
	Now Clock
}

// New builds a Supervisor using the real wall clock.
func New(store containerStore, docker dockerInspector, bus publisher, log *logging.Logger) *Supervisor {
	return &Supervisor{Store: store, Docker: docker, Events: bus, Log: log, Now: time.Now}
}

func (s *Supervisor) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Tick evaluates every auto-restart-enabled container exactly once.
// Containers not yet due for their next attempt (per NextRetryAt) and
// containers whose circuit breaker has already tripped are skipped
// cheaply without touching Docker.
func (s *Supervisor) Tick(ctx context.Context) error {
	containers, err := s.Store.ListContainers()
	if err != nil {
		return err
	}
	for _, c := range containers {
		if !c.AutoRestartEnabled {
			continue
		}
		s.evaluate(ctx, c)
	}
	return nil
}

func (s *Supervisor) evaluate(ctx context.Context, c *model.Container) {
	st, err := s.Store.GetOrCreateRestartState(c.ID)
	if err != nil {
		s.logErr(c, "load restart state", err)
		return
	}
	if st.MaxRetriesReached {
		return
	}
	now := s.now()
	if !st.NextRetryAt.IsZero() && now.Before(st.NextRetryAt) {
		return
	}

	info, err := s.Docker.Inspect(ctx, c.Name)
	if err != nil {
		s.logErr(c, "inspect for restart evaluation", err)
		return
	}
	if info.State == nil {
		return
	}

	if info.State.Running {
		s.reconcileRunning(c, st, info, now)
		return
	}

	s.handleCrashed(c, st, info, now)
}

// reconcileRunning clears the backoff once a container has stayed up
// through its success window, matching the hourly cleanup job's sweep.
func (s *Supervisor) reconcileRunning(c *model.Container, st *model.RestartState, info dockercontainer.InspectResponse, now time.Time) {
	if st.ConsecutiveFailures == 0 && st.NextRetryAt.IsZero() {
		return
	}
	startedAt, _ := time.Parse(time.RFC3339Nano, info.State.StartedAt)
	if startedAt.IsZero() {
		return
	}
	window := successWindow(st)
	if now.Sub(startedAt) < window {
		return
	}
	st.ConsecutiveFailures = 0
	st.NextRetryAt = time.Time{}
	st.LastSuccessfulStart = startedAt
	if err := s.Store.SaveRestartState(st); err != nil {
		s.logErr(c, "save restart state after recovery", err)
	}
}

func (s *Supervisor) handleCrashed(c *model.Container, st *model.RestartState, info dockercontainer.InspectResponse, now time.Time) {
	exitCode := info.State.ExitCode
	oomKilled := info.State.OOMKilled
	maxAttempts := st.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	if exitCode == 0 && !oomKilled {
		// A clean exit is not a crash: record it and leave the container stopped.
		st.LastExitCode = exitCode
		st.LastFailureReason = "exited cleanly; not restarted"
		if err := s.Store.SaveRestartState(st); err != nil {
			s.logErr(c, "save restart state after clean exit", err)
		}
		return
	}

	if !ShouldRetryRestart(exitCode, oomKilled, st.ConsecutiveFailures, maxAttempts) {
		st.MaxRetriesReached = true
		st.LastExitCode = exitCode
		st.LastFailureReason = failureReason(exitCode, oomKilled)
		if err := s.Store.SaveRestartState(st); err != nil {
			s.logErr(c, "save restart state at max retries", err)
		}
		s.Log.Warn("restart attempts exhausted", "container", c.Name, "exit_code", exitCode, "oom_killed", oomKilled)
		s.publish(events.Event{
			Type: events.TypeRestartMaxRetries,
			ContainerID: c.ID,
			ContainerName: c.Name,
			Status: "max_retries_reached",
			Message: st.LastFailureReason,
			Timestamp: now,
		})
		return
	}

	attemptErr := s.Docker.Start(context.Background(), c.Name)

	st.ConsecutiveFailures++
	st.LastExitCode = exitCode
	if attemptErr != nil {
		st.LastFailureReason = attemptErr.Error()
	} else {
		st.LastFailureReason = failureReason(exitCode, oomKilled)
	}
	st.NextRetryAt = now.Add(BackoffDelay(st.ConsecutiveFailures))
	if err := s.Store.SaveRestartState(st); err != nil {
		s.logErr(c, "save restart state after attempt", err)
	}

	if attemptErr != nil {
		s.Log.Error("restart attempt failed", "container", c.Name, "error", attemptErr)
		return
	}
	s.Log.Info("restart scheduled container", "container", c.Name, "attempt", st.ConsecutiveFailures, "next_retry_at", st.NextRetryAt)
	s.publish(events.Event{
		Type: events.TypeRestartScheduled,
		ContainerID: c.ID,
		ContainerName: c.Name,
		Status: "restarted",
		Timestamp: now,
	})
}

// Cleanup implements the hourly job that resets backoff state for every
// container that has been running stably through its success window,
// independent of whether Tick happened to observe the transition itself.
func (s *Supervisor) Cleanup(ctx context.Context) error {
	states, err := s.Store.ListRestartStates()
	if err != nil {
		return err
	}
	now := s.now()
	for _, st := range states {
		if st.MaxRetriesReached || (st.ConsecutiveFailures == 0 && st.NextRetryAt.IsZero()) {
			continue
		}
		c, err := s.Store.GetContainer(st.ContainerID)
		if err != nil || c == nil {
			continue
		}
		info, err := s.Docker.Inspect(ctx, c.Name)
		if err != nil || info.State == nil || !info.State.Running {
			continue
		}
		s.reconcileRunning(c, st, info, now)
	}
	return nil
}

func successWindow(st *model.RestartState) time.Duration {
	if st.SuccessWindowSeconds <= 0 {
		return defaultSuccessWindow
	}
	return time.Duration(st.SuccessWindowSeconds) * time.Second
}

func failureReason(exitCode int, oomKilled bool) string {
	if oomKilled {
		return "killed for exceeding its memory limit"
	}
	return "exited with a non-zero status"
}

func (s *Supervisor) publish(evt events.Event) {
	if s.Events != nil {
		s.Events.Publish(evt)
	}
}

func (s *Supervisor) logErr(c *model.Container, op string, err error) {
	if s.Log != nil {
		s.Log.Error(op+" failed", "container", c.Name, "error", err.Error())
	}
}
