package applyengine

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/homelabforge/tidewatch/internal/model"
)

// healthResult is the outcome of a post-deploy health check.
type healthResult struct {
	Healthy  bool
	Fallback bool // true when the docker-inspect fallback decided the outcome
	Message  string
}

const (
	healthCheckBudget = 60 * time.Second
	healthBackoffBase = 5 * time.Second
	healthBackoffCap  = 30 * time.Second
)

// checkHealth tries an HTTP probe first when the container has a
// health_check_url and a compatible method, backing off exponentially
// within a fixed budget; on timeout, error, or when no URL is configured it
// falls back to asking Docker whether the container is running.
func (e *Engine) checkHealth(ctx context.Context, c *model.Container, containerName string) healthResult {
	if c.HealthCheckURL != "" && c.HealthCheckMethod != model.HealthCheckDocker {
		if res, ok := e.httpHealthCheck(ctx, c); ok {
			return res
		}
	}
	return e.dockerHealthCheck(ctx, containerName)
}

// httpHealthCheck polls c.HealthCheckURL until it returns 2xx, the context
// is cancelled, or the budget is exhausted. The bool return reports whether
// the HTTP probe reached a conclusive answer at all; false means the caller
// should fall back to the docker-inspect check.
func (e *Engine) httpHealthCheck(ctx context.Context, c *model.Container) (healthResult, bool) {
	deadline := e.now().Add(healthCheckBudget)
	backoff := healthBackoffBase
	client := e.httpClient()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HealthCheckURL, nil)
		if err == nil {
			applyAuth(req, c.HealthCheckAuth)
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					return healthResult{Healthy: true, Message: "http health check passed"}, true
				}
			}
		}

		if e.now().Add(backoff).After(deadline) {
			return healthResult{}, false
		}
		select {
		case <-ctx.Done():
			return healthResult{}, false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > healthBackoffCap {
			backoff = healthBackoffCap
		}
	}
}

// applyAuth attaches health_check_auth to req using one of three formats:
// "header:KEY=VAL", "token:BEARER", or "query:KEY=VAL".
func applyAuth(req *http.Request, auth string) {
	switch {
	case strings.HasPrefix(auth, "header:"):
		kv := strings.SplitN(strings.TrimPrefix(auth, "header:"), "=", 2)
		if len(kv) == 2 {
			req.Header.Set(kv[0], kv[1])
		}
	case strings.HasPrefix(auth, "token:"):
		req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(auth, "token:"))
	case strings.HasPrefix(auth, "query:"):
		kv := strings.SplitN(strings.TrimPrefix(auth, "query:"), "=", 2)
		if len(kv) == 2 {
			q := req.URL.Query()
			q.Set(kv[0], kv[1])
			req.URL.RawQuery = q.Encode()
		}
	}
}

// dockerHealthCheck asks Docker whether the container is running. It is
// both the fallback for a failed/unconfigured HTTP probe and the sole check
// when health_check_method is "docker".
func (e *Engine) dockerHealthCheck(ctx context.Context, containerName string) healthResult {
	info, err := e.Docker.Inspect(ctx, containerName)
	if err != nil {
		return healthResult{Healthy: false, Fallback: true, Message: "docker inspect failed: " + err.Error()}
	}
	if info.State != nil && (info.State.Running || info.State.Status == "running") {
		return healthResult{Healthy: true, Fallback: true, Message: "container running (docker inspect fallback)"}
	}
	status := ""
	if info.State != nil {
		status = info.State.Status
	}
	return healthResult{Healthy: false, Fallback: true, Message: "container not running: " + status}
}
