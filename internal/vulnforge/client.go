// Package vulnforge is the client and reconciliation worker for the
// external VulnForge vulnerability-scanning service. The
// service itself is an external collaborator — this package only defines
// the narrow Client interface TideWatch needs and an HTTP implementation
// of it, so tests can swap in a fake without a real VulnForge deployment.
package vulnforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/homelabforge/tidewatch/internal/httpretry"
)

// ScanQuery identifies the image/tag/registry coordinates VulnForge scans.
type ScanQuery struct {
	Image string
	Tag string
	Registry string
}

// ScanResult is VulnForge's verdict for one candidate tag.
type ScanResult struct {
	HasBaseline bool // false: "no data for candidate tag yet" — caller stores baseline only
	Current int
	New int
	Delta int
	CVEsFixed []string
	Summary string
	Recommendation string
	IsSafe bool
}

// JobStatus is the result of polling a triggered scan job.
type JobStatus struct {
	Complete bool
	Failed bool
	ScanID string
	CVEsFixed []string
	NewVulns int
	VulnDelta int
	ErrorMessage string
}

// Client is everything the reconciliation worker needs from VulnForge.
type Client interface {
	// Query fetches the current scan verdict for a candidate tag.
	Query(ctx context.Context, q ScanQuery) (ScanResult, error)
	// Trigger asks VulnForge to scan a freshly deployed container. Returns
	// a job ID on success, or ErrJobNotFound if VulnForge doesn't know the
	// container yet (the caller should retry, optionally after Discover).
	Trigger(ctx context.Context, containerName string, q ScanQuery) (jobID string, err error)
	// Discover asks VulnForge to re-scan the host for newly deployed
	// containers, used as a nudge before retrying Trigger.
	Discover(ctx context.Context, containerName string) error
	// PollJob checks a triggered job's progress.
	PollJob(ctx context.Context, jobID string) (JobStatus, error)
}

// ErrJobNotFound means VulnForge doesn't yet know about the container —
// Trigger should be retried, and a Discover call should precede the retry
// once enough attempts have failed.
var ErrJobNotFound = fmt.Errorf("vulnforge: container not yet discovered")

// HTTPClient implements Client against a real VulnForge deployment.
type HTTPClient struct {
	BaseURL string
	APIKey string
	http *http.Client
}

// NewHTTPClient builds an HTTPClient. baseURL has no trailing slash.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, APIKey: apiKey, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	return httpretry.Default.Do(ctx, func() error {
		var reader *bytes.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return notFoundErr{}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("vulnforge: %s %s: status %d", method, path, resp.StatusCode)
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "vulnforge: not found" }
func (notFoundErr) NonRetryable() bool { return true }

func (c *HTTPClient) Query(ctx context.Context, q ScanQuery) (ScanResult, error) {
	var resp struct {
		HasBaseline bool `json:"has_baseline"`
		Current int `json:"current"`
		New int `json:"new"`
		Delta int `json:"delta"`
		CVEsFixed []string `json:"cves_fixed"`
		Summary string `json:"summary"`
		Recommendation string `json:"recommendation"`
		IsSafe bool `json:"is_safe"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/scan-query", q, &resp)
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{
		HasBaseline: resp.HasBaseline,
		Current: resp.Current,
		New: resp.New,
		Delta: resp.Delta,
		CVEsFixed: resp.CVEsFixed,
		Summary: resp.Summary,
		Recommendation: resp.Recommendation,
		IsSafe: resp.IsSafe,
	}, nil
}

func (c *HTTPClient) Trigger(ctx context.Context, containerName string, q ScanQuery) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	req := struct {
		ContainerName string `json:"container_name"`
		ScanQuery
	}{ContainerName: containerName, ScanQuery: q}
	err := c.do(ctx, http.MethodPost, "/v1/trigger", req, &resp)
	if _, ok := err.(notFoundErr); ok {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *HTTPClient) Discover(ctx context.Context, containerName string) error {
	req := struct {
		ContainerName string `json:"container_name"`
	}{ContainerName: containerName}
	return c.do(ctx, http.MethodPost, "/v1/discover", req, nil)
}

func (c *HTTPClient) PollJob(ctx context.Context, jobID string) (JobStatus, error) {
	var resp struct {
		Complete bool `json:"complete"`
		Failed bool `json:"failed"`
		ScanID string `json:"scan_id"`
		CVEsFixed []string `json:"cves_fixed"`
		NewVulns int `json:"new_vulns"`
		VulnDelta int `json:"vuln_delta"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &resp); err != nil {
		return JobStatus{}, err
	}
	return JobStatus{
		Complete: resp.Complete,
		Failed: resp.Failed,
		ScanID: resp.ScanID,
		CVEsFixed: resp.CVEsFixed,
		NewVulns: resp.NewVulns,
		VulnDelta: resp.VulnDelta,
		ErrorMessage: resp.ErrorMessage,
	}, nil
}
