// Package model defines the persisted entities of: Container,
// Update, UpdateHistory, RestartState, and PendingScanJob, plus the
// DecisionTrace record attached to every Update.
package model

import "time"

// Registry identifies which registry a container's image lives on.
type Registry string

const (
	RegistryDockerHub Registry = "dockerhub"
	RegistryGHCR Registry = "ghcr"
	RegistryLSCR Registry = "lscr"
	RegistryGCR Registry = "gcr"
	RegistryQuay Registry = "quay"
)

// NormalizeRegistryHost maps a registry hostname to its canonical name.
func NormalizeRegistryHost(host string) Registry {
	switch host {
	case "docker.io", "":
		return RegistryDockerHub
	case "ghcr.io":
		return RegistryGHCR
	case "lscr.io":
		return RegistryLSCR
	case "gcr.io":
		return RegistryGCR
	case "quay.io":
		return RegistryQuay
	default:
		return RegistryDockerHub
	}
}

// Policy is a container's auto-approval policy.
type Policy string

const (
	PolicyAuto Policy = "auto"
	PolicyManual Policy = "manual"
	PolicyDisabled Policy = "disabled"
	PolicySecurity Policy = "security"
	PolicyPatchOnly Policy = "patch-only"
	PolicyMinorAndPatch Policy = "minor-and-patch"
)

// Scope is the maximum semver distance an update may cross.
type Scope string

const (
	ScopePatch Scope = "patch"
	ScopeMinor Scope = "minor"
	ScopeMajor Scope = "major"
)

// HealthCheckMethod selects how Update Engine validates a recreated service.
type HealthCheckMethod string

const (
	HealthCheckAuto HealthCheckMethod = "auto"
	HealthCheckHTTP HealthCheckMethod = "http"
	HealthCheckDocker HealthCheckMethod = "docker"
)

// Tri is a tri-state boolean: true, false, or "inherit global".
type Tri struct {
	Valid bool
	Value bool
}

// NullTri is the "inherit global" state.
var NullTri = Tri{}

// TriFrom constructs a non-null Tri.
func TriFrom(b bool) Tri { return Tri{Valid: true, Value: b} }

// Resolve returns Value if set, else the provided global default.
func (t Tri) Resolve(global bool) bool {
	if !t.Valid {
		return global
	}
	return t.Value
}

// Container is the tracked unit.
type Container struct {
	ID int64 `json:"id"`
	Name string `json:"name"`
	Image string `json:"image"`
	CurrentTag string `json:"current_tag"`
	CurrentDigest string `json:"current_digest,omitempty"`
	Registry Registry `json:"registry"`
	ComposeFile string `json:"compose_file"`
	ComposeProject string `json:"compose_project,omitempty"`
	ServiceName string `json:"service_name"`
	Policy Policy `json:"policy"`
	Scope Scope `json:"scope"`
	IncludePrereleases Tri `json:"include_prereleases"`
	VulnForgeEnabled bool `json:"vulnforge_enabled"`
	HealthCheckURL string `json:"health_check_url,omitempty"`
	HealthCheckMethod HealthCheckMethod `json:"health_check_method"`
	HealthCheckAuth string `json:"health_check_auth,omitempty"`
	ReleaseSource string `json:"release_source,omitempty"`
	UpdateWindow string `json:"update_window,omitempty"`
	LatestTag string `json:"latest_tag,omitempty"`
	LatestMajorTag string `json:"latest_major_tag,omitempty"`
	UpdateAvailable bool `json:"update_available"`
	LastChecked time.Time `json:"last_checked,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
	AutoRestartEnabled bool `json:"auto_restart_enabled"`
	Labels map[string]string `json:"labels,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// UpdateStatus is the lifecycle state of an Update row.
type UpdateStatus string

const (
	UpdateStatusPending UpdateStatus = "pending"
	UpdateStatusApproved UpdateStatus = "approved"
	UpdateStatusRejected UpdateStatus = "rejected"
	UpdateStatusApplied UpdateStatus = "applied"
	UpdateStatusFailed UpdateStatus = "failed"
	UpdateStatusPendingRetry UpdateStatus = "pending_retry"
	UpdateStatusRolledBack UpdateStatus = "rolled_back"
)

// IsActive reports whether the status participates in the per-container
// dedupe/supersession uniqueness invariant.
func (s UpdateStatus) IsActive() bool {
	switch s {
	case UpdateStatusPending, UpdateStatusApproved, UpdateStatusPendingRetry:
		return true
	default:
		return false
	}
}

// ReasonType classifies why an update exists.
type ReasonType string

const (
	ReasonSecurity ReasonType = "security"
	ReasonFeature ReasonType = "feature"
	ReasonMaintenance ReasonType = "maintenance"
	ReasonBugfix ReasonType = "bugfix"
	ReasonUnknown ReasonType = "unknown"
)

// UpdateKind distinguishes a tag bump from a digest-only (":latest") update.
type UpdateKind string

const (
	UpdateKindTag UpdateKind = "tag"
	UpdateKindDigest UpdateKind = "digest"
)

// ChangeType is the semver distance of the candidate.
type ChangeType string

const (
	ChangePatch ChangeType = "patch"
	ChangeMinor ChangeType = "minor"
	ChangeMajor ChangeType = "major"
	ChangeUnknown ChangeType = "unknown"
)

// Update is an opportunity to move a container from FromTag to ToTag.
type Update struct {
	ID int64 `json:"id"`
	ContainerID int64 `json:"container_id"`
	FromTag string `json:"from_tag"`
	ToTag string `json:"to_tag"`
	Registry Registry `json:"registry"`
	ReasonType ReasonType `json:"reason_type"`
	ReasonSummary string `json:"reason_summary"`
	Recommendation string `json:"recommendation,omitempty"`
	Changelog string `json:"changelog,omitempty"`
	ChangelogURL string `json:"changelog_url,omitempty"`
	CVEsFixed []string `json:"cves_fixed,omitempty"`
	CurrentVulns int `json:"current_vulns"`
	NewVulns int `json:"new_vulns"`
	VulnDelta int `json:"vuln_delta"`
	Status UpdateStatus `json:"status"`
	ScopeViolation bool `json:"scope_violation"`
	UpdateKind UpdateKind `json:"update_kind"`
	ChangeType ChangeType `json:"change_type"`
	DecisionTrace []byte `json:"decision_trace,omitempty"`
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
	ApprovedBy string `json:"approved_by,omitempty"`
	ApprovedAt time.Time `json:"approved_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Version int `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateHistoryStatus is the lifecycle state of one apply attempt.
type UpdateHistoryStatus string

const (
	HistoryInProgress UpdateHistoryStatus = "in_progress"
	HistorySuccess UpdateHistoryStatus = "success"
	HistoryFailed UpdateHistoryStatus = "failed"
	HistoryRolledBack UpdateHistoryStatus = "rolled_back"
)

// UpdateType distinguishes how the apply was triggered.
type UpdateType string

const (
	UpdateTypeAuto UpdateType = "auto"
	UpdateTypeManual UpdateType = "manual"
	UpdateTypeRollback UpdateType = "rollback"
	UpdateTypeDependencyUpdate UpdateType = "dependency_update"
)

// DataBackupStatus records the outcome of the best-effort data backup step.
type DataBackupStatus string

const (
	DataBackupSuccess DataBackupStatus = "success"
	DataBackupPartial DataBackupStatus = "partial"
	DataBackupTimeout DataBackupStatus = "timeout"
	DataBackupFailed DataBackupStatus = "failed"
	DataBackupSkipped DataBackupStatus = "skipped"
)

// UpdateHistory is an immutable audit record of one apply attempt.
type UpdateHistory struct {
	ID int64 `json:"id"`
	ContainerID int64 `json:"container_id"`
	UpdateID int64 `json:"update_id,omitempty"`
	FromTag string `json:"from_tag"`
	ToTag string `json:"to_tag"`
	UpdateType UpdateType `json:"update_type"`
	EventType string `json:"event_type"`
	Status UpdateHistoryStatus `json:"status"`
	BackupPath string `json:"backup_path,omitempty"`
	DataBackupID string `json:"data_backup_id,omitempty"`
	DataBackupStatus DataBackupStatus `json:"data_backup_status,omitempty"`
	CVEsFixed []string `json:"cves_fixed,omitempty"`
	StartedAt time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	RolledBackAt time.Time `json:"rolled_back_at,omitempty"`
	TriggeredBy string `json:"triggered_by"`
	CanRollback bool `json:"can_rollback"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// RestartState is per-container crash-loop bookkeeping.
type RestartState struct {
	ContainerID int64 `json:"container_id"`
	Enabled bool `json:"enabled"`
	MaxAttempts int `json:"max_attempts"`
	ConsecutiveFailures int `json:"consecutive_failures"`
	LastSuccessfulStart time.Time `json:"last_successful_start,omitempty"`
	SuccessWindowSeconds int `json:"success_window_seconds"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	LastFailureReason string `json:"last_failure_reason,omitempty"`
	LastExitCode int `json:"last_exit_code"`
	MaxRetriesReached bool `json:"max_retries_reached"`
}

// PendingScanJobStatus is the lifecycle state of a post-update CVE reconciliation.
type PendingScanJobStatus string

const (
	ScanJobPending PendingScanJobStatus = "pending"
	ScanJobTriggered PendingScanJobStatus = "triggered"
	ScanJobPolling PendingScanJobStatus = "polling"
	ScanJobCompleted PendingScanJobStatus = "completed"
	ScanJobFailed PendingScanJobStatus = "failed"
)

// IsActive reports whether the job is still being worked.
func (s PendingScanJobStatus) IsActive() bool {
	switch s {
	case ScanJobPending, ScanJobTriggered, ScanJobPolling:
		return true
	default:
		return false
	}
}

// PendingScanJob is a post-update CVE-delta reconciliation job.
type PendingScanJob struct {
	ID int64 `json:"id"`
	ContainerName string `json:"container_name"`
	UpdateID int64 `json:"update_id"`
	Status PendingScanJobStatus `json:"status"`
	VulnForgeJobID string `json:"vulnforge_job_id,omitempty"`
	VulnForgeScanID string `json:"vulnforge_scan_id,omitempty"`
	PollCount int `json:"poll_count"`
	MaxPolls int `json:"max_polls"`
	LastPolledAt time.Time `json:"last_polled_at,omitempty"`
	TriggerAttemptCount int `json:"trigger_attempt_count"`
	LastTriggerAttemptAt time.Time `json:"last_trigger_attempt_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PollsExhausted reports whether the job has used up its poll budget.
func (j *PendingScanJob) PollsExhausted() bool { return j.PollCount >= j.MaxPolls }

// DecisionTrace is the structured, versioned, persisted record of every
// input/branch the Decision Maker consulted for one check.
type DecisionTrace struct {
	TraceVersion int `json:"trace_version"`
	CurrentTag string `json:"current_tag"`
	Scope Scope `json:"scope"`
	IncludePrereleases bool `json:"include_prereleases"`
	SuffixMatch string `json:"suffix_match,omitempty"`
	TagCandidate string `json:"tag_candidate,omitempty"`
	MajorCandidateBlocked string `json:"major_candidate_blocked,omitempty"`
	PreviousDigest string `json:"previous_digest,omitempty"`
	NewDigest string `json:"new_digest,omitempty"`
	DigestChanged bool `json:"digest_changed"`
	UpdateKind UpdateKind `json:"update_kind"`
	ChangeType ChangeType `json:"change_type"`
}

// CurrentDecisionTraceVersion is bumped whenever the trace schema gains new
// fields. Unknown fields on read are ignored.
const CurrentDecisionTraceVersion = 1
