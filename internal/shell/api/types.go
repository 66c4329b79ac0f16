package api

import (
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateAppRequest is the request body for registering an application.
// The id defaults to the descriptor name for descriptor sources and to a
// slug of name for repository sources.
type CreateAppRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	SourceKind  string `json:"source_kind"`
	RepoURL     string `json:"repo_url,omitempty"`
	Branch      string `json:"branch,omitempty"`
	ComposePath string `json:"compose_path,omitempty"`
	Descriptor  string `json:"descriptor,omitempty"`
	AutoUpdate  bool   `json:"auto_update,omitempty"`
}

// UpdateAppRequest is the request body for updating an application.
// Absent fields are left unchanged.
type UpdateAppRequest struct {
	Name        *string `json:"name,omitempty"`
	RepoURL     *string `json:"repo_url,omitempty"`
	Branch      *string `json:"branch,omitempty"`
	ComposePath *string `json:"compose_path,omitempty"`
	Descriptor  *string `json:"descriptor,omitempty"`
	AutoUpdate  *bool   `json:"auto_update,omitempty"`
}

// DeployRequest is the optional body of a deploy call.
type DeployRequest struct {
	Force bool `json:"force,omitempty"`

	// Wait blocks the request until the run resolves.
	Wait bool `json:"wait,omitempty"`
}

// UninstallRequest is the optional body of an uninstall call.
type UninstallRequest struct {
	PreserveData bool `json:"preserve_data,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// AppResponse is an application with its queue state.
type AppResponse struct {
	domain.Application
	Queued   bool `json:"queued"`
	Building bool `json:"building"`
}

// ListAppsResponse is the response for listing applications.
type ListAppsResponse struct {
	Apps  []AppResponse `json:"apps"`
	Total int           `json:"total"`
}

// DeployResponse reports admission and, when waited for, the result.
type DeployResponse struct {
	Accepted bool           `json:"accepted"`
	Job      domain.Job     `json:"job"`
	Result   *domain.Result `json:"result,omitempty"`
}

// LifecycleResponse reports a start, stop or uninstall outcome.
type LifecycleResponse struct {
	AppID   string `json:"app_id"`
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
}

// LogEntry is one event in an application's backlog.
type LogEntry struct {
	Kind     string           `json:"kind"`
	Severity string           `json:"severity,omitempty"`
	Message  string           `json:"message,omitempty"`
	Status   domain.AppStatus `json:"status,omitempty"`
	Progress int              `json:"progress,omitempty"`
	Time     time.Time        `json:"time"`
}

// LogsResponse is the response for an application's recent events.
type LogsResponse struct {
	AppID   string     `json:"app_id"`
	Entries []LogEntry `json:"entries"`
}

// ListJobsResponse is the response for job history.
type ListJobsResponse struct {
	Jobs  []domain.Job `json:"jobs"`
	Total int          `json:"total"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
