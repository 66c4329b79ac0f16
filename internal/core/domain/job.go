package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Job
// =============================================================================

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsActive reports whether the job still holds its application's single-flight slot.
func (s JobStatus) IsActive() bool {
	return s == JobQueued || s == JobRunning
}

// Job is one admitted deployment request.
type Job struct {
	ID         string     `json:"id"`
	AppID      string     `json:"app_id"`
	Force      bool       `json:"force"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a queued job.
func NewJob(appID string, force bool, now time.Time) Job {
	return Job{
		ID:        uuid.New().String(),
		AppID:     appID,
		Force:     force,
		Status:    JobQueued,
		CreatedAt: now,
	}
}

// Start marks the job running.
func (j *Job) Start(now time.Time) {
	j.Status = JobRunning
	j.StartedAt = &now
}

// Finish marks the job terminal. A nil err completes it.
func (j *Job) Finish(now time.Time, err error) {
	j.FinishedAt = &now
	if err != nil {
		j.Status = JobFailed
		j.Error = err.Error()
		return
	}
	j.Status = JobCompleted
}

// WaitTime returns how long the job has waited (or waited) before starting.
func (j Job) WaitTime(now time.Time) time.Duration {
	if j.StartedAt != nil {
		return j.StartedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}

// Duration returns the run time of a finished job.
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// Result is what a submitter receives once its job is resolved.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
