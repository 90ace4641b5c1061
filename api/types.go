package api

import (
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// =============================================================================
// Jobs
// =============================================================================

// SubmitJobRequest is the body of POST /v1/video-analysis/jobs.
type SubmitJobRequest = types.JobConfig

// SubmitJobResponse acknowledges a submission.
type SubmitJobResponse struct {
	JobID     string          `json:"job_id"`
	Status    types.JobStatus `json:"status"`
	StatusURL string          `json:"status_url"`
}

// JobView is the externally visible state of a job. Result appears only
// when the job succeeded; PartialResult only while it is running.
type JobView struct {
	JobID         string               `json:"job_id"`
	Mode          types.JobMode        `json:"mode"`
	Status        types.JobStatus      `json:"status"`
	Progress      types.Progress       `json:"progress"`
	Result        *types.Result        `json:"result,omitempty"`
	PartialResult *types.PartialResult `json:"partial_result,omitempty"`
	Error         *types.JobError      `json:"error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// NewJobView projects a stored job onto its API view.
func NewJobView(job *types.Job) *JobView {
	v := &JobView{
		JobID:       job.ID,
		Mode:        job.Mode,
		Status:      job.Status,
		Progress:    job.Progress,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	switch job.Status {
	case types.JobStatusSucceeded:
		v.Result = job.Result
	case types.JobStatusRunning:
		v.PartialResult = job.PartialResult
	case types.JobStatusFailed:
		v.Error = job.Error
	}
	return v
}

// JobListResponse is returned by GET /v1/video-analysis/jobs.
type JobListResponse struct {
	Jobs  []*JobView `json:"jobs"`
	Total int        `json:"total"`
}

// JobStatusURL returns the status URL of a job.
func JobStatusURL(jobID string) string {
	return "/v1/video-analysis/jobs/" + jobID
}

// =============================================================================
// Virtual motion
// =============================================================================

// CreateVirtualMotionResponse acknowledges a virtual motion sub-job.
type CreateVirtualMotionResponse struct {
	SubtaskID string          `json:"subtask_id"`
	Status    types.JobStatus `json:"status"`
	StatusURL string          `json:"status_url"`
}

// VirtualMotionStatusURL returns the status URL of a virtual motion sub-job.
func VirtualMotionStatusURL(id string) string {
	return "/v1/video-analysis/virtual-motion/jobs/" + id
}

// =============================================================================
// Terminology
// =============================================================================

// ShotTranslation maps a term key to its Chinese name.
type ShotTranslation struct {
	Key         string `json:"key"`
	ChineseName string `json:"chinese_name"`
}

// ShotDetail is a single catalogue entry.
type ShotDetail struct {
	Key         string `json:"key"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	NameEn      string `json:"name_en"`
	Abbr        string `json:"abbr"`
	Description string `json:"description"`
}
