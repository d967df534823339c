package dto

import (
	"time"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// JobStatusResponse is the polled view of an import job.
type JobStatusResponse struct {
	JobID       string             `json:"job_id"`
	State       domain.JobState    `json:"state"`
	Current     int                `json:"current,omitempty"`
	Total       int                `json:"total,omitempty"`
	Percent     *int               `json:"percent,omitempty"`
	Status      domain.BatchStatus `json:"status,omitempty"`
	ArtifactRef string             `json:"artifact_ref,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
	Error       string             `json:"error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ArtifactResponse is a processed file rendered as a table.
type ArtifactResponse struct {
	JobID  string     `json:"job_id"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// JobRunResponse is one history entry.
type JobRunResponse struct {
	ID          string             `json:"id"`
	InputPath   string             `json:"input_path"`
	SubmittedBy string             `json:"submitted_by,omitempty"`
	Status      domain.BatchStatus `json:"status,omitempty"`
	Running     bool               `json:"running"`
	TotalRows   int                `json:"total_rows"`
	FailedRows  int                `json:"failed_rows"`
	ArtifactRef string             `json:"artifact_ref,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at"`
}

// JobStatusFromDomain maps the stored state and derives the progress percent.
func JobStatusFromDomain(s domain.JobStatus) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:       s.JobID,
		State:       s.State,
		Current:     s.Current,
		Total:       s.Total,
		Status:      s.Status,
		ArtifactRef: s.ArtifactRef,
		Errors:      s.Errors,
		Error:       s.Error,
		UpdatedAt:   s.UpdatedAt,
	}
	switch {
	case s.State == domain.JobStateProgress && s.Total > 0:
		pct := s.Current * 100 / s.Total
		resp.Percent = &pct
	case s.State == domain.JobStateSuccess:
		pct := 100
		resp.Percent = &pct
	}
	return resp
}

// JobRunFromDomain maps a history entry.
func JobRunFromDomain(r domain.JobRun) JobRunResponse {
	return JobRunResponse{
		ID:          r.ID,
		InputPath:   r.InputPath,
		SubmittedBy: r.SubmittedBy,
		Status:      r.Status,
		Running:     r.Running(),
		TotalRows:   r.TotalRows,
		FailedRows:  r.FailedRows,
		ArtifactRef: r.ArtifactRef,
		Errors:      r.Errors,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}
