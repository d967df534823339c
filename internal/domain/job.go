package domain

import "time"

// JobState mirrors the states a polling client observes.
type JobState string

const (
	JobStatePending  JobState = "PENDING"
	JobStateProgress JobState = "PROGRESS"
	JobStateSuccess  JobState = "SUCCESS"
	JobStateFailure  JobState = "FAILURE"
)

// JobMessage is the queue payload that asks a worker to run an import.
type JobMessage struct {
	JobID       string    `json:"job_id"`
	InputPath   string    `json:"input_path"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// JobStatus is the polled view of a job.
type JobStatus struct {
	JobID       string      `json:"job_id"`
	State       JobState    `json:"state"`
	Current     int         `json:"current,omitempty"`
	Total       int         `json:"total,omitempty"`
	Status      BatchStatus `json:"status,omitempty"`
	ArtifactRef string      `json:"artifact_ref,omitempty"`
	Errors      []string    `json:"errors,omitempty"`
	Error       string      `json:"error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// JobRun is the durable history entry of a job. Status stays empty and
// FinishedAt nil while the job runs.
type JobRun struct {
	ID          string
	InputPath   string
	SubmittedBy string
	Status      BatchStatus
	TotalRows   int
	FailedRows  int
	ArtifactRef string
	Errors      []string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Running reports whether the job has not finished yet.
func (r JobRun) Running() bool {
	return r.FinishedAt == nil
}
