package events

import (
	"time"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventJobSubmitted EventType = "job_submitted"
	EventJobStarted   EventType = "job_started"
	EventJobFinished  EventType = "job_finished"
	EventJobFailed    EventType = "job_failed"
)

// Event represents a job lifecycle event emitted by the API and the worker.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	JobID     string      `json:"job_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// JobSubmittedPayload payload.
type JobSubmittedPayload struct {
	InputPath   string `json:"input_path"`
	SubmittedBy string `json:"submitted_by,omitempty"`
}

// JobStartedPayload payload.
type JobStartedPayload struct {
	InputPath   string    `json:"input_path"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// JobFinishedPayload payload.
type JobFinishedPayload struct {
	Status      domain.BatchStatus `json:"status"`
	TotalRows   int                `json:"total_rows"`
	FailedRows  int                `json:"failed_rows"`
	ArtifactRef string             `json:"artifact_ref"`
	Errors      []string           `json:"errors,omitempty"`
}

// JobFailedPayload payload.
type JobFailedPayload struct {
	Error string `json:"error"`
}
