package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/events"
	"github.com/spec-kit/ticket-importer/internal/repository"
)

// JobHistoryService records job lifecycle events in the job_runs table.
type JobHistoryService struct {
	dispatcher events.Dispatcher
	runs       repository.JobRunRepository
	logger     *zap.Logger
}

// NewJobHistoryService creates the service.
func NewJobHistoryService(dispatcher events.Dispatcher, runs repository.JobRunRepository, logger *zap.Logger) *JobHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHistoryService{
		dispatcher: dispatcher,
		runs:       runs,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (h *JobHistoryService) RegisterHandlers() {
	if h.dispatcher == nil || h.runs == nil {
		return
	}
	h.dispatcher.Subscribe(events.EventJobSubmitted, h.handleJobSubmitted)
	h.dispatcher.Subscribe(events.EventJobStarted, h.handleJobStarted)
	h.dispatcher.Subscribe(events.EventJobFinished, h.handleJobFinished)
	h.dispatcher.Subscribe(events.EventJobFailed, h.handleJobFailed)
}

func (h *JobHistoryService) handleJobSubmitted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.JobSubmittedPayload)
	run := &domain.JobRun{
		ID:          event.JobID,
		InputPath:   payload.InputPath,
		SubmittedBy: payload.SubmittedBy,
		StartedAt:   event.Timestamp,
	}
	return h.ignoreDisabled(h.runs.Start(ctx, run), event)
}

func (h *JobHistoryService) handleJobStarted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.JobStartedPayload)
	run := &domain.JobRun{
		ID:          event.JobID,
		InputPath:   payload.InputPath,
		SubmittedBy: payload.SubmittedBy,
		StartedAt:   payload.StartedAt,
	}
	return h.ignoreDisabled(h.runs.Start(ctx, run), event)
}

func (h *JobHistoryService) handleJobFinished(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.JobFinishedPayload)
	finished := event.Timestamp
	run := &domain.JobRun{
		ID:          event.JobID,
		Status:      payload.Status,
		TotalRows:   payload.TotalRows,
		FailedRows:  payload.FailedRows,
		ArtifactRef: payload.ArtifactRef,
		Errors:      payload.Errors,
		FinishedAt:  &finished,
	}
	return h.ignoreDisabled(h.runs.Finish(ctx, run), event)
}

func (h *JobHistoryService) handleJobFailed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.JobFailedPayload)
	finished := event.Timestamp
	run := &domain.JobRun{
		ID:         event.JobID,
		Status:     domain.BatchFailed,
		Errors:     []string{payload.Error},
		FinishedAt: &finished,
	}
	return h.ignoreDisabled(h.runs.Finish(ctx, run), event)
}

func (h *JobHistoryService) ignoreDisabled(err error, event events.Event) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrHistoryDisabled) {
		h.logger.Debug("job history disabled", zap.String("job_id", event.JobID), zap.String("event_type", string(event.Type)))
		return nil
	}
	h.logger.Warn("job history not recorded",
		zap.String("job_id", event.JobID),
		zap.String("event_type", string(event.Type)),
		zap.Error(err))
	return err
}
