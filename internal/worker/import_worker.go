package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/events"
	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/observability"
	"github.com/spec-kit/ticket-importer/internal/queue"
)

const errorBackoff = time.Second

// JobSource hands out queued jobs.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (domain.JobMessage, error)
}

// JobRunner executes one job.
type JobRunner interface {
	Execute(ctx context.Context, msg domain.JobMessage, reporter importer.ProgressReporter) (domain.BatchResult, error)
}

// ReporterFactory builds the progress sink of a job.
type ReporterFactory func(jobID string) importer.ProgressReporter

// Config wires an ImportWorker.
type Config struct {
	Source      JobSource
	Runner      JobRunner
	Reporters   ReporterFactory
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Concurrency int
	PopTimeout  time.Duration
}

// ImportWorker pulls jobs from the queue and runs them, one job per
// goroutine at a time.
type ImportWorker struct {
	cfg    Config
	logger *zap.Logger
}

// NewImportWorker applies defaults to cfg.
func NewImportWorker(cfg Config) *ImportWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Reporters == nil {
		cfg.Reporters = func(string) importer.ProgressReporter { return importer.NopReporter{} }
	}
	return &ImportWorker{cfg: cfg, logger: cfg.Logger}
}

// Run blocks until ctx is cancelled and every loop has returned.
func (w *ImportWorker) Run(ctx context.Context) {
	w.logger.Info("import worker started", zap.Int("concurrency", w.cfg.Concurrency))
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()
	w.logger.Info("import worker stopped")
}

func (w *ImportWorker) loop(ctx context.Context, slot int) {
	logger := w.logger.With(zap.Int("slot", slot))
	for ctx.Err() == nil {
		msg, err := w.cfg.Source.Dequeue(ctx, w.cfg.PopTimeout)
		switch {
		case err == nil:
			w.Handle(ctx, msg)
		case errors.Is(err, queue.ErrNoJob), ctx.Err() != nil:
		default:
			logger.Warn("dequeue failed", zap.Error(err))
			_ = importer.SleepContext(ctx, errorBackoff)
		}
	}
}

// Handle runs one job and publishes its lifecycle events.
func (w *ImportWorker) Handle(ctx context.Context, msg domain.JobMessage) domain.BatchResult {
	logger := w.logger.With(zap.String("job_id", msg.JobID))
	started := time.Now()
	w.publish(ctx, events.NewEvent(events.EventJobStarted, msg.JobID, events.JobStartedPayload{
		InputPath:   msg.InputPath,
		SubmittedBy: msg.SubmittedBy,
		StartedAt:   started.UTC(),
	}))

	reporter := importer.MultiReporter{
		w.cfg.Reporters(msg.JobID),
		importer.NewLogReporter(logger, msg.JobID),
	}
	result, err := w.cfg.Runner.Execute(ctx, msg, reporter)
	w.cfg.Metrics.RecordJob(string(result.Status), len(result.Rows), result.FailedRows(), time.Since(started))

	if err != nil {
		w.publish(ctx, events.NewEvent(events.EventJobFailed, msg.JobID, events.JobFailedPayload{Error: err.Error()}))
		return result
	}
	w.publish(ctx, events.NewEvent(events.EventJobFinished, msg.JobID, events.JobFinishedPayload{
		Status:      result.Status,
		TotalRows:   len(result.Rows),
		FailedRows:  result.FailedRows(),
		ArtifactRef: result.ArtifactRef,
		Errors:      result.Errors,
	}))
	return result
}

func (w *ImportWorker) publish(ctx context.Context, event events.Event) {
	if w.cfg.Dispatcher == nil {
		return
	}
	if err := w.cfg.Dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		w.logger.Warn("event handler failed", zap.String("job_id", event.JobID), zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
