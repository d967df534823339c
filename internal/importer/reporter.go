package importer

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// ProgressReporter receives progress ticks and the terminal status of a job.
// Calls are one-way; implementations handle their own delivery errors.
type ProgressReporter interface {
	Progress(ctx context.Context, current, total int)
	Succeeded(ctx context.Context, result domain.BatchResult)
	Failed(ctx context.Context, err error)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Progress(context.Context, int, int)            {}
func (NopReporter) Succeeded(context.Context, domain.BatchResult) {}
func (NopReporter) Failed(context.Context, error)                 {}

// MultiReporter fans out to every reporter in order.
type MultiReporter []ProgressReporter

func (m MultiReporter) Progress(ctx context.Context, current, total int) {
	for _, r := range m {
		r.Progress(ctx, current, total)
	}
}

func (m MultiReporter) Succeeded(ctx context.Context, result domain.BatchResult) {
	for _, r := range m {
		r.Succeeded(ctx, result)
	}
}

func (m MultiReporter) Failed(ctx context.Context, err error) {
	for _, r := range m {
		r.Failed(ctx, err)
	}
}

// LogReporter writes job progress to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter tags every entry with the job id.
func NewLogReporter(logger *zap.Logger, jobID string) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger.With(zap.String("job_id", jobID))}
}

func (r *LogReporter) Progress(_ context.Context, current, total int) {
	r.logger.Debug("import progress", zap.Int("current", current), zap.Int("total", total))
}

func (r *LogReporter) Succeeded(_ context.Context, result domain.BatchResult) {
	r.logger.Info("import finished",
		zap.String("status", string(result.Status)),
		zap.Int("rows", len(result.Rows)),
		zap.Int("failed_rows", result.FailedRows()),
		zap.String("artifact", result.ArtifactRef),
	)
}

func (r *LogReporter) Failed(_ context.Context, err error) {
	r.logger.Error("import failed", zap.Error(err))
}
