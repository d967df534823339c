package importer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/glpi"
)

// Session is a TicketGateway bound to a live remote session.
type Session interface {
	TicketGateway
	Close(ctx context.Context) error
}

// Connector opens a fresh session for one job.
type Connector func(ctx context.Context) (Session, error)

// GLPIConnector returns a Connector that performs a new GLPI handshake for
// every job.
func GLPIConnector(cfg glpi.SessionConfig) Connector {
	return func(ctx context.Context) (Session, error) {
		client, err := glpi.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Connect          Connector
	Artifacts        ArtifactStore
	Options          Options
	KillSessionOnEnd bool
	Logger           *zap.Logger
}

// Runner executes a whole job: pre-flight, row processing, terminal report.
type Runner struct {
	connect     Connector
	artifacts   ArtifactStore
	options     Options
	killSession bool
	logger      *zap.Logger
}

// NewRunner builds a runner. Each Execute call gets its own session.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := cfg.Options
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Runner{
		connect:     cfg.Connect,
		artifacts:   cfg.Artifacts,
		options:     opts,
		killSession: cfg.KillSessionOnEnd,
		logger:      logger,
	}
}

// Execute runs the job described by msg. Unreadable input or a failed
// handshake fail the job before any row is touched.
func (r *Runner) Execute(ctx context.Context, msg domain.JobMessage, reporter ProgressReporter) (domain.BatchResult, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	logger := r.logger.With(zap.String("job_id", msg.JobID))

	table, err := ReadFile(msg.InputPath)
	if err != nil {
		return r.fail(ctx, reporter, msg.JobID, err)
	}
	logger.Info("input parsed", zap.Int("rows", len(table.Rows)))

	session, err := r.connect(ctx)
	if err != nil {
		return r.fail(ctx, reporter, msg.JobID, err)
	}
	defer r.closeSession(ctx, session, logger)

	result, err := NewProcessor(session, r.artifacts, reporter, r.options).Run(ctx, msg.JobID, table)
	if err != nil {
		reporter.Failed(ctx, err)
		return result, err
	}
	reporter.Succeeded(ctx, result)
	return result, nil
}

func (r *Runner) fail(ctx context.Context, reporter ProgressReporter, jobID string, err error) (domain.BatchResult, error) {
	r.logger.Error("import pre-flight failed", zap.String("job_id", jobID), zap.Error(err))
	reporter.Failed(ctx, err)
	return failedBatch(jobID, err), err
}

func (r *Runner) closeSession(ctx context.Context, session Session, logger *zap.Logger) {
	if !r.killSession {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Warn("kill session failed", zap.Error(err))
	}
}
