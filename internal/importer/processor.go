package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/glpi"
)

// TicketGateway is the remote surface the workflow drives.
type TicketGateway interface {
	CreateTicket(ctx context.Context, name, content string, extra domain.Fields) (int, error)
	AttachActors(ctx context.Context, ticketID int, kind domain.ActorKind, actors []domain.ActorSpec) ([]domain.OperationOutcome, error)
	UpdateStatus(ctx context.Context, ticketID, status int) (bool, error)
	AddTask(ctx context.Context, ticketID int, content string, extra domain.Fields) (int, error)
	Reauthenticate(ctx context.Context) error
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options tune the per-record workflow.
type Options struct {
	SettleDelay   time.Duration
	DefaultStatus int
	Sleep         Sleeper
	Logger        *zap.Logger
}

// DefaultStatus is the status applied after actors are attached when the
// row has no status column (2 = assigned).
const DefaultStatus = 2

// Processor runs the ticket workflow for every row of a table.
type Processor struct {
	gateway       TicketGateway
	artifacts     ArtifactStore
	reporter      ProgressReporter
	logger        *zap.Logger
	settleDelay   time.Duration
	defaultStatus int
	sleep         Sleeper
}

// NewProcessor wires a processor. A nil reporter discards progress.
func NewProcessor(gateway TicketGateway, artifacts ArtifactStore, reporter ProgressReporter, opts Options) *Processor {
	if reporter == nil {
		reporter = NopReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	status := opts.DefaultStatus
	if status <= 0 {
		status = DefaultStatus
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return &Processor{
		gateway:       gateway,
		artifacts:     artifacts,
		reporter:      reporter,
		logger:        logger,
		settleDelay:   opts.SettleDelay,
		defaultStatus: status,
		sleep:         sleep,
	}
}

// Run processes every row in order, saves the artifact and returns the
// batch result. A returned error is fatal: the batch is failed and no
// artifact exists.
func (p *Processor) Run(ctx context.Context, jobID string, table *Table) (domain.BatchResult, error) {
	logger := p.logger.With(zap.String("job_id", jobID))
	result := domain.BatchResult{JobID: jobID, Header: table.Header}
	total := len(table.Rows)

	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return failedBatch(jobID, err), err
		}
		p.reporter.Progress(ctx, i+1, total)

		rowResult, err := p.processRow(ctx, row)
		if err != nil {
			logger.Error("import aborted", zap.Int("row", row.Record.Row), zap.Error(err))
			return failedBatch(jobID, err), err
		}
		logger.Info("row processed",
			zap.Int("row", row.Record.Row),
			zap.Int("ticket_id", rowResult.TicketID),
			zap.Int("task_id", rowResult.TaskID),
			zap.String("state", string(rowResult.State)),
			zap.String("result", rowResult.Result),
		)
		result.Rows = append(result.Rows, rowResult)
		if rowResult.Failed() {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", rowResult.Record.Row, rowResult.Result))
		}
	}

	ref, err := p.artifacts.Save(ctx, jobID, table.Header, result.Rows)
	if err != nil {
		artifactErr := &ArtifactError{JobID: jobID, Err: err}
		return failedBatch(jobID, artifactErr), artifactErr
	}
	result.ArtifactRef = ref
	result.Status = domain.BatchCompleted
	if len(result.Errors) > 0 {
		result.Status = domain.BatchCompletedWithErrors
	}
	return result, nil
}

// processRow returns a non-nil error only when the job must stop.
func (p *Processor) processRow(ctx context.Context, row ParsedRow) (domain.RowResult, error) {
	res := domain.RowResult{Record: row.Record, State: domain.StateStart}
	if row.Err != nil {
		return failRow(res, row.Err), nil
	}
	rec := row.Record

	ticketID, err := retryOnExpiry(ctx, p.gateway, func() (int, error) {
		return p.gateway.CreateTicket(ctx, rec.Name, rec.Content, rec.TicketFields)
	})
	if err != nil {
		return p.rowError(ctx, res, err)
	}
	res.TicketID = ticketID
	res.State = domain.StateTicketCreated

	closed := rec.IsClosed()
	if rec.HasActors() {
		if err := p.attachActors(ctx, &res); err != nil {
			return p.rowError(ctx, res, err)
		}
		res.State = domain.StateActorsAttached

		if err := p.sleep(ctx, p.settleDelay); err != nil {
			return res, err
		}
		applied, err := p.updateStatus(ctx, &res)
		if err != nil {
			return p.rowError(ctx, res, err)
		}
		if applied == domain.ClosedStatus {
			closed = true
		}
	}

	if !closed {
		taskID, err := retryOnExpiry(ctx, p.gateway, func() (int, error) {
			return p.gateway.AddTask(ctx, ticketID, rec.TaskContent, rec.TaskFields)
		})
		if err != nil {
			return p.rowError(ctx, res, err)
		}
		res.TaskID = taskID
		res.State = domain.StateTaskCreated
	}

	res.State = domain.StateDone
	res.Result = domain.ResultOK
	return res, nil
}

// attachActors parses both lists before touching the ticket, then attaches
// users and groups. Per-actor failures are outcomes, not row errors.
func (p *Processor) attachActors(ctx context.Context, res *domain.RowResult) error {
	users, err := glpi.ParseActors(res.Record.UserActors, domain.ActorKindUser)
	if err != nil {
		return err
	}
	groups, err := glpi.ParseActors(res.Record.GroupActors, domain.ActorKindGroup)
	if err != nil {
		return err
	}

	res.UserOutcomes, err = p.attach(ctx, res.TicketID, domain.ActorKindUser, users)
	if err != nil {
		return err
	}
	res.GroupOutcomes, err = p.attach(ctx, res.TicketID, domain.ActorKindGroup, groups)
	return err
}

// attach resumes after the outcomes already gathered when the session
// expired mid-list, so no actor is posted twice.
func (p *Processor) attach(ctx context.Context, ticketID int, kind domain.ActorKind, actors []domain.ActorSpec) ([]domain.OperationOutcome, error) {
	outcomes, err := p.gateway.AttachActors(ctx, ticketID, kind, actors)
	if !glpi.IsKind(err, glpi.KindAuthExpired) {
		return outcomes, err
	}
	if err := p.gateway.Reauthenticate(ctx); err != nil {
		return outcomes, err
	}
	if len(outcomes) > len(actors) {
		outcomes = outcomes[:len(actors)]
	}
	rest, err := p.gateway.AttachActors(ctx, ticketID, kind, actors[len(outcomes):])
	return append(outcomes, rest...), err
}

// statusFor picks the status column, then the ticket.status extra, then the
// configured default.
func (p *Processor) statusFor(rec domain.TicketRecord) int {
	if rec.Status != nil {
		return *rec.Status
	}
	if status, ok := rec.TicketFields.Int("status"); ok {
		return status
	}
	return p.defaultStatus
}

// updateStatus returns the status GLPI accepted, or zero when the update was
// refused.
func (p *Processor) updateStatus(ctx context.Context, res *domain.RowResult) (int, error) {
	status := p.statusFor(res.Record)
	ok, err := retryOnExpiry(ctx, p.gateway, func() (bool, error) {
		return p.gateway.UpdateStatus(ctx, res.TicketID, status)
	})
	if glpi.IsFatal(err) {
		return 0, err
	}
	outcome := domain.OperationOutcome{
		Action:   domain.ActionUpdateStatus,
		TicketID: res.TicketID,
		Success:  ok,
	}
	if err != nil {
		outcome.Detail = err.Error()
		p.logger.Warn("status update refused", zap.Int("ticket_id", res.TicketID), zap.Int("status", status), zap.Error(err))
	}
	res.StatusUpdate = &outcome
	if !ok {
		return 0, nil
	}
	res.State = domain.StateStatusUpdated
	return status, nil
}

// rowError stops the job for fatal kinds and cancellation, otherwise it
// marks only the row as failed.
func (p *Processor) rowError(ctx context.Context, res domain.RowResult, err error) (domain.RowResult, error) {
	if glpi.IsFatal(err) {
		return res, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return failRow(res, err), nil
}

// retryOnExpiry runs call and, when the session expired, re-authenticates
// once and replays it once. A second expiry comes back as-is and is fatal.
func retryOnExpiry[T any](ctx context.Context, gateway TicketGateway, call func() (T, error)) (T, error) {
	v, err := call()
	if !glpi.IsKind(err, glpi.KindAuthExpired) {
		return v, err
	}
	if rerr := gateway.Reauthenticate(ctx); rerr != nil {
		var zero T
		return zero, rerr
	}
	return call()
}

func failRow(res domain.RowResult, err error) domain.RowResult {
	res.State = domain.StateFailed
	res.Result = err.Error()
	return res
}

func failedBatch(jobID string, err error) domain.BatchResult {
	return domain.BatchResult{
		JobID:  jobID,
		Status: domain.BatchFailed,
		Errors: []string{err.Error()},
	}
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsFatal reports whether err ends a job rather than a row.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var artifactErr *ArtifactError
	var inputErr *InputError
	return glpi.IsFatal(err) || errors.As(err, &artifactErr) || errors.As(err, &inputErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
