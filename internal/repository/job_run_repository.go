package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// ErrHistoryDisabled is returned when no database is configured.
var ErrHistoryDisabled = errors.New("job history disabled")

// JobRunRepository encapsulates job history persistence.
type JobRunRepository interface {
	Start(ctx context.Context, run *domain.JobRun) error
	Finish(ctx context.Context, run *domain.JobRun) error
	GetByID(ctx context.Context, id string) (*domain.JobRun, error)
	List(ctx context.Context, limit, offset int) ([]domain.JobRun, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobRunRepository struct {
	pool *pgxpool.Pool
}

// NewJobRunRepository instantiates repository. A nil pool yields a
// repository that reports ErrHistoryDisabled.
func NewJobRunRepository(pool *pgxpool.Pool) JobRunRepository {
	return &jobRunRepository{pool: pool}
}

func (r *jobRunRepository) Start(ctx context.Context, run *domain.JobRun) error {
	if r.pool == nil {
		return ErrHistoryDisabled
	}
	const query = `
        INSERT INTO job_runs (id, input_path, submitted_by, started_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET input_path=EXCLUDED.input_path, started_at=EXCLUDED.started_at,
            status='', finished_at=NULL`
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, query, run.ID, run.InputPath, run.SubmittedBy, run.StartedAt)
	return err
}

func (r *jobRunRepository) Finish(ctx context.Context, run *domain.JobRun) error {
	if r.pool == nil {
		return ErrHistoryDisabled
	}
	const query = `
        UPDATE job_runs SET status=$1, total_rows=$2, failed_rows=$3, artifact_ref=$4, errors=$5, finished_at=$6
        WHERE id=$7`
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	cmd, err := r.pool.Exec(ctx, query,
		string(run.Status),
		run.TotalRows,
		run.FailedRows,
		run.ArtifactRef,
		errs,
		finished,
		run.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	run.FinishedAt = &finished
	return nil
}

func (r *jobRunRepository) GetByID(ctx context.Context, id string) (*domain.JobRun, error) {
	if r.pool == nil {
		return nil, ErrHistoryDisabled
	}
	const query = `
        SELECT id, input_path, submitted_by, status, total_rows, failed_rows, artifact_ref, errors, started_at, finished_at
        FROM job_runs WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	run, err := scanJobRun(row)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *jobRunRepository) List(ctx context.Context, limit, offset int) ([]domain.JobRun, error) {
	if r.pool == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, input_path, submitted_by, status, total_rows, failed_rows, artifact_ref, errors, started_at, finished_at
        FROM job_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.JobRun, 0)
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *jobRunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, ErrHistoryDisabled
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM job_runs WHERE finished_at IS NOT NULL AND finished_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanJobRun(row pgx.Row) (*domain.JobRun, error) {
	var (
		run    domain.JobRun
		status string
	)
	if err := row.Scan(
		&run.ID,
		&run.InputPath,
		&run.SubmittedBy,
		&status,
		&run.TotalRows,
		&run.FailedRows,
		&run.ArtifactRef,
		&run.Errors,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = domain.BatchStatus(status)
	return &run, nil
}
