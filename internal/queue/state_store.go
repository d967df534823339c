package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

// StateStore keeps the polled status of every job in Redis with a TTL.
type StateStore struct {
	client Commands
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStateStore builds a store writing keys as prefix+jobID.
func NewStateStore(client Commands, prefix string, ttl time.Duration) *StateStore {
	return &StateStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// Get returns the last stored status of jobID.
func (s *StateStore) Get(ctx context.Context, jobID string) (domain.JobStatus, error) {
	raw, err := s.client.Get(ctx, s.prefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.JobStatus{}, ErrJobNotFound
	}
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("get job state %s: %w", jobID, err)
	}
	var status domain.JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return domain.JobStatus{}, fmt.Errorf("decode job state %s: %w", jobID, err)
	}
	return status, nil
}

// Set overwrites the status of a job.
func (s *StateStore) Set(ctx context.Context, status domain.JobStatus) error {
	if status.JobID == "" {
		return errors.New("job state without job id")
	}
	status.UpdatedAt = s.now().UTC()
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode job state %s: %w", status.JobID, err)
	}
	if err := s.client.Set(ctx, s.prefix+status.JobID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set job state %s: %w", status.JobID, err)
	}
	return nil
}

// MarkPending records a freshly submitted job.
func (s *StateStore) MarkPending(ctx context.Context, jobID string) error {
	return s.Set(ctx, domain.JobStatus{JobID: jobID, State: domain.JobStatePending})
}

// MarkFailed records a job that will never run.
func (s *StateStore) MarkFailed(ctx context.Context, jobID, reason string) error {
	return s.Set(ctx, domain.JobStatus{JobID: jobID, State: domain.JobStateFailure, Status: domain.BatchFailed, Error: reason})
}

// Reporter returns a progress sink writing into this store for jobID.
func (s *StateStore) Reporter(jobID string, logger *zap.Logger) *StateReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateReporter{store: s, jobID: jobID, logger: logger.With(zap.String("job_id", jobID))}
}

// StateReporter translates workflow progress into job states. Write
// failures are logged and otherwise ignored.
type StateReporter struct {
	store  *StateStore
	jobID  string
	logger *zap.Logger
}

func (r *StateReporter) Progress(ctx context.Context, current, total int) {
	r.write(ctx, domain.JobStatus{
		JobID:   r.jobID,
		State:   domain.JobStateProgress,
		Current: current,
		Total:   total,
	})
}

func (r *StateReporter) Succeeded(ctx context.Context, result domain.BatchResult) {
	r.write(ctx, domain.JobStatus{
		JobID:       r.jobID,
		State:       domain.JobStateSuccess,
		Current:     len(result.Rows),
		Total:       len(result.Rows),
		Status:      result.Status,
		ArtifactRef: result.ArtifactRef,
		Errors:      result.Errors,
	})
}

func (r *StateReporter) Failed(ctx context.Context, err error) {
	r.write(ctx, domain.JobStatus{
		JobID:  r.jobID,
		State:  domain.JobStateFailure,
		Status: domain.BatchFailed,
		Error:  err.Error(),
	})
}

func (r *StateReporter) write(ctx context.Context, status domain.JobStatus) {
	// Terminal states must land even when the job context was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.Set(ctx, status); err != nil {
		r.logger.Warn("job state not stored", zap.String("state", string(status.State)), zap.Error(err))
	}
}
