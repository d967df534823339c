package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/events"
	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/queue"
	"github.com/spec-kit/ticket-importer/internal/repository"
	apperrors "github.com/spec-kit/ticket-importer/pkg/util/errorutil"
)

// UploadSuffix is appended to the job id to name a stored upload.
const UploadSuffix = ".csv"

// JobQueue accepts jobs for the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, msg domain.JobMessage) error
}

// JobStates reads and seeds polled job states.
type JobStates interface {
	MarkPending(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	Get(ctx context.Context, jobID string) (domain.JobStatus, error)
}

// ArtifactReader exposes processed files.
type ArtifactReader interface {
	Load(ctx context.Context, jobID string) (*importer.Artifact, error)
	Path(jobID string) (string, error)
}

// ImportDependencies bundles the collaborators of ImportService.
type ImportDependencies struct {
	Queue      JobQueue
	States     JobStates
	Artifacts  ArtifactReader
	History    repository.JobRunRepository
	Dispatcher events.Dispatcher
	UploadDir  string
	Logger     *zap.Logger
}

// ImportService accepts uploads and answers job queries.
type ImportService struct {
	queue      JobQueue
	states     JobStates
	artifacts  ArtifactReader
	history    repository.JobRunRepository
	dispatcher events.Dispatcher
	uploadDir  string
	logger     *zap.Logger
	newID      func() string
	now        func() time.Time
}

// NewImportService builds the service.
func NewImportService(deps ImportDependencies) *ImportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		queue:      deps.Queue,
		states:     deps.States,
		artifacts:  deps.Artifacts,
		history:    deps.History,
		dispatcher: deps.Dispatcher,
		uploadDir:  deps.UploadDir,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Submit stores the upload under a new job id, marks it pending and queues
// it for a worker.
func (s *ImportService) Submit(ctx context.Context, filename string, content io.Reader, submittedBy string) (domain.JobStatus, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return domain.JobStatus{}, apperrors.NewValidationError("only .csv files are accepted", map[string]any{"file": filename})
	}

	jobID := s.newID()
	path, err := s.saveUpload(jobID, content)
	if err != nil {
		return domain.JobStatus{}, apperrors.NewInternalError(err)
	}

	if err := s.states.MarkPending(ctx, jobID); err != nil {
		_ = os.Remove(path)
		return domain.JobStatus{}, apperrors.NewServiceUnavailable("job state backend unavailable", err)
	}
	msg := domain.JobMessage{
		JobID:       jobID,
		InputPath:   path,
		SubmittedBy: submittedBy,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		_ = os.Remove(path)
		if markErr := s.states.MarkFailed(context.WithoutCancel(ctx), jobID, "job queue unavailable"); markErr != nil {
			s.logger.Warn("job left pending after enqueue failure", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return domain.JobStatus{}, apperrors.NewServiceUnavailable("job queue unavailable", err)
	}

	s.logger.Info("import submitted", zap.String("job_id", jobID), zap.String("file", filename), zap.String("submitted_by", submittedBy))
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventJobSubmitted, jobID, events.JobSubmittedPayload{
			InputPath:   path,
			SubmittedBy: submittedBy,
		}))
	}
	return domain.JobStatus{JobID: jobID, State: domain.JobStatePending, UpdatedAt: msg.SubmittedAt}, nil
}

// Status returns the polled state of a job.
func (s *ImportService) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	status, err := s.states.Get(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return domain.JobStatus{}, apperrors.NewNotFound("job", map[string]any{"job_id": jobID})
	}
	if err != nil {
		return domain.JobStatus{}, apperrors.NewServiceUnavailable("job state backend unavailable", err)
	}
	return status, nil
}

// Result reads the processed file of a finished job.
func (s *ImportService) Result(ctx context.Context, jobID string) (*importer.Artifact, error) {
	artifact, err := s.artifacts.Load(ctx, jobID)
	if err == nil {
		return artifact, nil
	}
	return nil, s.artifactError(ctx, jobID, err)
}

// ArtifactPath returns the file to stream for a finished job.
func (s *ImportService) ArtifactPath(ctx context.Context, jobID string) (string, error) {
	path, err := s.artifacts.Path(jobID)
	if err != nil {
		return "", apperrors.NewValidationError("invalid job id", map[string]any{"job_id": jobID})
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = importer.ErrArtifactNotFound
		}
		return "", s.artifactError(ctx, jobID, err)
	}
	return path, nil
}

// History lists recent job runs.
func (s *ImportService) History(ctx context.Context, limit, offset int) ([]domain.JobRun, error) {
	if s.history == nil {
		return nil, apperrors.NewServiceUnavailable("job history disabled", repository.ErrHistoryDisabled)
	}
	runs, err := s.history.List(ctx, limit, offset)
	if errors.Is(err, repository.ErrHistoryDisabled) {
		return nil, apperrors.NewServiceUnavailable("job history disabled", err)
	}
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// artifactError distinguishes a job that is still running from one that
// never produced a file.
func (s *ImportService) artifactError(ctx context.Context, jobID string, err error) error {
	if !errors.Is(err, importer.ErrArtifactNotFound) {
		if _, pathErr := s.artifacts.Path(jobID); pathErr != nil {
			return apperrors.NewValidationError("invalid job id", map[string]any{"job_id": jobID})
		}
		return apperrors.NewInternalError(err)
	}
	status, stateErr := s.states.Get(ctx, jobID)
	if stateErr == nil {
		switch status.State {
		case domain.JobStatePending, domain.JobStateProgress:
			return apperrors.NewConflict("job has not finished", map[string]any{"job_id": jobID, "state": status.State})
		case domain.JobStateFailure:
			return apperrors.NewConflict("job failed without a result", map[string]any{"job_id": jobID, "error": status.Error})
		}
	}
	return apperrors.NewNotFound("artifact", map[string]any{"job_id": jobID})
}

func (s *ImportService) saveUpload(jobID string, content io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.uploadDir, "."+jobID+"-*.part")
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	path := filepath.Join(s.uploadDir, jobID+UploadSuffix)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
