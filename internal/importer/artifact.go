package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// Columns appended to the input header in the processed file.
const (
	ColumnCreatedTicketID   = "created_ticket_id"
	ColumnCreatedTaskID     = "created_task_id"
	ColumnUserActorResults  = "user_actor_results"
	ColumnGroupActorResults = "group_actor_results"
	ColumnStatusUpdated     = "status_updated"
	ColumnResult            = "result"
)

// ResultColumns lists the appended columns in output order.
var ResultColumns = []string{
	ColumnCreatedTicketID,
	ColumnCreatedTaskID,
	ColumnUserActorResults,
	ColumnGroupActorResults,
	ColumnStatusUpdated,
	ColumnResult,
}

const artifactSuffix = "_processed.csv"

// ArtifactStore persists the result table of a job.
type ArtifactStore interface {
	Save(ctx context.Context, jobID string, header []string, rows []domain.RowResult) (string, error)
}

// Artifact is a processed file read back for display.
type Artifact struct {
	Header []string
	Rows   [][]string
}

// FileArtifactStore keeps artifacts as CSV files in one directory.
type FileArtifactStore struct {
	dir string
}

// NewFileArtifactStore returns a store rooted at dir.
func NewFileArtifactStore(dir string) *FileArtifactStore {
	return &FileArtifactStore{dir: dir}
}

// Dir returns the root directory.
func (s *FileArtifactStore) Dir() string {
	return s.dir
}

// Path returns where the artifact of jobID lives.
func (s *FileArtifactStore) Path(jobID string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, jobID+artifactSuffix), nil
}

// Save writes the table to a temp file and renames it into place so readers
// never see a partial artifact.
func (s *FileArtifactStore) Save(ctx context.Context, jobID string, header []string, rows []domain.RowResult) (string, error) {
	path, err := s.Path(jobID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+jobID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeTable(tmp, header, rows); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return path, nil
}

// Load reads an artifact back.
func (s *FileArtifactStore) Load(_ context.Context, jobID string) (*Artifact, error) {
	path, err := s.Path(jobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = Separator
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(records) == 0 {
		return &Artifact{}, nil
	}
	return &Artifact{Header: records[0], Rows: records[1:]}, nil
}

// PurgeOlderThan removes artifacts last modified before cutoff and returns
// how many were deleted.
func (s *FileArtifactStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	return PurgeFiles(s.dir, artifactSuffix, cutoff)
}

func writeTable(f *os.File, header []string, rows []domain.RowResult) error {
	keep := keptColumns(header)
	writer := csv.NewWriter(f)
	writer.Comma = Separator

	out := make([]string, 0, len(keep)+len(ResultColumns))
	for _, i := range keep {
		out = append(out, header[i])
	}
	out = append(out, ResultColumns...)
	if err := writer.Write(out); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		out = out[:0]
		for _, i := range keep {
			if i < len(row.Record.Cells) {
				out = append(out, row.Record.Cells[i])
			} else {
				out = append(out, "")
			}
		}
		out = append(out, resultCells(row)...)
		if err := writer.Write(out); err != nil {
			return fmt.Errorf("write row %d: %w", row.Record.Row, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	return nil
}

// keptColumns drops input columns that would collide with result columns,
// which happens when a processed file is imported again.
func keptColumns(header []string) []int {
	reserved := make(map[string]struct{}, len(ResultColumns))
	for _, name := range ResultColumns {
		reserved[name] = struct{}{}
	}
	keep := make([]int, 0, len(header))
	for i, name := range header {
		if _, ok := reserved[name]; ok {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}

func resultCells(row domain.RowResult) []string {
	statusUpdated := ""
	if row.StatusUpdate != nil {
		statusUpdated = strconv.FormatBool(row.StatusUpdate.Success)
	}
	return []string{
		formatID(row.TicketID),
		formatID(row.TaskID),
		formatOutcomes(row.UserOutcomes),
		formatOutcomes(row.GroupOutcomes),
		statusUpdated,
		row.Result,
	}
}

func formatID(id int) string {
	if id <= 0 {
		return ""
	}
	return strconv.Itoa(id)
}

// formatOutcomes renders "5:1=ok,6:2=failed".
func formatOutcomes(outcomes []domain.OperationOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		label := "failed"
		if o.Success {
			label = "ok"
		}
		if o.Actor != nil {
			parts = append(parts, fmt.Sprintf("%d:%d=%s", o.Actor.SubjectID, o.Actor.RoleType, label))
			continue
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, ",")
}

func validateJobID(jobID string) error {
	if jobID == "" || jobID != filepath.Base(jobID) || strings.HasPrefix(jobID, ".") {
		return fmt.Errorf("invalid job id %q", jobID)
	}
	return nil
}

// PurgeFiles removes regular files in dir ending in suffix that were last
// modified before cutoff. A missing dir is not an error.
func PurgeFiles(dir, suffix string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
