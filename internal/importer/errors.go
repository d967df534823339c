package importer

import (
	"errors"
	"fmt"
)

// ErrArtifactNotFound is returned when no artifact exists for a job.
var ErrArtifactNotFound = errors.New("artifact not found")

// InputError reports an unreadable or malformed source file. It is always
// raised before any row is processed.
type InputError struct {
	Path string
	Line int
	Err  error
}

func (e *InputError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse input %s line %d: %v", e.Path, e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("parse input %s: %v", e.Path, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("parse input line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse input: %v", e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ArtifactError reports that the result table could not be persisted.
type ArtifactError struct {
	JobID string
	Err   error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("write artifact for job %s: %v", e.JobID, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// RowError reports a row that cannot be turned into a ticket record.
type RowError struct {
	Column string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("column %s: %s", e.Column, e.Reason)
}
