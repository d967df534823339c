package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

func TestFileArtifactStoreSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileArtifactStore(filepath.Join(dir, "out"))
	header := []string{"ticket_name", "ticket_content", "task_content", "result"}
	rows := []domain.RowResult{
		{
			Record:   domain.TicketRecord{Row: 1, Cells: []string{"A", "B;semi", "C", "old"}},
			TicketID: 10,
			TaskID:   20,
			UserOutcomes: []domain.OperationOutcome{
				{Action: domain.ActionAddUserActor, Actor: &domain.ActorSpec{SubjectID: 5, RoleType: 1}, Success: true},
				{Action: domain.ActionAddUserActor, Actor: &domain.ActorSpec{SubjectID: 6, RoleType: 2}},
			},
			StatusUpdate: &domain.OperationOutcome{Action: domain.ActionUpdateStatus, Success: true},
			Result:       domain.ResultOK,
		},
		{
			Record: domain.TicketRecord{Row: 2, Cells: []string{"D", "E", "F", ""}},
			Result: "create_ticket: status 500",
		},
	}

	ref, err := store.Save(context.Background(), "job-1", header, rows)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(ref) != "job-1_processed.csv" {
		t.Fatalf("unexpected artifact name %s", ref)
	}

	artifact, err := store.Load(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wantHeader := "ticket_name;ticket_content;task_content;" + strings.Join(ResultColumns, ";")
	if got := strings.Join(artifact.Header, ";"); got != wantHeader {
		t.Fatalf("header mismatch\nwant %s\ngot  %s", wantHeader, got)
	}
	if len(artifact.Rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(artifact.Rows))
	}
	first := artifact.Rows[0]
	if first[1] != "B;semi" || first[3] != "10" || first[4] != "20" || first[5] != "5:1=ok,6:2=failed" || first[7] != "true" || first[8] != "OK" {
		t.Fatalf("unexpected first row %v", first)
	}
	second := artifact.Rows[1]
	if second[3] != "" || second[7] != "" || second[8] != "create_ticket: status 500" {
		t.Fatalf("unexpected second row %v", second)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "out"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileArtifactStoreRejectsPathJobIDs(t *testing.T) {
	store := NewFileArtifactStore(t.TempDir())
	for _, id := range []string{"", "../x", "a/b", ".hidden"} {
		if _, err := store.Save(context.Background(), id, nil, nil); err == nil {
			t.Fatalf("expected error for job id %q", id)
		}
	}
}

func TestFileArtifactStoreLoadMissing(t *testing.T) {
	store := NewFileArtifactStore(t.TempDir())
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPurgeFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "a_processed.csv")
	fresh := filepath.Join(dir, "b_processed.csv")
	other := filepath.Join(dir, "c.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := PurgeFiles(dir, artifactSuffix, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old artifact still present")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should be kept: %v", p, err)
		}
	}
	if n, err := PurgeFiles(filepath.Join(dir, "missing"), artifactSuffix, time.Now()); err != nil || n != 0 {
		t.Fatalf("missing dir: n=%d err=%v", n, err)
	}
}
