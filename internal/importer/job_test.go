package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/glpi"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestRunnerExecuteSucceeds(t *testing.T) {
	gateway := newFakeGateway()
	outDir := t.TempDir()
	runner := NewRunner(RunnerConfig{
		Connect:          func(context.Context) (Session, error) { return gateway, nil },
		Artifacts:        NewFileArtifactStore(outDir),
		KillSessionOnEnd: true,
	})
	reporter := &fakeReporter{}
	msg := domain.JobMessage{JobID: "job-7", InputPath: writeInput(t, "ticket_name;ticket_content;task_content\nA;B;C\n")}

	result, err := runner.Execute(context.Background(), msg, reporter)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != domain.BatchCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if len(reporter.succeeded) != 1 || len(reporter.failed) != 0 {
		t.Fatalf("expected a single success report, got %+v", reporter)
	}
	if _, err := os.Stat(filepath.Join(outDir, "job-7_processed.csv")); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !gateway.closed {
		t.Fatalf("session must be killed at job end")
	}
}

func TestRunnerUnreadableInputFailsBeforeConnecting(t *testing.T) {
	connected := false
	outDir := t.TempDir()
	runner := NewRunner(RunnerConfig{
		Connect: func(context.Context) (Session, error) {
			connected = true
			return newFakeGateway(), nil
		},
		Artifacts: NewFileArtifactStore(outDir),
	})
	reporter := &fakeReporter{}
	msg := domain.JobMessage{JobID: "job-8", InputPath: filepath.Join(t.TempDir(), "missing.csv")}

	result, err := runner.Execute(context.Background(), msg, reporter)
	var inputErr *InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected input error, got %v", err)
	}
	if connected {
		t.Fatalf("no session should be opened for unreadable input")
	}
	if result.Status != domain.BatchFailed || len(result.Rows) != 0 {
		t.Fatalf("expected failed batch with no rows, got %+v", result)
	}
	if len(reporter.failed) != 1 {
		t.Fatalf("expected failure report")
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Fatalf("no artifact expected, found %v", entries)
	}
}

func TestRunnerHandshakeFailureIsPreflight(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Connect: func(context.Context) (Session, error) {
			return nil, &glpi.Error{Kind: glpi.KindAuthInit, Op: glpi.OpInitSession, Status: 401}
		},
		Artifacts: &fakeArtifacts{},
	})
	reporter := &fakeReporter{}
	msg := domain.JobMessage{JobID: "job-9", InputPath: writeInput(t, "ticket_name;ticket_content;task_content\nA;B;C\n")}

	result, err := runner.Execute(context.Background(), msg, reporter)
	if !glpi.IsKind(err, glpi.KindAuthInit) {
		t.Fatalf("expected auth_init, got %v", err)
	}
	if result.Status != domain.BatchFailed || len(reporter.ticks) != 0 {
		t.Fatalf("no row may be processed after a failed handshake")
	}
	if !IsFatal(err) {
		t.Fatalf("auth_init must be fatal")
	}
}

func TestGLPIConnectorReturnsNilSessionOnFailure(t *testing.T) {
	connect := GLPIConnector(glpi.SessionConfig{Credentials: glpi.Credentials{AppToken: "app"}})
	session, err := connect(context.Background())
	if session != nil {
		t.Fatalf("expected nil session, got %T", session)
	}
	var gerr *glpi.Error
	if !errors.As(err, &gerr) || gerr.Kind != glpi.KindAuthInit {
		t.Fatalf("expected auth_init, got %v", err)
	}
}
