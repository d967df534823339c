package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/events"
	"github.com/spec-kit/ticket-importer/internal/importer"
	"github.com/spec-kit/ticket-importer/internal/observability"
	"github.com/spec-kit/ticket-importer/internal/queue"
)

type fakeSource struct {
	mu   sync.Mutex
	jobs []domain.JobMessage
	errs []error
}

func (s *fakeSource) Dequeue(ctx context.Context, _ time.Duration) (domain.JobMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return domain.JobMessage{}, err
	}
	if len(s.jobs) == 0 {
		return domain.JobMessage{}, queue.ErrNoJob
	}
	msg := s.jobs[0]
	s.jobs = s.jobs[1:]
	return msg, nil
}

type fakeRunner struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
	done chan struct{}
	want int
}

func (r *fakeRunner) Execute(ctx context.Context, msg domain.JobMessage, reporter importer.ProgressReporter) (domain.BatchResult, error) {
	r.mu.Lock()
	r.seen = append(r.seen, msg.JobID)
	if len(r.seen) == r.want {
		close(r.done)
	}
	r.mu.Unlock()

	if err := r.fail[msg.JobID]; err != nil {
		reporter.Failed(ctx, err)
		return domain.BatchResult{JobID: msg.JobID, Status: domain.BatchFailed}, err
	}
	result := domain.BatchResult{
		JobID:  msg.JobID,
		Status: domain.BatchCompleted,
		Rows:   []domain.RowResult{{Result: domain.ResultOK}},
	}
	reporter.Progress(ctx, 1, 1)
	reporter.Succeeded(ctx, result)
	return result, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handler(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) count(t events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestImportWorkerRunsQueuedJobs(t *testing.T) {
	source := &fakeSource{
		jobs: []domain.JobMessage{{JobID: "a"}, {JobID: "b"}, {JobID: "c"}},
		errs: []error{errors.New("redis down")},
	}
	runner := &fakeRunner{fail: map[string]error{"b": errors.New("auth init: status 401")}, done: make(chan struct{}), want: 3}
	dispatcher := events.NewInMemoryDispatcher()
	log := &eventLog{}
	for _, et := range []events.EventType{events.EventJobStarted, events.EventJobFinished, events.EventJobFailed} {
		dispatcher.Subscribe(et, log.handler)
	}
	metrics := observability.NewMetrics()

	w := NewImportWorker(Config{
		Source:      source,
		Runner:      runner,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Concurrency: 2,
		PopTimeout:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("jobs were not processed, saw %v", runner.seen)
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}

	if log.count(events.EventJobStarted) != 3 || log.count(events.EventJobFinished) != 2 || log.count(events.EventJobFailed) != 1 {
		t.Fatalf("unexpected events %+v", log.events)
	}
	snap := metrics.Snapshot()
	if snap.Jobs[string(domain.BatchCompleted)] != 2 || snap.Jobs[string(domain.BatchFailed)] != 1 {
		t.Fatalf("unexpected job metrics %v", snap.Jobs)
	}
}

type recordingReporter struct {
	importer.NopReporter
	succeeded int
}

func (r *recordingReporter) Succeeded(context.Context, domain.BatchResult) {
	r.succeeded++
}

func TestImportWorkerHandleUsesJobReporter(t *testing.T) {
	rep := &recordingReporter{}
	var gotID string
	w := NewImportWorker(Config{
		Source: &fakeSource{},
		Runner: &fakeRunner{done: make(chan struct{}), want: 1},
		Reporters: func(jobID string) importer.ProgressReporter {
			gotID = jobID
			return rep
		},
	})

	result := w.Handle(context.Background(), domain.JobMessage{JobID: "job-9"})
	if result.Status != domain.BatchCompleted {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if gotID != "job-9" || rep.succeeded != 1 {
		t.Fatalf("job reporter not used: id=%s succeeded=%d", gotID, rep.succeeded)
	}
}
