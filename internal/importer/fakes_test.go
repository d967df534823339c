package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	nextTicket int
	nextTask   int
	reauths    int

	createTicket func(call int, name string) (int, error)
	attach       func(call int, kind domain.ActorKind, actors []domain.ActorSpec) ([]domain.OperationOutcome, error)
	updateStatus func(ticketID, status int) (bool, error)
	addTask      func(ticketID int, content string, extra domain.Fields) (int, error)
	reauth       func() error

	createCalls int
	attachCalls int
	attached    [][]domain.ActorSpec
	statuses    []int
	tasks       []domain.Fields
	closed      bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextTicket: 100, nextTask: 500}
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) CreateTicket(_ context.Context, name, _ string, _ domain.Fields) (int, error) {
	f.record("create_ticket:" + name)
	f.createCalls++
	if f.createTicket != nil {
		return f.createTicket(f.createCalls, name)
	}
	f.nextTicket++
	return f.nextTicket, nil
}

func (f *fakeGateway) AttachActors(_ context.Context, ticketID int, kind domain.ActorKind, actors []domain.ActorSpec) ([]domain.OperationOutcome, error) {
	f.record(fmt.Sprintf("attach_%s:%d", kind, len(actors)))
	f.attachCalls++
	f.attached = append(f.attached, actors)
	if f.attach != nil {
		return f.attach(f.attachCalls, kind, actors)
	}
	return successOutcomes(ticketID, kind, actors), nil
}

func (f *fakeGateway) UpdateStatus(_ context.Context, ticketID, status int) (bool, error) {
	f.record(fmt.Sprintf("update_status:%d", status))
	f.statuses = append(f.statuses, status)
	if f.updateStatus != nil {
		return f.updateStatus(ticketID, status)
	}
	return true, nil
}

func (f *fakeGateway) AddTask(_ context.Context, ticketID int, content string, extra domain.Fields) (int, error) {
	f.record("add_task")
	f.tasks = append(f.tasks, extra)
	if f.addTask != nil {
		return f.addTask(ticketID, content, extra)
	}
	f.nextTask++
	return f.nextTask, nil
}

func (f *fakeGateway) Reauthenticate(context.Context) error {
	f.record("reauth")
	f.reauths++
	if f.reauth != nil {
		return f.reauth()
	}
	return nil
}

func (f *fakeGateway) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeGateway) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func successOutcomes(ticketID int, kind domain.ActorKind, actors []domain.ActorSpec) []domain.OperationOutcome {
	action := domain.ActionAddUserActor
	if kind == domain.ActorKindGroup {
		action = domain.ActionAddGroupActor
	}
	out := make([]domain.OperationOutcome, 0, len(actors))
	for _, a := range actors {
		actor := a
		out = append(out, domain.OperationOutcome{Action: action, TicketID: ticketID, Actor: &actor, Success: true})
	}
	return out
}

type savedArtifact struct {
	jobID  string
	header []string
	rows   []domain.RowResult
}

type fakeArtifacts struct {
	saved []savedArtifact
	err   error
}

func (f *fakeArtifacts) Save(_ context.Context, jobID string, header []string, rows []domain.RowResult) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, savedArtifact{jobID: jobID, header: header, rows: rows})
	return "mem://" + jobID, nil
}

type progressTick struct{ current, total int }

type fakeReporter struct {
	ticks     []progressTick
	succeeded []domain.BatchResult
	failed    []error
}

func (f *fakeReporter) Progress(_ context.Context, current, total int) {
	f.ticks = append(f.ticks, progressTick{current, total})
}

func (f *fakeReporter) Succeeded(_ context.Context, result domain.BatchResult) {
	f.succeeded = append(f.succeeded, result)
}

func (f *fakeReporter) Failed(_ context.Context, err error) {
	f.failed = append(f.failed, err)
}

type recordingSleeper struct {
	waits []time.Duration
	err   error
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}
