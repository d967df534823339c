package domain

// WorkflowState is the furthest step a record reached.
type WorkflowState string

const (
	StateStart          WorkflowState = "start"
	StateTicketCreated  WorkflowState = "ticket_created"
	StateActorsAttached WorkflowState = "actors_attached"
	StateStatusUpdated  WorkflowState = "status_updated"
	StateTaskCreated    WorkflowState = "task_created"
	StateDone           WorkflowState = "done"
	StateFailed         WorkflowState = "failed"
)

// ActionKind names a side-effecting remote call.
type ActionKind string

const (
	ActionAddUserActor  ActionKind = "add_user_actor"
	ActionAddGroupActor ActionKind = "add_group_actor"
	ActionUpdateStatus  ActionKind = "update_status"
)

// ResultOK marks a record whose workflow completed.
const ResultOK = "OK"

// OperationOutcome records one remote side-effecting call.
type OperationOutcome struct {
	Action   ActionKind `json:"action"`
	TicketID int        `json:"ticket_id"`
	Actor    *ActorSpec `json:"actor,omitempty"`
	Success  bool       `json:"success"`
	Detail   string     `json:"detail,omitempty"`
}

// RowResult accumulates what happened to a record.
type RowResult struct {
	Record        TicketRecord
	State         WorkflowState
	TicketID      int
	TaskID        int
	UserOutcomes  []OperationOutcome
	GroupOutcomes []OperationOutcome
	StatusUpdate  *OperationOutcome
	Result        string
}

// Failed reports whether a required step errored.
func (r RowResult) Failed() bool {
	return r.Result != ResultOK
}

// BatchStatus is the overall outcome of a job.
type BatchStatus string

const (
	BatchCompleted           BatchStatus = "completed"
	BatchCompletedWithErrors BatchStatus = "completed_with_errors"
	BatchFailed              BatchStatus = "failed"
)

// BatchResult is the finalized outcome of one job.
type BatchResult struct {
	JobID       string
	Header      []string
	Rows        []RowResult
	Status      BatchStatus
	Errors      []string
	ArtifactRef string
}

// FailedRows counts rows whose result is a failure.
func (b BatchResult) FailedRows() int {
	n := 0
	for _, row := range b.Rows {
		if row.Failed() {
			n++
		}
	}
	return n
}
