package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// DefaultTaskState is the state given to follow-up tasks (1 = to do).
const DefaultTaskState = 1

const maxResponseBytes = 1 << 20

// Gateway exposes the ticket operations the importer needs. It shares the
// HTTP client and headers of its SessionManager.
type Gateway struct {
	session *SessionManager
	logger  *zap.Logger
}

// NewGateway builds a gateway on top of an initialized session.
func NewGateway(session *SessionManager, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{session: session, logger: logger}
}

type inputEnvelope struct {
	Input domain.Fields `json:"input"`
}

type createdResponse struct {
	ID int `json:"id"`
}

// CreateTicket creates a ticket and returns its id.
func (g *Gateway) CreateTicket(ctx context.Context, name, content string, extra domain.Fields) (int, error) {
	input := domain.Fields{
		domain.StringField("name", name),
		domain.StringField("content", content),
	}.Merge(extra)
	return g.create(ctx, OpCreateTicket, "/Ticket", input)
}

// AddTask creates a follow-up task on ticketID and returns its id.
func (g *Gateway) AddTask(ctx context.Context, ticketID int, content string, extra domain.Fields) (int, error) {
	input := domain.Fields{
		domain.IntField("tickets_id", ticketID),
		domain.StringField("content", content),
	}.Merge(extra)
	if _, ok := input.Get("state"); !ok {
		input = input.With("state", DefaultTaskState)
	}
	return g.create(ctx, OpCreateTask, "/TicketTask", input)
}

// AttachActors links every actor to ticketID independently and returns one
// outcome per actor in input order. Remote refusals become failed outcomes.
// A fatal error stops the loop and is returned together with the outcomes
// gathered so far, so the caller can resume with the remaining actors.
func (g *Gateway) AttachActors(ctx context.Context, ticketID int, kind domain.ActorKind, actors []domain.ActorSpec) ([]domain.OperationOutcome, error) {
	op, path, idKey, action := OpAttachUser, "Ticket_User", "users_id", domain.ActionAddUserActor
	if kind == domain.ActorKindGroup {
		op, path, idKey, action = OpAttachGroup, "Group_Ticket", "groups_id", domain.ActionAddGroupActor
	}

	outcomes := make([]domain.OperationOutcome, 0, len(actors))
	for _, actor := range actors {
		input := domain.Fields{
			domain.IntField("tickets_id", ticketID),
			domain.IntField(idKey, actor.SubjectID),
			domain.IntField("type", actor.RoleType),
		}
		outcome := domain.OperationOutcome{Action: action, TicketID: ticketID, Actor: &actor}

		status, body, err := g.send(ctx, http.MethodPost, fmt.Sprintf("/Ticket/%d/%s", ticketID, path), input)
		switch {
		case err != nil:
			outcome.Detail = (&Error{Kind: KindRemoteOperation, Op: op, Err: err}).Error()
		case status == http.StatusCreated || status == http.StatusOK:
			outcome.Success = true
		default:
			remoteErr := classify(op, status, body)
			if remoteErr.Kind.Fatal() {
				return outcomes, remoteErr
			}
			outcome.Detail = remoteErr.Error()
		}
		if !outcome.Success {
			g.logger.Warn("actor attach failed",
				zap.Int("ticket_id", ticketID),
				zap.String("kind", string(kind)),
				zap.Int("subject_id", actor.SubjectID),
				zap.String("detail", outcome.Detail))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// UpdateStatus sets the status of ticketID. It returns true iff GLPI
// answered with a 2xx status; otherwise the error describes the refusal.
func (g *Gateway) UpdateStatus(ctx context.Context, ticketID, status int) (bool, error) {
	input := domain.Fields{domain.IntField("status", status)}
	code, body, err := g.send(ctx, http.MethodPut, fmt.Sprintf("/Ticket/%d", ticketID), input)
	if err != nil {
		return false, &Error{Kind: KindRemoteOperation, Op: OpUpdateStatus, Err: err}
	}
	if code >= 200 && code < 300 {
		return true, nil
	}
	return false, classify(OpUpdateStatus, code, body)
}

// Reauthenticate renews the session after an auth_expired error.
func (g *Gateway) Reauthenticate(ctx context.Context) error {
	return g.session.Reinitialize(ctx)
}

func (g *Gateway) create(ctx context.Context, op, path string, input domain.Fields) (int, error) {
	status, body, err := g.send(ctx, http.MethodPost, path, input)
	if err != nil {
		return 0, &Error{Kind: KindRemoteOperation, Op: op, Err: err}
	}
	if status != http.StatusCreated {
		return 0, classify(op, status, body)
	}
	var created createdResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, &Error{Kind: KindRemoteOperation, Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if created.ID <= 0 {
		return 0, &Error{Kind: KindRemoteOperation, Op: op, Status: status, Err: errors.New("response without id")}
	}
	return created.ID, nil
}

func (g *Gateway) send(ctx context.Context, method, path string, input domain.Fields) (int, []byte, error) {
	payload, err := json.Marshal(inputEnvelope{Input: input})
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.session.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = g.session.Headers()

	resp, err := g.session.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
