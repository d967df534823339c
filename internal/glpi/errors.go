package glpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failure so callers can decide between recording it
// on the row, re-authenticating once, or aborting the job.
type ErrorKind string

const (
	KindAuthInit        ErrorKind = "auth_init"
	KindAuthExpired     ErrorKind = "auth_expired"
	KindBadRequest      ErrorKind = "bad_request"
	KindRemoteOperation ErrorKind = "remote_operation"
	KindActorParse      ErrorKind = "actor_parse"
)

// Fatal reports whether the kind terminates the whole job.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindAuthInit, KindAuthExpired, KindBadRequest:
		return true
	}
	return false
}

// Operation names used in errors and logs.
const (
	OpInitSession   = "init session"
	OpReinitSession = "reinit session"
	OpKillSession   = "kill session"
	OpCreateTicket  = "create ticket"
	OpAttachUser    = "attach user actor"
	OpAttachGroup   = "attach group actor"
	OpUpdateStatus  = "update status"
	OpCreateTask    = "create task"
	OpParseActors   = "parse actors"
)

const maxBodyInError = 256

// Error is returned by every session and gateway call.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(truncate(e.Body, maxBodyInError))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var glpiErr *Error
	if errors.As(err, &glpiErr) {
		return glpiErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a glpi error of kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsFatal reports whether err must terminate the job.
func IsFatal(err error) bool {
	k, ok := KindOf(err)
	return ok && k.Fatal()
}

// classify maps a non-success response to an error kind. GLPI answers 400
// both for broken requests and for refused item operations; only the latter
// (ERROR_GLPI_* codes) stay row-level failures.
func classify(op string, status int, body []byte) *Error {
	e := &Error{Kind: KindRemoteOperation, Op: op, Status: status, Body: strings.TrimSpace(string(body))}
	switch status {
	case http.StatusUnauthorized:
		e.Kind = KindAuthExpired
	case http.StatusBadRequest:
		if !strings.HasPrefix(errorCode(body), "ERROR_GLPI_") {
			e.Kind = KindBadRequest
		}
	}
	return e
}

// errorCode returns the leading code of a GLPI error body such as
// ["ERROR_SESSION_TOKEN_INVALID","..."].
func errorCode(body []byte) string {
	var parts []string
	if err := json.Unmarshal(body, &parts); err != nil || len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
