package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ClosedStatus is the GLPI status code of a closed ticket.
const ClosedStatus = 6

// Field is a single extra column forwarded verbatim to a create call.
// Value holds a string, an int or a bool.
type Field struct {
	Key   string
	Value any
}

// StringField builds a string valued field.
func StringField(key, value string) Field {
	return Field{Key: key, Value: value}
}

// IntField builds an integer valued field.
func IntField(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// ParseField infers the scalar type of a raw cell. Canonical integers become
// ints, everything else stays a string so values like "007" survive intact.
func ParseField(key, raw string) Field {
	if n, err := strconv.Atoi(raw); err == nil && strconv.Itoa(n) == raw {
		return IntField(key, n)
	}
	return StringField(key, raw)
}

// Fields is an ordered mapping of key to scalar value.
type Fields []Field

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Int returns the value stored under key when it is an integer.
func (f Fields) Int(key string) (int, bool) {
	val, ok := f.Get(key)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// With returns a copy of f where key is set to value. An existing key keeps
// its position.
func (f Fields) With(key string, value any) Fields {
	out := make(Fields, 0, len(f)+1)
	replaced := false
	for _, field := range f {
		if field.Key == key {
			out = append(out, Field{Key: key, Value: value})
			replaced = true
			continue
		}
		out = append(out, field)
	}
	if !replaced {
		out = append(out, Field{Key: key, Value: value})
	}
	return out
}

// Merge appends extra after f. Keys already present in f win.
func (f Fields) Merge(extra Fields) Fields {
	out := append(Fields{}, f...)
	for _, field := range extra {
		if _, exists := out.Get(field.Key); exists {
			continue
		}
		out = append(out, field)
	}
	return out
}

// MarshalJSON encodes the fields as a JSON object preserving order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ActorKind distinguishes user actors from group actors.
type ActorKind string

const (
	ActorKindUser  ActorKind = "user"
	ActorKindGroup ActorKind = "group"
)

// ActorSpec links a user or group to a ticket with a GLPI actor type
// (1 requester, 2 assigned, 3 observer).
type ActorSpec struct {
	Kind      ActorKind
	SubjectID int
	RoleType  int
}

// TicketRecord is one parsed input row.
type TicketRecord struct {
	Row          int
	Name         string
	Content      string
	TaskContent  string
	UserActors   string
	GroupActors  string
	Status       *int
	TicketFields Fields
	TaskFields   Fields
	Cells        []string
}

// HasActors reports whether any actor column carries a value.
func (r TicketRecord) HasActors() bool {
	return r.UserActors != "" || r.GroupActors != ""
}

// IsClosed reports whether the ticket is created closed through its
// ticket.status extra. The status column only takes effect once the status
// update has run, so it is not consulted here.
func (r TicketRecord) IsClosed() bool {
	status, ok := r.TicketFields.Int("status")
	return ok && status == ClosedStatus
}
