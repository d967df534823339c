package glpi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// ParseActors parses comma-separated subjectId:roleType pairs. A single
// malformed pair rejects the whole list.
func ParseActors(raw string, kind domain.ActorKind) ([]domain.ActorSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	actors := make([]domain.ActorSpec, 0, len(parts))
	for _, part := range parts {
		pair := strings.TrimSpace(part)
		subject, role, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, actorParseError(kind, pair, "expected subjectId:roleType")
		}
		subjectID, err := strconv.Atoi(strings.TrimSpace(subject))
		if err != nil || subjectID <= 0 {
			return nil, actorParseError(kind, pair, "invalid subject id")
		}
		roleType, err := strconv.Atoi(strings.TrimSpace(role))
		if err != nil || roleType <= 0 {
			return nil, actorParseError(kind, pair, "invalid role type")
		}
		actors = append(actors, domain.ActorSpec{Kind: kind, SubjectID: subjectID, RoleType: roleType})
	}
	return actors, nil
}

func actorParseError(kind domain.ActorKind, pair, reason string) *Error {
	return &Error{
		Kind: KindActorParse,
		Op:   OpParseActors,
		Err:  fmt.Errorf("%s actor %q: %s", kind, pair, reason),
	}
}
