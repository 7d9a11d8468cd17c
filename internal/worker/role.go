package worker

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role identifies the job a worker process performs.
type Role int

const (
	RequestFactory Role = iota + 1
	JobRunner
	ControlPlane
)

// Roles returns every role in spawn order.
func Roles() []Role {
	return []Role{RequestFactory, JobRunner, ControlPlane}
}

var roleWords = map[Role]string{
	RequestFactory: "request factory",
	JobRunner:      "job runner",
	ControlPlane:   "control plane",
}

// String returns the wire name used on the command line and in mailbox payloads.
func (r Role) String() string {
	words, ok := roleWords[r]
	if !ok {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return strings.ReplaceAll(words, " ", "")
}

// DisplayName returns the human-readable role name, e.g. "Job Runner".
func (r Role) DisplayName() string {
	words, ok := roleWords[r]
	if !ok {
		return r.String()
	}
	return cases.Title(language.English).String(words)
}

// ParseRole maps a wire name back to a Role.
func ParseRole(name string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, role := range Roles() {
		if role.String() == normalized {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown worker role %q", name)
}
