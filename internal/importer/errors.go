package importer

import (
	"errors"
	"fmt"
)

// ErrDependencyCycle marks a trigger dependency chain that loops back on
// itself.
var ErrDependencyCycle = errors.New("circular trigger dependency chain")

// ReferenceError reports a bundle record pointing at something that exists
// neither in the bundle nor in the store. The message carries entity and
// host names rather than store ids, so callers can surface it unchanged.
type ReferenceError struct {
	Kind       string // referencing entity kind, e.g. "item"
	Name       string // referencing entity name or key
	Host       string // owning host or template, when scoped
	Field      string // what the reference is, e.g. "value map"
	Target     string // the missing reference
	TargetHost string // the reference's own host, when scoped
}

func (e *ReferenceError) Error() string {
	msg := fmt.Sprintf("cannot import %s %q", e.Kind, e.Name)
	if e.Host != "" {
		msg += fmt.Sprintf(" on %q", e.Host)
	}
	msg += fmt.Sprintf(": %s %q", e.Field, e.Target)
	if e.TargetHost != "" {
		msg += fmt.Sprintf(" on %q", e.TargetHost)
	}
	return msg + " not found"
}
