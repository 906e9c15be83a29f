package schema

import "fmt"

// NotFoundError reports a name or id with no object of the given kind.
type NotFoundError struct {
	Kind string
	Key  any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s named %v", e.Kind, e.Key)
}

// DuplicateError reports two objects of one kind sharing a name, alias
// or id. The schema refuses to load in that case.
type DuplicateError struct {
	Kind string
	Key  any
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s %v", e.Kind, e.Key)
}

// TypeError reports an unresolvable or mismatched type reference.
type TypeError struct {
	Name   string
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type %q: %s", e.Name, e.Reason)
}

// lenError reports a member-count mismatch against a resolved type.
func lenError(ts *TypeSpec, got int) error {
	return &TypeError{Name: ts.Name, Reason: fmt.Sprintf("want %d members, got %d", len(ts.Members), got)}
}
