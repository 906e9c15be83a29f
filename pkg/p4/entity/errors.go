package entity

import "fmt"

// MissingParameterError reports a required action parameter or packet
// metadata field with no bound value.
type MissingParameterError struct {
	Context string // action or metadata header name
	Param   string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: missing parameter '%s'", e.Context, e.Param)
}

// UnknownParameterError reports a bound name the schema does not declare.
type UnknownParameterError struct {
	Context string
	Param   string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("%s: unknown parameter %q", e.Context, e.Param)
}

// InvalidUpdateError reports an update op the entity kind does not
// support on the wire.
type InvalidUpdateError struct {
	Entity string
	Op     Op
}

func (e *InvalidUpdateError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Entity, e.Op)
}

// IncompleteError reports an entity missing data its kind requires.
type IncompleteError struct {
	Entity string
	Reason string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}
