package engine

import "fmt"

// Error kinds. The HTTP layer maps each kind to a status code; the CLI
// prints the message as-is.
const (
	KindNotFound                = "not_found"
	KindValidation              = "validation"
	KindInvalidParent           = "invalid_parent"
	KindInvalidStatusTransition = "invalid_status_transition"
	KindInvalidSprintTransition = "invalid_sprint_transition"
	KindConflictingMembership   = "conflicting_membership"
	KindOverlappingPeriod       = "overlapping_period"
	KindStaleWrite              = "stale_write"
	KindInternal                = "internal"
)

type Error struct {
	Kind    string
	Message string
	// Fields carries per-field detail for validation errors; keys are
	// field names or item ids in bulk operations.
	Fields map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Fields)
}

func notFoundErr(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func validationErr(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func fieldErr(field, reason string) *Error {
	return &Error{Kind: KindValidation, Message: reason, Fields: map[string]string{field: reason}}
}

func invalidParentErr(message string, fields map[string]string) *Error {
	return &Error{Kind: KindInvalidParent, Message: message, Fields: fields}
}

func staleWriteErr(what, id string) *Error {
	return &Error{Kind: KindStaleWrite, Message: fmt.Sprintf("%s %s was modified concurrently", what, id)}
}
