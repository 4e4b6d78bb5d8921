package models

import "fmt"

// FieldError is used to indicate an error with a specific configuration field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports malformed schedule configuration. It is always
// raised before persistence; a schedule carrying one is never partially saved.
type ValidationError struct {
	Msg    string       `json:"message"`
	Fields []FieldError `json:"fields,omitempty"`
}

func NewValidationError(msg string, flds ...FieldError) *ValidationError {
	return &ValidationError{Msg: msg, Fields: flds}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Msg, e.Fields[0].Field, e.Fields[0].Error)
	}
	return e.Msg
}

// ConflictError reports an operation that would corrupt financial history,
// such as deleting installments that payments already reference.
type ConflictError struct {
	Msg string `json:"message"`
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Msg }

// TransportError reports a notification send failure for one recipient. It is
// collected into the batch failure list and never aborts a run.
type TransportError struct {
	StudentID string
	Channel   Channel
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch to student %s via %s: %v", e.StudentID, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InconsistencyError flags data that should never occur, like a roster student
// in a grade no fee item covers. Surfaced loudly rather than defaulted away.
type InconsistencyError struct {
	Msg string
}

func (e *InconsistencyError) Error() string { return e.Msg }

// ErrNotFound is returned by repositories when a schedule does not exist.
var ErrNotFound = fmt.Errorf("not found")
