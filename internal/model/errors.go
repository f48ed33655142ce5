package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures for callers.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindContractInvalid  ErrorKind = "contract_invalid"
	KindExecutionFailure ErrorKind = "execution_failure"
	KindStorageFailure   ErrorKind = "storage_failure"
)

// Error carries enough context (operator, step, field, category) for a caller
// to act on a failure without inspecting internals.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Op       string    `json:"op,omitempty"`
	Step     int       `json:"step,omitempty"` // 1-based, 0 when not tied to a step
	Field    string    `json:"field,omitempty"`
	Category string    `json:"category,omitempty"`
	Message  string    `json:"message"`
	Err      error     `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Step > 0 {
		fmt.Fprintf(&b, " at step %d", e.Step)
	}
	if e.Op != "" {
		fmt.Fprintf(&b, " (%s)", e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Field != "" {
		fmt.Fprintf(&b, " [field %s]", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrValidation creates a validation error with a formatted message.
func ErrValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a not-found error wrapping cause.
func ErrNotFound(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: cause}
}

// ErrContract creates a contract-invalid error.
func ErrContract(format string, args ...interface{}) *Error {
	return &Error{Kind: KindContractInvalid, Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an execution failure for the given step (1-based).
func ErrExecution(step int, op OpKind, field string, cause error) *Error {
	msg := "step failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: KindExecutionFailure, Step: step, Op: string(op), Field: field, Message: msg, Err: cause}
}

// ErrStorage wraps a persistence or output failure.
func ErrStorage(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStorageFailure, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
