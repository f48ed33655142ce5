package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category classifies why an oracle attempt failed.
type Category string

const (
	CategoryMalformed     Category = "malformed_response"
	CategoryContract      Category = "contract_violation"
	CategoryInvalidSyntax Category = "invalid_syntax"
	CategoryEvaluation    Category = "evaluation_failure"
	CategoryUnavailable   Category = "provider_unavailable"
	CategoryTimeout       Category = "timeout"
	CategoryRateLimited   Category = "rate_limited"
	CategoryDisabled      Category = "oracle_disabled"
)

// Retryable reports whether a repair attempt with an augmented prompt may
// fix this category of failure.
func (c Category) Retryable() bool {
	switch c {
	case CategoryMalformed, CategoryContract, CategoryEvaluation:
		return true
	}
	return false
}

// Transport reports whether the failure happened before any content arrived.
func (c Category) Transport() bool {
	switch c {
	case CategoryUnavailable, CategoryTimeout, CategoryRateLimited:
		return true
	}
	return false
}

// Error is a classified oracle failure.
type Error struct {
	Category Category
	Message  string
	Attempts int
	Failures []Category // category of every failed attempt, in order
	Latency  time.Duration
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("oracle %s: %s", e.Category, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cat Category, cause error, format string, args ...interface{}) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CategoryOf returns the category of the first *Error in err's chain.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// classifyTransport turns a transport failure into a classified error.
func classifyTransport(ctx context.Context, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(CategoryTimeout, err, "oracle call timed out")
	}
	if errors.Is(err, context.Canceled) {
		return newError(CategoryTimeout, err, "oracle call canceled")
	}
	return newError(CategoryUnavailable, err, "oracle transport failed")
}
