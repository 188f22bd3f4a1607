package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/docreduce/internal/ir"
)

// Error represents a protocol violation detected while dispatching,
// replaying or pruning. The input document is never modified when an
// Error is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Scope is the affected scope, if any.
	Scope ir.Scope

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeSchemaViolation indicates a malformed base action payload.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeInvalidAction indicates an action missing its type or scope.
	ErrCodeInvalidAction ErrorCode = "INVALID_ACTION"

	// ErrCodeMissingOperations indicates an inbound index ahead of the log.
	ErrCodeMissingOperations ErrorCode = "MISSING_OPERATIONS"

	// ErrCodeStaleOperation indicates an inbound index behind the log.
	ErrCodeStaleOperation ErrorCode = "STALE_OPERATION"

	// ErrCodeInvalidUndo indicates an undo count below one.
	ErrCodeInvalidUndo ErrorCode = "INVALID_UNDO"

	// ErrCodeNothingToUndo indicates an empty log or fully undone scope.
	ErrCodeNothingToUndo ErrorCode = "NOTHING_TO_UNDO"

	// ErrCodeInvalidRedo indicates a redo count other than one.
	ErrCodeInvalidRedo ErrorCode = "INVALID_REDO"

	// ErrCodeNothingToRedo indicates no clipboard entry for the scope.
	ErrCodeNothingToRedo ErrorCode = "NOTHING_TO_REDO"

	// ErrCodeSkipConflict indicates a pending skip combined with undo or redo.
	ErrCodeSkipConflict ErrorCode = "SKIP_CONFLICT"

	// ErrCodeInvalidPruneRange indicates a prune range outside the log or
	// one that a kept operation skips into.
	ErrCodeInvalidPruneRange ErrorCode = "INVALID_PRUNE_RANGE"

	// ErrCodeHashMismatch indicates a replayed hash diverging from the log.
	ErrCodeHashMismatch ErrorCode = "HASH_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s: %s (scope=%s)", e.Code, e.Message, e.Scope)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, scope ir.Scope, format string, args ...any) *Error {
	return &Error{Code: code, Scope: scope, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is an *Error with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsMissingOperations returns true if the error is a log gap error.
func IsMissingOperations(err error) bool {
	return IsCode(err, ErrCodeMissingOperations)
}

// IsSchemaViolation returns true if the error is a schema error.
func IsSchemaViolation(err error) bool {
	return IsCode(err, ErrCodeSchemaViolation)
}

// CodeOf returns the code of an *Error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
