// Package errors provides structured error types for mahavishnu.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for mahavishnu.
const (
	// Validation errors
	CodeInvalidIdentifier Code = "INVALID_IDENTIFIER"
	CodeInvalidStatus     Code = "INVALID_STATUS"
	CodeInvalidTask       Code = "INVALID_TASK"
	CodeConfigInvalid     Code = "CONFIG_INVALID"
	CodeClockRewind       Code = "CLOCK_REWIND"

	// Graph errors
	CodeCycleDetected  Code = "CYCLE_DETECTED"
	CodeDuplicateEdge  Code = "DUPLICATE_EDGE"
	CodeTaskNotFound   Code = "TASK_NOT_FOUND"
	CodeEdgeNotFound   Code = "EDGE_NOT_FOUND"

	// DLQ errors
	CodeQueueFull      Code = "QUEUE_FULL"
	CodeRecordNotFound Code = "RECORD_NOT_FOUND"
	CodeRetryExhausted Code = "RETRY_EXHAUSTED"

	// Pool errors
	CodePoolNotFound   Code = "POOL_NOT_FOUND"
	CodePoolExists     Code = "POOL_EXISTS"
	CodePoolClosed     Code = "POOL_CLOSED"
	CodeWorkerNotFound Code = "WORKER_NOT_FOUND"

	// Gateway errors
	CodeProtocol       Code = "PROTOCOL_ERROR"
	CodeUnknownRequest Code = "UNKNOWN_REQUEST"
	CodeRequestTimeout Code = "REQUEST_TIMEOUT"
	CodeSubscriberSlow Code = "SUBSCRIBER_SLOW"

	// Internal errors
	CodePersistence Code = "PERSISTENCE_FAILURE"
	CodeCallback    Code = "CALLBACK_FAILURE"
	CodeInternal    Code = "INTERNAL"
)

// Category groups error codes by the propagation policy they follow.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryValidation
	CategoryCycle
	CategoryDuplicate
	CategoryNotFound
	CategoryCapacity
	CategoryTransient
	CategoryCallback
	CategoryProtocol
	CategoryTimeout
	CategoryFatal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeInvalidIdentifier: CategoryValidation,
	CodeInvalidStatus:     CategoryValidation,
	CodeInvalidTask:       CategoryValidation,
	CodeConfigInvalid:     CategoryValidation,
	CodeClockRewind:       CategoryFatal,
	CodeCycleDetected:     CategoryCycle,
	CodeDuplicateEdge:     CategoryDuplicate,
	CodeTaskNotFound:      CategoryNotFound,
	CodeEdgeNotFound:      CategoryNotFound,
	CodeQueueFull:         CategoryCapacity,
	CodeRecordNotFound:    CategoryNotFound,
	CodeRetryExhausted:    CategoryCallback,
	CodePoolNotFound:      CategoryNotFound,
	CodePoolExists:        CategoryDuplicate,
	CodePoolClosed:        CategoryValidation,
	CodeWorkerNotFound:    CategoryNotFound,
	CodeProtocol:          CategoryProtocol,
	CodeUnknownRequest:    CategoryProtocol,
	CodeRequestTimeout:    CategoryTimeout,
	CodeSubscriberSlow:    CategoryCapacity,
	CodePersistence:       CategoryTransient,
	CodeCallback:          CategoryCallback,
	CodeInternal:          CategoryFatal,
}

// Retryable reports whether errors in this category are recovered locally
// rather than surfaced to the caller.
func (c Category) Retryable() bool {
	return c == CategoryTransient || c == CategoryCallback
}

// Error is the structured error type for mahavishnu. Every surfaced error
// carries a machine-readable code plus a human message.
type Error struct {
	Code    Code   `json:"code"`
	What    string `json:"what"`
	Why     string `json:"why,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the error category for propagation-policy mapping.
func (e *Error) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Cause: err,
	}
}

// New creates an error with the given code and message.
func New(code Code, what string) *Error {
	return &Error{Code: code, What: what}
}

// Newf creates an error with the given code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, What: fmt.Sprintf(format, args...)}
}

// --- Error constructors ---

// ErrTaskNotFound returns an error when a task doesn't exist.
func ErrTaskNotFound(id string) *Error {
	return &Error{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
		Why:  "No task with this ID is registered in the dependency graph",
	}
}

// ErrDuplicateEdge returns an error when a dependency edge already exists.
func ErrDuplicateEdge(from, to string) *Error {
	return &Error{
		Code: CodeDuplicateEdge,
		What: fmt.Sprintf("dependency %s -> %s already exists", from, to),
		Why:  "Each (dependency, dependent) pair may carry at most one edge",
	}
}

// ErrQueueFull returns an error when the dead-letter queue is at capacity.
func ErrQueueFull(capacity int) *Error {
	return &Error{
		Code: CodeQueueFull,
		What: fmt.Sprintf("dead-letter queue is full (capacity %d)", capacity),
		Why:  "Archive or clear records before enqueueing more failures",
	}
}

// ErrPoolNotFound returns an error when a pool doesn't exist.
func ErrPoolNotFound(id string) *Error {
	return &Error{
		Code: CodePoolNotFound,
		What: fmt.Sprintf("pool %s not found", id),
	}
}

// ErrPoolExists returns an error when a pool ID is already registered.
func ErrPoolExists(id string) *Error {
	return &Error{
		Code: CodePoolExists,
		What: fmt.Sprintf("pool %s is already registered", id),
	}
}

// ErrPoolClosed returns an error when an operation targets a stopped pool.
func ErrPoolClosed(id string) *Error {
	return &Error{
		Code: CodePoolClosed,
		What: fmt.Sprintf("pool %s is stopped", id),
		Why:  "Stopped and errored pools reject new workers and assignments",
	}
}

// ErrWorkerNotFound returns an error when a worker doesn't exist.
func ErrWorkerNotFound(poolID, workerID string) *Error {
	return &Error{
		Code: CodeWorkerNotFound,
		What: fmt.Sprintf("worker %s not found in pool %s", workerID, poolID),
	}
}

// ErrInvalidIdentifier returns an error for a malformed identifier.
func ErrInvalidIdentifier(id string) *Error {
	return &Error{
		Code: CodeInvalidIdentifier,
		What: fmt.Sprintf("invalid identifier %q", id),
		Why:  "Identifiers are 26 lowercase Crockford base32 characters",
	}
}

// AsError extracts a structured *Error from err, or wraps err as an
// internal error when it carries no code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	var e *Error
	if As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, What: err.Error(), Cause: err}
}
