package bot

import (
	"errors"
	"fmt"
)

// ErrSignalUnavailable marks any external signal-service failure inside the
// decision engine. It never propagates as a hard failure; the engine degrades
// to a safe default and records the cause.
var ErrSignalUnavailable = errors.New("signal unavailable")

// ValidationError reports malformed or duplicate input on create. Never
// retried, surfaced to the caller immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown bot id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bot %s not found", e.ID)
}

// InvalidStateError reports a lifecycle operation that is illegal in the
// record's current state. The record is left unchanged.
type InvalidStateError struct {
	ID    string
	State State
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s bot %s in state %q", e.Op, e.ID, e.State)
}

// RuntimeError wraps a process launch or termination failure. The manager
// retries these a bounded number of times before settling the record in
// the error state.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s failed: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
