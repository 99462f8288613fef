package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a notification or task does not exist
// for the requesting user.
var ErrNotFound = errors.New("not found")

// TransientStoreError indicates the store was unreachable or timed out.
// The operation may succeed if retried on a later cycle.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error (%s): %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientStoreError or a context deadline.
func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// Transient wraps err as a TransientStoreError for op. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// ValidationError indicates a task carried malformed or missing data
// the engine needs. Such tasks are skipped, never surfaced to users.
type ValidationError struct {
	TaskID  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid task: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid task %s: %s: %s", e.TaskID, e.Field, e.Message)
}

// IsValidation reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
