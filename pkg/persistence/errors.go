package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionContextNotFound indicates an execution context was not found.
	ErrExecutionContextNotFound = errors.New("execution context not found")
)

// StoreError wraps repository failures with the operation and the entity involved.
type StoreError struct {
	Op  string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsExecutionContextNotFound(err error) bool {
	return errors.Is(err, ErrExecutionContextNotFound)
}
