package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionState is the status of one run.
type ExecutionState string

const (
	ExecutionStatePending   ExecutionState = "Pending"
	ExecutionStateRunning   ExecutionState = "Running"
	ExecutionStatePaused    ExecutionState = "Paused"
	ExecutionStateCompleted ExecutionState = "Completed"
	ExecutionStateFailed    ExecutionState = "Failed"
	ExecutionStateCancelled ExecutionState = "Cancelled"
)

// IsTerminal reports whether the state can never transition further.
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionStateCompleted || s == ExecutionStateFailed || s == ExecutionStateCancelled
}

// ExecutionContext is the serializable state of one run.
type ExecutionContext struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	WorkflowID  uuid.UUID      `json:"workflow_id"`
	Variables   map[string]any `json:"variables"`
	State       ExecutionState `json:"state"`
	StartedAt   time.Time      `json:"started_at"`
	CurrentNode *uuid.UUID     `json:"current_node,omitempty"`
}

// NewExecutionContext creates a Pending context with a fresh execution id,
// seeded with a copy of the workflow default variables.
func NewExecutionContext(workflow *Workflow) ExecutionContext {
	variables := make(map[string]any, len(workflow.Variables))
	for k, v := range workflow.Variables {
		variables[k] = v
	}

	return ExecutionContext{
		ExecutionID: uuid.New(),
		WorkflowID:  workflow.ID,
		Variables:   variables,
		State:       ExecutionStatePending,
		StartedAt:   time.Now().UTC(),
	}
}

// ExecutionResult is the outcome of an execution. Failures are modeled as data.
type ExecutionResult struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	State       ExecutionState `json:"state"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
}

// Succeeded reports whether the run completed.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && r.State == ExecutionStateCompleted
}

// StateTransition is an append-only record of a state change or node failure.
type StateTransition struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	NodeID      *uuid.UUID     `json:"node_id,omitempty"`
	State       ExecutionState `json:"state"`
	Error       string         `json:"error,omitempty"`
	RecordedAt  time.Time      `json:"recorded_at"`
}
