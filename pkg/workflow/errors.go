package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Parse errors. Authoring defects, never retried.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyWorkflow     = errors.New("empty workflow")
	ErrDuplicateNodeID   = errors.New("duplicate node id")
	ErrInvalidEdgeSource = errors.New("invalid edge source")
	ErrInvalidEdgeTarget = errors.New("invalid edge target")
	ErrNoStartingNode    = errors.New("no starting node found")
	ErrCycleDetected     = errors.New("cycle detected")
)

// Validation errors.
var (
	ErrNodeNotFound         = errors.New("node not found")
	ErrPortNotFound         = errors.New("port not found")
	ErrNoOutputPorts        = errors.New("node has no output ports")
	ErrNoInputPorts         = errors.New("node has no input ports")
	ErrIncompatibleTypes    = errors.New("incompatible types")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrNoTriggerNode        = errors.New("no trigger node found in workflow")
	ErrUnreachableNodes     = errors.New("unreachable nodes")
)

// Execution errors.
var (
	ErrInvalidConnection   = errors.New("invalid connection")
	ErrTimeout             = errors.New("execution timeout")
	ErrNodeExecutionFailed = errors.New("node execution failed")
	ErrValidationFailed    = errors.New("workflow validation failed")
	ErrExecutionNotFound   = errors.New("execution not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
)

// ParseError carries the node involved in a structural failure.
type ParseError struct {
	Err    error
	NodeID uuid.UUID
	Detail string
}

func (e *ParseError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	case e.NodeID != uuid.Nil:
		return fmt.Sprintf("%v: %s", e.Err, e.NodeID)
	default:
		return e.Err.Error()
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ValidationError describes one semantic problem in a workflow.
type ValidationError struct {
	Err        error
	NodeID     uuid.UUID
	TargetID   uuid.UUID
	Port       string
	Field      string
	SourceType string
	TargetType string
	Nodes      []uuid.UUID
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNodeNotFound):
		return fmt.Sprintf("Node not found: %s", e.NodeID)
	case errors.Is(e.Err, ErrPortNotFound):
		return fmt.Sprintf("Port '%s' not found on node %s", e.Port, e.NodeID)
	case errors.Is(e.Err, ErrNoOutputPorts):
		return fmt.Sprintf("Node %s has no output ports", e.NodeID)
	case errors.Is(e.Err, ErrNoInputPorts):
		return fmt.Sprintf("Node %s has no input ports", e.NodeID)
	case errors.Is(e.Err, ErrIncompatibleTypes):
		return fmt.Sprintf("Incompatible types: source node %s (%s) -> target node %s (%s)",
			e.NodeID, e.SourceType, e.TargetID, e.TargetType)
	case errors.Is(e.Err, ErrMissingRequiredField):
		return fmt.Sprintf("Missing required field '%s' on node %s", e.Field, e.NodeID)
	case errors.Is(e.Err, ErrNoTriggerNode):
		return "No trigger node found in workflow"
	case errors.Is(e.Err, ErrUnreachableNodes):
		ids := make([]string, len(e.Nodes))
		for i, id := range e.Nodes {
			ids[i] = id.String()
		}

		return fmt.Sprintf("Unreachable nodes: [%s]", strings.Join(ids, ", "))
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ExecutionError is returned by the executor for run-level failures.
type ExecutionError struct {
	Err     error
	NodeID  uuid.UUID
	Reason  string
	Timeout time.Duration
}

func (e *ExecutionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTimeout) && e.Timeout > 0:
		return fmt.Sprintf("Execution timeout after %s", e.Timeout)
	case errors.Is(e.Err, ErrNodeExecutionFailed):
		return fmt.Sprintf("Node execution failed: %s - %s", e.NodeID, e.Reason)
	case e.NodeID != uuid.Nil && e.Reason != "":
		return fmt.Sprintf("%v: %s: %s", e.Err, e.NodeID, e.Reason)
	case e.NodeID != uuid.Nil:
		return fmt.Sprintf("%v: %s", e.Err, e.NodeID)
	case e.Reason != "":
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	default:
		return e.Err.Error()
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NodeFailed wraps a handler error as a node execution failure.
func NodeFailed(nodeID uuid.UUID, err error) *ExecutionError {
	return &ExecutionError{Err: ErrNodeExecutionFailed, NodeID: nodeID, Reason: err.Error()}
}
