package workflow

import (
	"sync"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// Execution is the live, shared state of one run. The executor loop, control
// calls (pause/resume/cancel) and inspection all go through its lock.
type Execution struct {
	mu sync.RWMutex

	id          uuid.UUID
	workflowID  uuid.UUID
	startedAt   time.Time
	variables   map[string]any
	state       models.ExecutionState
	currentNode *uuid.UUID
	result      *models.ExecutionResult

	// loaded from a store snapshot and not yet driven by this process
	restored bool

	// closed and replaced on every state change
	changed chan struct{}
}

// NewExecution wraps an execution context. The variable map is copied.
func NewExecution(executionCtx models.ExecutionContext) *Execution {
	variables := make(map[string]any, len(executionCtx.Variables))
	for k, v := range executionCtx.Variables {
		variables[k] = v
	}

	state := executionCtx.State
	if state == "" {
		state = models.ExecutionStatePending
	}

	var current *uuid.UUID

	if executionCtx.CurrentNode != nil {
		id := *executionCtx.CurrentNode
		current = &id
	}

	return &Execution{
		id:          executionCtx.ExecutionID,
		workflowID:  executionCtx.WorkflowID,
		startedAt:   executionCtx.StartedAt,
		variables:   variables,
		state:       state,
		currentNode: current,
		changed:     make(chan struct{}),
	}
}

func (e *Execution) ID() uuid.UUID {
	return e.id
}

func (e *Execution) WorkflowID() uuid.UUID {
	return e.workflowID
}

func (e *Execution) Variable(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	value, ok := e.variables[key]

	return value, ok
}

func (e *Execution) SetVariable(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[key] = value
}

// Variables returns a shallow copy of the variable map.
func (e *Execution) Variables() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	variables := make(map[string]any, len(e.variables))
	for k, v := range e.variables {
		variables[k] = v
	}

	return variables
}

func (e *Execution) State() models.ExecutionState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

func (e *Execution) CurrentNode() *uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.currentNode == nil {
		return nil
	}

	id := *e.currentNode

	return &id
}

// Result returns the outcome of the last finished run, if any.
func (e *Execution) Result() *models.ExecutionResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.result
}

// Snapshot returns the serializable form of the execution.
func (e *Execution) Snapshot() models.ExecutionContext {
	e.mu.RLock()
	defer e.mu.RUnlock()

	variables := make(map[string]any, len(e.variables))
	for k, v := range e.variables {
		variables[k] = v
	}

	var current *uuid.UUID

	if e.currentNode != nil {
		id := *e.currentNode
		current = &id
	}

	return models.ExecutionContext{
		ExecutionID: e.id,
		WorkflowID:  e.workflowID,
		Variables:   variables,
		State:       e.state,
		StartedAt:   e.startedAt,
		CurrentNode: current,
	}
}

// Changed returns a channel closed on the next state change.
func (e *Execution) Changed() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.changed
}

func (e *Execution) stateAndChanged() (models.ExecutionState, <-chan struct{}) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state, e.changed
}

func (e *Execution) setCurrentNode(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentNode = &id
}

// transition moves the execution to the given state. Terminal states never
// change; allowed lists the states the move is valid from (any when empty).
func (e *Execution) transition(to models.ExecutionState, allowed ...models.ExecutionState) (models.ExecutionState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.state
	if from.IsTerminal() {
		return from, &ExecutionError{Err: ErrInvalidTransition, Reason: string(from) + " -> " + string(to)}
	}

	if len(allowed) > 0 && !containsState(allowed, from) {
		return from, &ExecutionError{Err: ErrInvalidTransition, Reason: string(from) + " -> " + string(to)}
	}

	e.setStateLocked(to)

	return from, nil
}

// reopen moves a failed execution back to Running for a recovery run. A
// non-terminal execution is accepted only when it was restored from a store
// snapshot and no run of this process owns it.
func (e *Execution) reopen() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	orphaned := e.restored && !e.state.IsTerminal()
	if e.state != models.ExecutionStateFailed && !orphaned {
		return &ExecutionError{Err: ErrInvalidTransition, Reason: string(e.state) + " -> " + string(models.ExecutionStateRunning)}
	}

	e.restored = false
	e.result = nil
	e.setStateLocked(models.ExecutionStateRunning)

	return nil
}

// finish records the final result and its state unless the run was already
// moved to a terminal state.
func (e *Execution) finish(result *models.ExecutionResult) *models.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.IsTerminal() && e.state != result.State {
		result.State = e.state
	}

	e.result = result
	e.setStateLocked(result.State)

	return result
}

func (e *Execution) setStateLocked(state models.ExecutionState) {
	if e.state == state {
		return
	}

	e.state = state
	close(e.changed)
	e.changed = make(chan struct{})
}

func containsState(states []models.ExecutionState, state models.ExecutionState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}

	return false
}
