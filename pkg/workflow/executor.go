// Package workflow provides the graph engine: parsing, validation and execution
// of node-based workflows.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/dagflow/pkg/eventbus"
	"github.com/dukex/dagflow/pkg/events"
	"github.com/dukex/dagflow/pkg/log"
	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/otelhelper"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WebhookPayloadKey is the variable holding an inbound webhook payload.
const WebhookPayloadKey = "webhook_payload"

// NodeOutputKey is the variable key under which a node output is stored.
func NodeOutputKey(nodeID uuid.UUID) string {
	return "node_" + nodeID.String()
}

// Executor drives executions of validated workflows. Runs are independent;
// nodes within one run are dispatched sequentially in topological order.
type Executor struct {
	parser     *Parser
	dispatcher *Dispatcher
	registry   *Registry

	store     persistence.ExecutionContextRepository
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger

	retention            time.Duration
	retryInitialInterval time.Duration
}

type Option func(*Executor)

// WithStore enables checkpointing of execution state.
func WithStore(store persistence.ExecutionContextRepository) Option {
	return func(e *Executor) { e.store = store }
}

// WithPublisher enables lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Executor) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithRetention sets how long finished executions stay inspectable.
func WithRetention(retention time.Duration) Option {
	return func(e *Executor) { e.retention = retention }
}

// WithRetryInitialInterval sets the first backoff delay of ExecuteWithRetry.
func WithRetryInitialInterval(interval time.Duration) Option {
	return func(e *Executor) { e.retryInitialInterval = interval }
}

func NewExecutor(parser *Parser, dispatcher *Dispatcher, opts ...Option) *Executor {
	e := &Executor{
		parser:               parser,
		dispatcher:           dispatcher,
		retention:            DefaultRetention,
		retryInitialInterval: DefaultRetryInitialInterval,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = log.WithModule("workflow_executor")
	}

	if e.tracer == nil {
		e.tracer = otelhelper.Tracer("dagflow/workflow")
	}

	e.registry = NewRegistry(e.retention)

	return e
}

// Execute runs the workflow from its first node. Node failures are reported in
// the result; an error is returned only when the run could not be planned.
func (e *Executor) Execute(
	ctx context.Context,
	workflow *models.Workflow,
	executionCtx models.ExecutionContext,
) (*models.ExecutionResult, error) {
	if executionCtx.ExecutionID == uuid.Nil {
		executionCtx.ExecutionID = uuid.New()
	}

	if executionCtx.StartedAt.IsZero() {
		executionCtx.StartedAt = time.Now().UTC()
	}

	execution := NewExecution(executionCtx)
	e.registry.Register(execution)

	return e.run(ctx, workflow, execution, nil)
}

// ResumeFromFailure re-runs a registered execution from failedNodeID onward,
// inclusive, reusing the outputs already stored for earlier nodes.
func (e *Executor) ResumeFromFailure(
	ctx context.Context,
	workflow *models.Workflow,
	executionID uuid.UUID,
	failedNodeID uuid.UUID,
) (*models.ExecutionResult, error) {
	execution, err := e.Lookup(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if _, ok := workflow.NodeByID(failedNodeID); !ok {
		return nil, &ExecutionError{Err: ErrNodeNotFound, NodeID: failedNodeID}
	}

	err = execution.reopen()
	if err != nil {
		return nil, err
	}

	e.registry.Register(execution)

	return e.run(ctx, workflow, execution, &failedNodeID)
}

func (e *Executor) run(
	ctx context.Context,
	workflow *models.Workflow,
	execution *Execution,
	resumeFrom *uuid.UUID,
) (*models.ExecutionResult, error) {
	logger := e.logger.With(
		"workflow_id", workflow.ID,
		"execution_id", execution.ID(),
	)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID.String()),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID().String()),
	)
	defer span.End()

	started := time.Now()

	order, err := e.parser.TopologicalSort(workflow)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.Error("Failed to compute execution order", "error", err)
		e.finish(ctx, execution, e.failedResult(execution, err))

		return nil, err
	}

	start := 0

	if resumeFrom != nil {
		start = indexOf(order, *resumeFrom)
		if start < 0 {
			err := &ExecutionError{Err: ErrNodeNotFound, NodeID: *resumeFrom}
			e.finish(ctx, execution, e.failedResult(execution, err))

			return nil, err
		}
	}

	_, err = execution.transition(models.ExecutionStateRunning)
	if err != nil {
		e.registry.Purge(execution.ID())
		logger.Error("Execution cannot start", "state", execution.State(), "error", err)

		return nil, err
	}

	logger.Info("Starting workflow execution", "nodes", len(order), "start_index", start)
	e.recordTransition(ctx, execution, nil, "")
	e.checkpoint(ctx, execution)

	startEvent := events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID.String(), execution.ID().String()),
		Variables: execution.Variables(),
	}
	if resumeFrom != nil {
		startEvent.StartNode = resumeFrom.String()
	}

	e.publish(ctx, execution, startEvent)

	executed := 0

	for _, nodeID := range order[start:] {
		stop, err := e.awaitDispatch(ctx, workflow, execution, nodeID)
		if err != nil || stop != nil {
			if stop == nil {
				stop = e.failedResult(execution, err)
			}

			logger.Warn("Workflow execution stopped", "state", stop.State, "nodes_executed", executed)

			return e.finishRun(ctx, workflow, execution, stop, executed, started), nil
		}

		node, ok := workflow.NodeByID(nodeID)
		if !ok {
			err := &ExecutionError{Err: ErrNodeNotFound, NodeID: nodeID}
			otelhelper.SetError(span, err)
			e.finish(ctx, execution, e.failedResult(execution, err))

			return nil, err
		}

		execution.setCurrentNode(nodeID)

		output, err := e.dispatchNode(ctx, workflow, execution, node)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, nodeID.String()))
			logger.Error("Node execution failed", "node_id", nodeID, "node_type", node.NodeType.String(), "error", err)

			e.recordTransition(ctx, execution, &nodeID, err.Error())

			return e.finishRun(ctx, workflow, execution, e.failedResult(execution, err), executed, started), nil
		}

		execution.SetVariable(NodeOutputKey(nodeID), output)
		executed++

		e.checkpoint(ctx, execution)
	}

	output := map[string]any{
		"status":         "success",
		"nodes_executed": executed,
	}
	if resumeFrom != nil {
		output["resumed_from"] = resumeFrom.String()
	}

	now := time.Now().UTC()
	result := &models.ExecutionResult{
		ExecutionID: execution.ID(),
		State:       models.ExecutionStateCompleted,
		CompletedAt: &now,
		Output:      output,
	}

	logger.Info("Workflow execution completed", "nodes_executed", executed)

	return e.finishRun(ctx, workflow, execution, result, executed, started), nil
}

// awaitDispatch checks the execution state at a node boundary. Paused runs
// wait until the state changes or ctx ends; cancelled runs stop.
func (e *Executor) awaitDispatch(
	ctx context.Context,
	workflow *models.Workflow,
	execution *Execution,
	nodeID uuid.UUID,
) (*models.ExecutionResult, error) {
	announced := false

	for {
		state, changed := execution.stateAndChanged()

		switch state {
		case models.ExecutionStateCancelled:
			now := time.Now().UTC()

			return &models.ExecutionResult{
				ExecutionID: execution.ID(),
				State:       models.ExecutionStateCancelled,
				CompletedAt: &now,
				Error:       "execution cancelled",
			}, nil
		case models.ExecutionStatePaused:
			if !announced {
				announced = true

				e.logger.Info("Workflow execution paused", "execution_id", execution.ID(), "node_id", nodeID)
				e.publish(ctx, execution, events.ExecutionPaused{
					BaseEvent:    events.NewBaseEvent(events.ExecutionPausedEvent, workflow.ID.String(), execution.ID().String()),
					PausedAtNode: nodeID.String(),
				})
			}

			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return nil, contextError(ctx)
			}
		default:
			if ctx.Err() != nil {
				return nil, contextError(ctx)
			}

			return nil, nil
		}
	}
}

func (e *Executor) dispatchNode(
	ctx context.Context,
	workflow *models.Workflow,
	execution *Execution,
	node *models.Node,
) (any, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, node.ID.String()),
		attribute.String(otelhelper.NodeTypeKey, node.NodeType.String()),
	)
	defer span.End()

	started := time.Now()
	input := e.collectInputs(workflow, execution, node.ID)

	output, err := e.dispatcher.Dispatch(ctx, node, input, execution)
	if err != nil {
		otelhelper.SetError(span, err)
		e.publish(ctx, execution, events.NodeExecutionFailed{
			BaseEvent: events.NewBaseEvent(events.NodeExecutionFailedEvent, workflow.ID.String(), execution.ID().String()),
			NodeID:    node.ID.String(),
			NodeType:  node.NodeType.String(),
			Error:     err.Error(),
			Duration:  time.Since(started),
		})

		return nil, err
	}

	e.publish(ctx, execution, events.NodeExecutionFinished{
		BaseEvent: events.NewBaseEvent(events.NodeExecutionFinishedEvent, workflow.ID.String(), execution.ID().String()),
		NodeID:    node.ID.String(),
		NodeType:  node.NodeType.String(),
		Output:    output,
		Duration:  time.Since(started),
	})

	return output, nil
}

// collectInputs reads the stored output of every source node feeding nodeID,
// keyed by the edge source handle (or the source output key when unnamed).
func (e *Executor) collectInputs(workflow *models.Workflow, execution *Execution, nodeID uuid.UUID) map[string]any {
	input := make(map[string]any)

	for _, edge := range workflow.IncomingEdges(nodeID) {
		value, ok := execution.Variable(NodeOutputKey(edge.Source))
		if !ok {
			continue
		}

		key := edge.SourceHandle
		if key == "" {
			key = NodeOutputKey(edge.Source)
		}

		input[key] = value
	}

	return input
}

func (e *Executor) failedResult(execution *Execution, err error) *models.ExecutionResult {
	now := time.Now().UTC()
	state := models.ExecutionStateFailed

	if errors.Is(err, context.Canceled) {
		state = models.ExecutionStateCancelled
	}

	return &models.ExecutionResult{
		ExecutionID: execution.ID(),
		State:       state,
		CompletedAt: &now,
		Error:       err.Error(),
	}
}

func (e *Executor) finishRun(
	ctx context.Context,
	workflow *models.Workflow,
	execution *Execution,
	result *models.ExecutionResult,
	executed int,
	started time.Time,
) *models.ExecutionResult {
	result = e.finish(ctx, execution, result)

	base := func(eventType events.EventType) events.BaseEvent {
		return events.NewBaseEvent(eventType, workflow.ID.String(), execution.ID().String())
	}

	switch result.State {
	case models.ExecutionStateCompleted:
		e.publish(ctx, execution, events.ExecutionCompleted{
			BaseEvent:     base(events.ExecutionCompletedEvent),
			DurationMs:    time.Since(started).Milliseconds(),
			NodesExecuted: executed,
			Output:        result.Output,
		})
	case models.ExecutionStateCancelled:
		e.publish(ctx, execution, events.ExecutionCancelled{
			BaseEvent:     base(events.ExecutionCancelledEvent),
			NodesExecuted: executed,
		})
	default:
		failed := events.ExecutionFailed{
			BaseEvent:     base(events.ExecutionFailedEvent),
			DurationMs:    time.Since(started).Milliseconds(),
			Error:         result.Error,
			NodesExecuted: executed,
		}
		if current := execution.CurrentNode(); current != nil {
			failed.NodeID = current.String()
		}

		e.publish(ctx, execution, failed)
	}

	return result
}

// finish stores the result, starts the retention countdown and writes the
// final checkpoint.
func (e *Executor) finish(ctx context.Context, execution *Execution, result *models.ExecutionResult) *models.ExecutionResult {
	result = execution.finish(result)
	e.registry.Retire(execution)

	e.recordTransition(ctx, execution, nil, result.Error)
	e.checkpoint(ctx, execution)

	return result
}

// Execution returns a registered execution.
func (e *Executor) Execution(id uuid.UUID) (*Execution, bool) {
	return e.registry.Get(id)
}

// Purge drops an execution from the registry.
func (e *Executor) Purge(id uuid.UUID) {
	e.registry.Purge(id)
}

// Pause moves a pending or running execution to Paused. The run stops at the
// next node boundary.
func (e *Executor) Pause(ctx context.Context, id uuid.UUID) error {
	_, err := e.control(ctx, id, models.ExecutionStatePaused, models.ExecutionStatePending, models.ExecutionStateRunning)

	return err
}

// Resume moves a paused execution back to Running. It never starts dispatch
// by itself; a run parked at a node boundary continues.
func (e *Executor) Resume(ctx context.Context, id uuid.UUID) error {
	execution, err := e.control(ctx, id, models.ExecutionStateRunning, models.ExecutionStatePaused)
	if err != nil {
		return err
	}

	e.publish(ctx, execution, events.ExecutionResumed{
		BaseEvent: events.NewBaseEvent(events.ExecutionResumedEvent, execution.WorkflowID().String(), id.String()),
	})

	return nil
}

// Cancel moves a non-terminal execution to Cancelled. In-flight handlers are
// not interrupted; the run stops at the next node boundary.
func (e *Executor) Cancel(ctx context.Context, id uuid.UUID) error {
	_, err := e.control(ctx, id, models.ExecutionStateCancelled)

	return err
}

func (e *Executor) control(
	ctx context.Context,
	id uuid.UUID,
	to models.ExecutionState,
	from ...models.ExecutionState,
) (*Execution, error) {
	execution, ok := e.registry.Get(id)
	if !ok {
		return nil, &ExecutionError{Err: ErrExecutionNotFound, Reason: id.String()}
	}

	previous, err := execution.transition(to, from...)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Execution state changed", "execution_id", id, "from", previous, "state", to)
	e.recordTransition(ctx, execution, nil, "")
	e.checkpoint(ctx, execution)

	return execution, nil
}

// PersistContext saves the current snapshot of a registered execution.
func (e *Executor) PersistContext(ctx context.Context, id uuid.UUID) error {
	execution, ok := e.registry.Get(id)
	if !ok {
		return &ExecutionError{Err: ErrExecutionNotFound, Reason: id.String()}
	}

	if e.store == nil {
		return nil
	}

	snapshot := execution.Snapshot()

	return e.store.SaveExecutionContext(ctx, &snapshot)
}

// RestoreContext loads a stored snapshot into the registry.
func (e *Executor) RestoreContext(ctx context.Context, id uuid.UUID) (*Execution, error) {
	if e.store == nil {
		return nil, &ExecutionError{Err: ErrExecutionNotFound, Reason: id.String()}
	}

	snapshot, err := e.store.GetExecutionContext(ctx, id)
	if err != nil {
		if persistence.IsExecutionContextNotFound(err) {
			return nil, &ExecutionError{Err: ErrExecutionNotFound, Reason: id.String()}
		}

		return nil, err
	}

	execution := NewExecution(*snapshot)
	execution.restored = true

	if execution.State().IsTerminal() {
		e.registry.Retire(execution)
	} else {
		e.registry.Register(execution)
	}

	return execution, nil
}

// SaveExecutionState appends a transition record for the execution's current
// state, optionally naming the node and failure involved.
func (e *Executor) SaveExecutionState(ctx context.Context, id uuid.UUID, nodeID *uuid.UUID, cause error) error {
	execution, ok := e.registry.Get(id)
	if !ok {
		return &ExecutionError{Err: ErrExecutionNotFound, Reason: id.String()}
	}

	if e.store == nil {
		return nil
	}

	transition := &models.StateTransition{
		ExecutionID: id,
		NodeID:      nodeID,
		State:       execution.State(),
		RecordedAt:  time.Now().UTC(),
	}
	if cause != nil {
		transition.Error = cause.Error()
	}

	return e.store.AppendTransition(ctx, transition)
}

// Lookup returns a registered execution, restoring it from the store when
// it is not in memory.
func (e *Executor) Lookup(ctx context.Context, id uuid.UUID) (*Execution, error) {
	if execution, ok := e.registry.Get(id); ok {
		return execution, nil
	}

	return e.RestoreContext(ctx, id)
}

func (e *Executor) recordTransition(ctx context.Context, execution *Execution, nodeID *uuid.UUID, msg string) {
	if e.store == nil {
		return
	}

	var cause error
	if msg != "" {
		cause = errors.New(msg)
	}

	err := e.SaveExecutionState(context.WithoutCancel(ctx), execution.ID(), nodeID, cause)
	if err != nil {
		e.logger.Warn("Failed to record state transition", "execution_id", execution.ID(), "error", err)
	}
}

func (e *Executor) checkpoint(ctx context.Context, execution *Execution) {
	if e.store == nil {
		return
	}

	snapshot := execution.Snapshot()

	err := e.store.SaveExecutionContext(context.WithoutCancel(ctx), &snapshot)
	if err != nil {
		e.logger.Warn("Failed to checkpoint execution", "execution_id", execution.ID(), "error", err)
	}
}

func (e *Executor) publish(ctx context.Context, execution *Execution, event eventbus.Event) {
	if e.publisher == nil || execution == nil {
		return
	}

	err := e.publisher.Publish(context.WithoutCancel(ctx), execution.ID().String(), event)
	if err != nil {
		e.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExecutionError{Err: ErrTimeout, Reason: ctx.Err().Error()}
	}

	return ctx.Err()
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}

	return -1
}
