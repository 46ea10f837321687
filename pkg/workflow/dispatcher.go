package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/dagflow/pkg/models"
)

// NodeHandler runs one node. It receives the collected inputs keyed by the
// source handle of each incoming edge and returns the node output.
type NodeHandler interface {
	Handle(ctx context.Context, node *models.Node, input map[string]any, execution *Execution) (any, error)
}

// HandlerFunc adapts a function to NodeHandler.
type HandlerFunc func(ctx context.Context, node *models.Node, input map[string]any, execution *Execution) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, node *models.Node, input map[string]any, execution *Execution) (any, error) {
	return f(ctx, node, input, execution)
}

// Dispatcher is the dispatch table from node kind to handler.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[models.NodeKind]NodeHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[models.NodeKind]NodeHandler),
	}
}

// Register binds a handler to a node kind, replacing any previous binding.
func (d *Dispatcher) Register(kind models.NodeKind, handler NodeHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[kind] = handler
}

func (d *Dispatcher) Handler(kind models.NodeKind) (NodeHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handler, ok := d.handlers[kind]

	return handler, ok
}

// Dispatch runs the handler for the node kind. Handler errors and missing
// handlers are reported as node execution failures.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	node *models.Node,
	input map[string]any,
	execution *Execution,
) (any, error) {
	handler, ok := d.Handler(node.NodeType.Kind)
	if !ok {
		return nil, NodeFailed(node.ID, fmt.Errorf("no handler registered for %s", node.NodeType))
	}

	output, err := handler.Handle(ctx, node, input, execution)
	if err != nil {
		return nil, NodeFailed(node.ID, err)
	}

	return output, nil
}
