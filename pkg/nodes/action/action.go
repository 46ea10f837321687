// Package action implements Action nodes. Http requests are performed
// directly; Email, Database and Integration actions are delegated to an
// Integration.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes/httprequest"
	"github.com/dukex/dagflow/pkg/template"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/google/uuid"
)

var ErrNoIntegration = errors.New("no integration configured")

// Request is what an Integration receives for one action node.
type Request struct {
	ActionType  models.ActionType
	NodeID      uuid.UUID
	ExecutionID uuid.UUID
	// Parameters are the node parameters with templates rendered.
	Parameters map[string]any
	Input      map[string]any
}

// Integration performs non-HTTP actions against external systems.
type Integration interface {
	Invoke(ctx context.Context, request Request) (any, error)
}

// IntegrationFunc adapts a function to Integration.
type IntegrationFunc func(ctx context.Context, request Request) (any, error)

func (f IntegrationFunc) Invoke(ctx context.Context, request Request) (any, error) {
	return f(ctx, request)
}

type Handler struct {
	http        *httprequest.Handler
	integration Integration
}

func NewHandler(http *httprequest.Handler, integration Integration) *Handler {
	return &Handler{http: http, integration: integration}
}

func (h *Handler) Handle(
	ctx context.Context,
	node *models.Node,
	input map[string]any,
	execution *workflow.Execution,
) (any, error) {
	if node.NodeType.ActionType == models.ActionTypeHTTP {
		return h.http.Handle(ctx, node, input, execution)
	}

	if h.integration == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoIntegration, node.NodeType)
	}

	tmplCtx := &template.Context{
		ExecutionID: execution.ID(),
		WorkflowID:  execution.WorkflowID(),
		Node:        node,
		Variables:   execution.Variables(),
		Input:       input,
	}

	parameters := map[string]any{}

	if node.Config.Parameters != nil {
		rendered, err := template.RenderValue(node.Config.Parameters, tmplCtx.Data())
		if err != nil {
			return nil, fmt.Errorf("failed to render parameters: %w", err)
		}

		parameters = rendered.(map[string]any)
	}

	return h.integration.Invoke(ctx, Request{
		ActionType:  node.NodeType.ActionType,
		NodeID:      node.ID,
		ExecutionID: execution.ID(),
		Parameters:  parameters,
		Input:       input,
	})
}
