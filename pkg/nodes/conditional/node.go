// Package conditional implements Condition nodes.
package conditional

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukex/dagflow/pkg/models"
	switchnode "github.com/dukex/dagflow/pkg/nodes/switch"
	"github.com/dukex/dagflow/pkg/template"
	"github.com/dukex/dagflow/pkg/workflow"
)

const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Handler evaluates If conditions and Switch values. The chosen branch is
// reported in the output under "branch".
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Handle(
	_ context.Context,
	node *models.Node,
	input map[string]any,
	execution *workflow.Execution,
) (any, error) {
	tmplCtx := &template.Context{
		ExecutionID: execution.ID(),
		WorkflowID:  execution.WorkflowID(),
		Node:        node,
		Variables:   execution.Variables(),
		Input:       input,
	}

	switch node.NodeType.ConditionType {
	case models.ConditionTypeSwitch:
		return switchnode.Evaluate(node.Config.Parameters, tmplCtx)
	case models.ConditionTypeIf:
		return evaluateIf(node.Config.Parameters, tmplCtx)
	default:
		return nil, fmt.Errorf("unsupported condition type %q", node.NodeType.ConditionType)
	}
}

func evaluateIf(parameters map[string]any, tmplCtx *template.Context) (map[string]any, error) {
	condition, ok := parameters["condition"].(string)
	if !ok {
		return nil, errors.New("missing required field 'condition'")
	}

	result, err := template.RenderWithContext(condition, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("condition evaluation failed: %w", err)
	}

	branch := BranchFalse
	isTrue := Truthy(result)

	if isTrue {
		branch = BranchTrue
	}

	return map[string]any{
		"condition_result": isTrue,
		"branch":           branch,
		"evaluated_value":  result,
	}, nil
}

// Truthy converts a rendered value to a boolean. Unknown types are false.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}
