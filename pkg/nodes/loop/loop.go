// Package loop implements ForEach and While loop nodes.
package loop

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes/conditional"
	"github.com/dukex/dagflow/pkg/template"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/oliveagle/jsonpath"
)

const (
	DefaultMaxIterations = 100
	maxForEachItems      = 10000
)

var ErrMaxIterations = errors.New("loop exceeded max_iterations")

// Handler runs a loop node. Each iteration renders the optional "expression"
// template with .item/.index (ForEach) or .iteration/.last (While) added to
// the template data; the rendered values are collected in "results".
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Handle(
	ctx context.Context,
	node *models.Node,
	input map[string]any,
	execution *workflow.Execution,
) (any, error) {
	data := (&template.Context{
		ExecutionID: execution.ID(),
		WorkflowID:  execution.WorkflowID(),
		Node:        node,
		Variables:   execution.Variables(),
		Input:       input,
	}).Data()

	switch node.NodeType.LoopType {
	case models.LoopTypeForEach:
		return forEach(ctx, node.Config, data)
	case models.LoopTypeWhile:
		return while(ctx, node.Config, data)
	default:
		return nil, fmt.Errorf("unsupported loop type %q", node.NodeType.LoopType)
	}
}

// forEach selects the items with a JSONPath ("$.input.output.orders") or a
// template rendering to an array.
func forEach(ctx context.Context, config models.NodeConfig, data map[string]any) (map[string]any, error) {
	selector := config.String("items")
	if selector == "" {
		return nil, errors.New("missing required field 'items'")
	}

	items, err := selectItems(selector, data)
	if err != nil {
		return nil, err
	}

	if len(items) > maxForEachItems {
		return nil, fmt.Errorf("%w: %d items", ErrMaxIterations, len(items))
	}

	expression := config.String("expression")
	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iteration := maps.Clone(data)
		iteration["item"] = item
		iteration["index"] = i

		result, err := render(expression, iteration, item)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}

		results = append(results, result)
	}

	return map[string]any{
		"iterations": len(items),
		"results":    results,
	}, nil
}

func selectItems(selector string, data map[string]any) ([]any, error) {
	var (
		value any
		err   error
	)

	if strings.HasPrefix(selector, "$") {
		value, err = jsonpath.JsonPathLookup(data, selector)
		if err != nil {
			return nil, fmt.Errorf("items lookup %s: %w", selector, err)
		}
	} else {
		value, err = template.Render(selector, data)
		if err != nil {
			return nil, fmt.Errorf("items template: %w", err)
		}
	}

	switch v := value.(type) {
	case []any:
		return v, nil
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("items %s is %T, not an array", selector, value)
	}
}

// while renders "condition" before each iteration and stops when it is
// false. It fails once max_iterations is reached with the condition still true.
func while(ctx context.Context, config models.NodeConfig, data map[string]any) (map[string]any, error) {
	condition := config.String("condition")
	if condition == "" {
		return nil, errors.New("missing required field 'condition'")
	}

	maxIterations := DefaultMaxIterations
	if n, ok := config.Parameters["max_iterations"].(float64); ok {
		maxIterations = int(n)
	} else if n, ok := config.Parameters["max_iterations"].(int); ok {
		maxIterations = n
	}

	expression := config.String("expression")
	results := make([]any, 0)

	var last any

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iteration := maps.Clone(data)
		iteration["iteration"] = i
		iteration["last"] = last

		ok, err := template.Render(condition, iteration)
		if err != nil {
			return nil, fmt.Errorf("condition evaluation failed: %w", err)
		}

		if !conditional.Truthy(ok) {
			return map[string]any{
				"iterations": i,
				"results":    results,
			}, nil
		}

		if i >= maxIterations {
			return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, maxIterations)
		}

		last, err = render(expression, iteration, i)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}

		results = append(results, last)
	}
}

func render(expression string, data map[string]any, fallback any) (any, error) {
	if expression == "" {
		return fallback, nil
	}

	return template.Render(expression, data)
}
