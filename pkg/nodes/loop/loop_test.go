package loop

import (
	"context"
	"testing"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/testutil"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopNode(loopType models.LoopType, parameters map[string]any) *models.Node {
	return testutil.ActionNode(models.ActionTypeHTTP,
		testutil.WithType(models.Loop(loopType)),
		testutil.WithConfig(parameters))
}

func newExecution(variables map[string]any) *workflow.Execution {
	return workflow.NewExecution(models.ExecutionContext{ExecutionID: uuid.New(), Variables: variables})
}

func TestHandler_ForEachJSONPath(t *testing.T) {
	node := loopNode(models.LoopTypeForEach, map[string]any{
		"items":      "$.input.output.orders",
		"expression": "{{ .index }}:{{ .item.id }}",
	})
	input := map[string]any{"output": map[string]any{
		"orders": []any{
			map[string]any{"id": "A"},
			map[string]any{"id": "B"},
		},
	}}

	output, err := NewHandler().Handle(context.Background(), node, input, newExecution(nil))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"iterations": 2,
		"results":    []any{"0:A", "1:B"},
	}, output)
}

func TestHandler_ForEachTemplateWithoutExpression(t *testing.T) {
	node := loopNode(models.LoopTypeForEach, map[string]any{"items": "{{ json .vars.ids }}"})

	output, err := NewHandler().Handle(context.Background(), node, nil, newExecution(map[string]any{"ids": []any{1, 2, 3}}))
	require.NoError(t, err)

	assert.Equal(t, 3, output.(map[string]any)["iterations"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, output.(map[string]any)["results"])
}

func TestHandler_ForEachErrors(t *testing.T) {
	_, err := NewHandler().Handle(context.Background(), loopNode(models.LoopTypeForEach, map[string]any{}), nil, newExecution(nil))
	assert.EqualError(t, err, "missing required field 'items'")

	node := loopNode(models.LoopTypeForEach, map[string]any{"items": "$.vars.name"})
	_, err = NewHandler().Handle(context.Background(), node, nil, newExecution(map[string]any{"name": "ada"}))
	assert.ErrorContains(t, err, "not an array")
}

func TestHandler_While(t *testing.T) {
	node := loopNode(models.LoopTypeWhile, map[string]any{
		"condition":  "{{ lt .iteration 3 }}",
		"expression": "{{ .iteration }}",
	})

	output, err := NewHandler().Handle(context.Background(), node, nil, newExecution(nil))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"iterations": 3,
		"results":    []any{0.0, 1.0, 2.0},
	}, output)
}

func TestHandler_WhileMaxIterations(t *testing.T) {
	node := loopNode(models.LoopTypeWhile, map[string]any{
		"condition":      "true",
		"max_iterations": 5,
	})

	_, err := NewHandler().Handle(context.Background(), node, nil, newExecution(nil))
	assert.ErrorIs(t, err, ErrMaxIterations)
}

func TestHandler_WhileStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	node := loopNode(models.LoopTypeWhile, map[string]any{"condition": "true"})

	_, err := NewHandler().Handle(ctx, node, nil, newExecution(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
