package workflow

import (
	"strings"
	"testing"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_TwoNodeWorkflowIsValid(t *testing.T) {
	workflow := testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeHTTP))

	result := NewValidator().Validate(workflow)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidator_NodeRules(t *testing.T) {
	tests := []struct {
		name     string
		node     *models.Node
		errors   []string
		warnings []string
	}{
		{
			name:   "trigger without outputs",
			node:   testutil.TriggerNode(testutil.WithOutputs()),
			errors: []string{"must have at least one output"},
		},
		{
			name: "trigger with inputs",
			node: testutil.TriggerNode(testutil.WithInputs(
				models.Port{ID: "in", Name: "input", DataType: models.DataTypeAny})),
			warnings: []string{"has input ports, which is unusual"},
		},
		{
			name: "condition with a single branch",
			node: testutil.ActionNode(models.ActionTypeHTTP,
				testutil.WithType(models.Condition(models.ConditionTypeIf))),
			errors: []string{"at least 2 outputs (true/false branches)"},
		},
		{
			name: "loop without inputs",
			node: testutil.ActionNode(models.ActionTypeHTTP,
				testutil.WithType(models.Loop(models.LoopTypeForEach)), testutil.WithInputs()),
			errors: []string{"must have at least one input"},
		},
		{
			name: "custom without code",
			node: testutil.ActionNode(models.ActionTypeHTTP,
				testutil.WithType(models.Custom("javascript", ""))),
			errors: []string{"has no code"},
		},
		{
			name: "custom without language",
			node: testutil.ActionNode(models.ActionTypeHTTP,
				testutil.WithType(models.Custom("", "return 1"))),
			errors: []string{"Missing required field 'language'"},
		},
		{
			name: "webhook trigger without url",
			node: testutil.TriggerNode(testutil.WithType(models.Trigger(models.TriggerTypeWebhook))),
			errors: []string{
				"Required field validation failed: Missing required field 'webhook_url'",
			},
		},
		{
			name: "schedule trigger without cron expression",
			node: testutil.TriggerNode(testutil.WithType(models.Trigger(models.TriggerTypeSchedule))),
			errors: []string{"Missing required field 'cron_expression'"},
		},
		{
			name: "ai node without model and prompt",
			node: testutil.ActionNode(models.ActionTypeHTTP,
				testutil.WithType(models.AI(models.AINodeTypeTextGeneration))),
			errors: []string{"Missing required field 'model'", "Missing required field 'prompt'"},
		},
		{
			name: "unnamed output port",
			node: testutil.TriggerNode(testutil.WithOutputs(models.Port{ID: "out", DataType: models.DataTypeAny})),
			errors: []string{"Output port 0 of node"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := &models.Workflow{ID: uuid.New(), Nodes: []*models.Node{tt.node}}

			result := NewValidator().Validate(workflow)

			assert.Equal(t, len(tt.errors) == 0, result.Valid)
			require.Len(t, result.Errors, len(tt.errors))

			for i, fragment := range tt.errors {
				assert.Contains(t, result.Errors[i], fragment)
			}

			for _, fragment := range tt.warnings {
				found := false

				for _, warning := range result.Warnings {
					if strings.Contains(warning, fragment) {
						found = true
					}
				}

				assert.True(t, found, "missing warning %q in %v", fragment, result.Warnings)
			}
		})
	}
}

func TestValidator_RequiredFieldsSatisfied(t *testing.T) {
	node := testutil.ActionNode(models.ActionTypeHTTP,
		testutil.WithType(models.AI(models.AINodeTypeClassification)),
		testutil.WithConfig(map[string]any{"model": "small", "prompt": "label it"}))

	result := NewValidator().Validate(&models.Workflow{ID: uuid.New(), Nodes: []*models.Node{node}})

	assert.True(t, result.Valid)
}

func TestValidator_Connections(t *testing.T) {
	t.Run("incompatible types", func(t *testing.T) {
		trigger := testutil.TriggerNode(testutil.WithOutputs(
			models.Port{ID: "count", Name: "count", DataType: models.DataTypeNumber}))
		action := testutil.ActionNode(models.ActionTypeHTTP, testutil.WithInputs(
			models.Port{ID: "body", Name: "body", DataType: models.DataTypeString}))

		result := NewValidator().Validate(testutil.Chain(trigger, action))

		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "Connection validation failed: Incompatible types")
		assert.Contains(t, result.Errors[0], "(Number)")
		assert.Contains(t, result.Errors[0], "(String)")
	})

	t.Run("any accepts everything", func(t *testing.T) {
		trigger := testutil.TriggerNode(testutil.WithOutputs(
			models.Port{ID: "count", Name: "count", DataType: models.DataTypeNumber}))
		action := testutil.ActionNode(models.ActionTypeHTTP)

		result := NewValidator().Validate(testutil.Chain(trigger, action))

		assert.True(t, result.Valid)
	})

	t.Run("named port not found", func(t *testing.T) {
		trigger := testutil.TriggerNode()
		action := testutil.ActionNode(models.ActionTypeHTTP)
		workflow := testutil.Chain(trigger, action)
		workflow.Edges[0].SourceHandle = "missing"

		result := NewValidator().Validate(workflow)

		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "missing")
	})

	t.Run("target without input ports", func(t *testing.T) {
		trigger := testutil.TriggerNode()
		action := testutil.ActionNode(models.ActionTypeHTTP, testutil.WithInputs())
		workflow := testutil.Chain(trigger, action)

		result := NewValidator().Validate(workflow)

		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
	})
}

func TestValidator_IsolatedNodeWarning(t *testing.T) {
	trigger := testutil.TriggerNode()
	action := testutil.ActionNode(models.ActionTypeHTTP)
	lonely := testutil.ActionNode(models.ActionTypeEmail)

	workflow := testutil.Chain(trigger, action)
	workflow.Nodes = append(workflow.Nodes, lonely)

	result := NewValidator().Validate(workflow)

	assert.True(t, result.Valid)
	assert.Equal(t, []string{"Node " + lonely.ID.String() + " is isolated (no connections)"}, result.Warnings)
}

func TestValidator_ValidateHasTrigger(t *testing.T) {
	validator := NewValidator()

	assert.NoError(t, validator.ValidateHasTrigger(testutil.Chain(testutil.TriggerNode())))

	err := validator.ValidateHasTrigger(testutil.Chain(testutil.ActionNode(models.ActionTypeHTTP)))
	assert.ErrorIs(t, err, ErrNoTriggerNode)
}

func TestValidator_ValidateReachability(t *testing.T) {
	validator := NewValidator()
	trigger := testutil.TriggerNode()
	action := testutil.ActionNode(models.ActionTypeHTTP)

	workflow := testutil.Chain(trigger, action)
	require.NoError(t, validator.ValidateReachability(workflow))

	orphanSource := testutil.ActionNode(models.ActionTypeEmail)
	orphanTarget := testutil.ActionNode(models.ActionTypeDatabase)
	workflow.Nodes = append(workflow.Nodes, orphanSource, orphanTarget)
	workflow.Edges = append(workflow.Edges, testutil.Connect(orphanSource, orphanTarget))

	err := validator.ValidateReachability(workflow)
	require.ErrorIs(t, err, ErrUnreachableNodes)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []uuid.UUID{orphanSource.ID, orphanTarget.ID}, validationErr.Nodes)
}

func TestValidator_ValidateExecutable(t *testing.T) {
	validator := NewValidator()

	result, err := validator.ValidateExecutable(testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeHTTP)))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = validator.ValidateExecutable(testutil.Chain(testutil.ActionNode(models.ActionTypeHTTP)))
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
	assert.Equal(t, RecoveryFixConfiguration, SuggestRecovery(err))
}
