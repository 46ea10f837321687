// Package testutil provides workflow builders for tests.
package testutil

import (
	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a Manual trigger with one Any output, overridable.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:       uuid.New(),
		NodeType: models.Trigger(models.TriggerTypeManual),
		Config:   models.NodeConfig{Parameters: map[string]any{}},
		Position: models.Position{X: 100, Y: 200},
		Outputs:  []models.Port{{ID: "out", Name: "output", DataType: models.DataTypeAny}},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// TriggerNode builds a Manual trigger node.
func TriggerNode(overrides ...func(*models.Node)) *models.Node {
	return CreateTestNode(overrides...)
}

// ActionNode builds an action node with one input and one output of type Any.
func ActionNode(actionType models.ActionType, overrides ...func(*models.Node)) *models.Node {
	return CreateTestNode(append([]func(*models.Node){
		WithType(models.Action(actionType)),
		WithInputs(models.Port{ID: "in", Name: "input", DataType: models.DataTypeAny}),
	}, overrides...)...)
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.Node) {
	return func(n *models.Node) {
		n.NodeType = nodeType
	}
}

// WithConfig sets the node parameters.
func WithConfig(parameters map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = models.NodeConfig{Parameters: parameters}
	}
}

// WithInputs replaces the input ports.
func WithInputs(ports ...models.Port) func(*models.Node) {
	return func(n *models.Node) {
		n.Inputs = ports
	}
}

// WithOutputs replaces the output ports.
func WithOutputs(ports ...models.Port) func(*models.Node) {
	return func(n *models.Node) {
		n.Outputs = ports
	}
}

// Connect builds an edge between the first output of source and the first input of target.
func Connect(source, target *models.Node) *models.Edge {
	edge := &models.Edge{ID: uuid.New(), Source: source.ID, Target: target.ID}

	if len(source.Outputs) > 0 {
		edge.SourceHandle = source.Outputs[0].Name
	}

	if len(target.Inputs) > 0 {
		edge.TargetHandle = target.Inputs[0].Name
	}

	return edge
}

// Chain builds a workflow whose nodes are connected in sequence.
func Chain(nodes ...*models.Node) *models.Workflow {
	workflow := &models.Workflow{
		ID:        uuid.New(),
		Name:      "Test Workflow",
		Nodes:     nodes,
		Variables: map[string]any{},
	}

	for i := 1; i < len(nodes); i++ {
		workflow.Edges = append(workflow.Edges, Connect(nodes[i-1], nodes[i]))
	}

	return workflow
}
