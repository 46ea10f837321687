package workflow

import (
	"fmt"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// Required configuration keys per node variant.
var (
	webhookTriggerFields  = []string{"webhook_url"}
	scheduleTriggerFields = []string{"cron_expression"}
	aiNodeFields          = []string{"model", "prompt"}
)

// Validator runs the semantic checks that gate execution. It never mutates the
// workflow and reports every problem it finds.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks node configuration, port wiring and type compatibility.
func (v *Validator) Validate(workflow *models.Workflow) models.ValidationResult {
	result := models.ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}

	for _, node := range workflow.Nodes {
		v.validateNode(node, &result)
	}

	for _, edge := range workflow.Edges {
		err := v.validateConnection(workflow, edge)
		if err != nil {
			result.AddError(fmt.Sprintf("Connection validation failed: %v", err))
		}
	}

	connected := make(map[uuid.UUID]bool, len(workflow.Nodes))
	for _, edge := range workflow.Edges {
		connected[edge.Source] = true
		connected[edge.Target] = true
	}

	for _, node := range workflow.Nodes {
		if !node.IsTrigger() && !connected[node.ID] {
			result.AddWarning(fmt.Sprintf("Node %s is isolated (no connections)", node.ID))
		}
	}

	return result
}

func (v *Validator) validateNode(node *models.Node, result *models.ValidationResult) {
	switch node.NodeType.Kind {
	case models.NodeKindTrigger:
		if len(node.Inputs) > 0 {
			result.AddWarning(fmt.Sprintf("Trigger node %s has input ports, which is unusual", node.ID))
		}

		if len(node.Outputs) == 0 {
			result.AddError(fmt.Sprintf("Trigger node %s must have at least one output", node.ID))
		}
	case models.NodeKindAction:
		if len(node.Inputs) == 0 {
			result.AddWarning(fmt.Sprintf("Action node %s has no input ports", node.ID))
		}
	case models.NodeKindCondition:
		if len(node.Outputs) < 2 {
			result.AddError(fmt.Sprintf(
				"Condition node %s should have at least 2 outputs (true/false branches)", node.ID))
		}
	case models.NodeKindLoop:
		if len(node.Inputs) == 0 {
			result.AddError(fmt.Sprintf("Loop node %s must have at least one input", node.ID))
		}
	case models.NodeKindAI:
		if len(node.Inputs) == 0 {
			result.AddWarning(fmt.Sprintf("AI node %s has no inputs", node.ID))
		}
	case models.NodeKindCustom:
		if node.NodeType.Custom == nil || node.NodeType.Custom.Code == "" {
			result.AddError(fmt.Sprintf("Custom node %s has no code", node.ID))
		}
	}

	for _, err := range v.requiredFields(node) {
		result.AddError(fmt.Sprintf("Required field validation failed: %v", err))
	}

	for idx, port := range node.Inputs {
		if port.Name == "" {
			result.AddError(fmt.Sprintf("Input port %d of node %s has no name", idx, node.ID))
		}
	}

	for idx, port := range node.Outputs {
		if port.Name == "" {
			result.AddError(fmt.Sprintf("Output port %d of node %s has no name", idx, node.ID))
		}
	}
}

func (v *Validator) requiredFields(node *models.Node) []error {
	var missing []string

	switch node.NodeType.Kind {
	case models.NodeKindTrigger:
		switch node.NodeType.TriggerType {
		case models.TriggerTypeWebhook:
			missing = missingKeys(node.Config, webhookTriggerFields)
		case models.TriggerTypeSchedule:
			missing = missingKeys(node.Config, scheduleTriggerFields)
		case models.TriggerTypeManual:
		}
	case models.NodeKindAI:
		missing = missingKeys(node.Config, aiNodeFields)
	case models.NodeKindCustom:
		if node.NodeType.Custom == nil || node.NodeType.Custom.Language == "" {
			missing = []string{"language"}
		}
	default:
	}

	errs := make([]error, 0, len(missing))
	for _, field := range missing {
		errs = append(errs, &ValidationError{Err: ErrMissingRequiredField, NodeID: node.ID, Field: field})
	}

	return errs
}

func missingKeys(config models.NodeConfig, keys []string) []string {
	var missing []string

	for _, key := range keys {
		if !config.Has(key) {
			missing = append(missing, key)
		}
	}

	return missing
}

func (v *Validator) validateConnection(workflow *models.Workflow, edge *models.Edge) error {
	source, ok := workflow.NodeByID(edge.Source)
	if !ok {
		return &ValidationError{Err: ErrNodeNotFound, NodeID: edge.Source}
	}

	target, ok := workflow.NodeByID(edge.Target)
	if !ok {
		return &ValidationError{Err: ErrNodeNotFound, NodeID: edge.Target}
	}

	sourcePort, ok := source.OutputPort(edge.SourceHandle)
	if !ok {
		if edge.SourceHandle == "" {
			return &ValidationError{Err: ErrNoOutputPorts, NodeID: edge.Source}
		}

		return &ValidationError{Err: ErrPortNotFound, NodeID: edge.Source, Port: edge.SourceHandle}
	}

	targetPort, ok := target.InputPort(edge.TargetHandle)
	if !ok {
		if edge.TargetHandle == "" {
			return &ValidationError{Err: ErrNoInputPorts, NodeID: edge.Target}
		}

		return &ValidationError{Err: ErrPortNotFound, NodeID: edge.Target, Port: edge.TargetHandle}
	}

	if !sourcePort.DataType.CompatibleWith(targetPort.DataType) {
		return &ValidationError{
			Err:        ErrIncompatibleTypes,
			NodeID:     edge.Source,
			TargetID:   edge.Target,
			SourceType: string(sourcePort.DataType),
			TargetType: string(targetPort.DataType),
		}
	}

	return nil
}

// ValidateHasTrigger fails when no node is a trigger.
func (v *Validator) ValidateHasTrigger(workflow *models.Workflow) error {
	if len(workflow.TriggerNodes()) == 0 {
		return &ValidationError{Err: ErrNoTriggerNode}
	}

	return nil
}

// ValidateReachability walks forward edges breadth-first from every trigger and
// reports the nodes never reached, in definition order.
func (v *Validator) ValidateReachability(workflow *models.Workflow) error {
	triggers := workflow.TriggerNodes()
	if len(triggers) == 0 {
		return &ValidationError{Err: ErrNoTriggerNode}
	}

	adjacency := forwardAdjacency(workflow)
	reachable := make(map[uuid.UUID]bool, len(workflow.Nodes))
	queue := make([]uuid.UUID, 0, len(workflow.Nodes))

	for _, trigger := range triggers {
		if !reachable[trigger.ID] {
			reachable[trigger.ID] = true
			queue = append(queue, trigger.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[id] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []uuid.UUID

	for _, node := range workflow.Nodes {
		if !reachable[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}

	if len(unreachable) > 0 {
		return &ValidationError{Err: ErrUnreachableNodes, Nodes: unreachable}
	}

	return nil
}

// ValidateExecutable runs every check required before a run is allowed and
// folds the failures into a single ErrValidationFailed.
func (v *Validator) ValidateExecutable(workflow *models.Workflow) (models.ValidationResult, error) {
	result := v.Validate(workflow)

	err := v.ValidateHasTrigger(workflow)
	if err == nil {
		err = v.ValidateReachability(workflow)
	}

	if err != nil {
		result.AddError(err.Error())
	}

	if !result.Valid {
		return result, &ExecutionError{Err: ErrValidationFailed, Reason: fmt.Sprintf("%d error(s)", len(result.Errors))}
	}

	return result, nil
}
