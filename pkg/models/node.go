package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NodeKind is the tag of the NodeType variant.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "Trigger"
	NodeKindAction    NodeKind = "Action"
	NodeKindCondition NodeKind = "Condition"
	NodeKindLoop      NodeKind = "Loop"
	NodeKindAI        NodeKind = "AI"
	NodeKindCustom    NodeKind = "Custom"
)

// NodeKinds lists every NodeKind in a stable order.
var NodeKinds = []NodeKind{
	NodeKindTrigger,
	NodeKindAction,
	NodeKindCondition,
	NodeKindLoop,
	NodeKindAI,
	NodeKindCustom,
}

type TriggerType string

const (
	TriggerTypeWebhook  TriggerType = "Webhook"
	TriggerTypeSchedule TriggerType = "Schedule"
	TriggerTypeManual   TriggerType = "Manual"
)

type ActionType string

const (
	ActionTypeHTTP        ActionType = "Http"
	ActionTypeEmail       ActionType = "Email"
	ActionTypeDatabase    ActionType = "Database"
	ActionTypeIntegration ActionType = "Integration"
)

type ConditionType string

const (
	ConditionTypeIf     ConditionType = "If"
	ConditionTypeSwitch ConditionType = "Switch"
)

type LoopType string

const (
	LoopTypeForEach LoopType = "ForEach"
	LoopTypeWhile   LoopType = "While"
)

type AINodeType string

const (
	AINodeTypeTextGeneration AINodeType = "TextGeneration"
	AINodeTypeToolCalling    AINodeType = "ToolCalling"
	AINodeTypeClassification AINodeType = "Classification"
)

// CustomNodeConfig holds user supplied code for Custom nodes.
type CustomNodeConfig struct {
	Language     string   `json:"language"`
	Code         string   `json:"code"`
	Dependencies []string `json:"dependencies"`
}

// NodeType is a closed tagged variant. Kind selects which of the remaining
// fields is meaningful; it is encoded as {"type": "<Kind>", ...}.
type NodeType struct {
	Kind          NodeKind          `json:"type"`
	TriggerType   TriggerType       `json:"trigger_type,omitempty"`
	ActionType    ActionType        `json:"action_type,omitempty"`
	ConditionType ConditionType     `json:"condition_type,omitempty"`
	LoopType      LoopType          `json:"loop_type,omitempty"`
	AIType        AINodeType        `json:"ai_type,omitempty"`
	Custom        *CustomNodeConfig `json:"config,omitempty"`
}

func Trigger(t TriggerType) NodeType { return NodeType{Kind: NodeKindTrigger, TriggerType: t} }

func Action(t ActionType) NodeType { return NodeType{Kind: NodeKindAction, ActionType: t} }

func Condition(t ConditionType) NodeType {
	return NodeType{Kind: NodeKindCondition, ConditionType: t}
}

func Loop(t LoopType) NodeType { return NodeType{Kind: NodeKindLoop, LoopType: t} }

func AI(t AINodeType) NodeType { return NodeType{Kind: NodeKindAI, AIType: t} }

func Custom(language, code string, dependencies ...string) NodeType {
	return NodeType{
		Kind: NodeKindCustom,
		Custom: &CustomNodeConfig{
			Language:     language,
			Code:         code,
			Dependencies: dependencies,
		},
	}
}

// UnmarshalJSON rejects unknown variants so a malformed definition fails decoding.
func (t *NodeType) UnmarshalJSON(data []byte) error {
	type plain NodeType

	var decoded plain

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}

	switch decoded.Kind {
	case NodeKindTrigger, NodeKindAction, NodeKindCondition, NodeKindLoop, NodeKindAI:
	case NodeKindCustom:
		if decoded.Custom == nil {
			return fmt.Errorf("node type %s requires a config object", decoded.Kind)
		}
	case "":
		return fmt.Errorf("node type is missing the \"type\" tag")
	default:
		return fmt.Errorf("unknown node type %q", decoded.Kind)
	}

	*t = NodeType(decoded)

	return nil
}

// String returns "Kind" or "Kind:Subtype".
func (t NodeType) String() string {
	sub := ""

	switch t.Kind {
	case NodeKindTrigger:
		sub = string(t.TriggerType)
	case NodeKindAction:
		sub = string(t.ActionType)
	case NodeKindCondition:
		sub = string(t.ConditionType)
	case NodeKindLoop:
		sub = string(t.LoopType)
	case NodeKindAI:
		sub = string(t.AIType)
	case NodeKindCustom:
		if t.Custom != nil {
			sub = t.Custom.Language
		}
	}

	if sub == "" {
		return string(t.Kind)
	}

	return string(t.Kind) + ":" + sub
}

// NodeConfig carries the free-form parameters of a node.
type NodeConfig struct {
	Parameters map[string]any `json:"parameters"`
}

// Has reports whether the parameter key is present, regardless of its value.
func (c NodeConfig) Has(key string) bool {
	_, ok := c.Parameters[key]

	return ok
}

// String returns the parameter as a string, or "" when absent or not a string.
func (c NodeConfig) String(key string) string {
	value, _ := c.Parameters[key].(string)

	return value
}

// Position is the canvas location used by authoring tools.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a unit of work in a workflow.
type Node struct {
	ID       uuid.UUID  `json:"id"`
	NodeType NodeType   `json:"node_type"`
	Config   NodeConfig `json:"config"`
	Position Position   `json:"position"`
	Inputs   []Port     `json:"inputs"`
	Outputs  []Port     `json:"outputs"`
}

func (n *Node) IsTrigger() bool {
	return n.NodeType.Kind == NodeKindTrigger
}

// OutputPort resolves the named output port, or the first one when name is empty.
func (n *Node) OutputPort(name string) (Port, bool) {
	return findPort(n.Outputs, name)
}

// InputPort resolves the named input port, or the first one when name is empty.
func (n *Node) InputPort(name string) (Port, bool) {
	return findPort(n.Inputs, name)
}

func findPort(ports []Port, name string) (Port, bool) {
	if name == "" {
		if len(ports) == 0 {
			return Port{}, false
		}

		return ports[0], true
	}

	for _, port := range ports {
		if port.Name == name {
			return port, true
		}
	}

	return Port{}, false
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)
