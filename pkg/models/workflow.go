// Package models defines the core domain models for graph-based workflow automation
package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow is a versioned automation graph. Nodes and edges reference each other
// by id only; traversal structures are built on demand.
type Workflow struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Variables   map[string]any `json:"variables"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Edge is a directed dependency from a source node output to a target node input.
type Edge struct {
	ID           uuid.UUID `json:"id"`
	Source       uuid.UUID `json:"source"`
	SourceHandle string    `json:"source_handle"`
	Target       uuid.UUID `json:"target"`
	TargetHandle string    `json:"target_handle"`
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id uuid.UUID) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// IncomingEdges returns every edge whose target is the given node, in definition order.
func (w *Workflow) IncomingEdges(id uuid.UUID) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Target == id {
			edges = append(edges, edge)
		}
	}

	return edges
}

// OutgoingEdges returns every edge whose source is the given node, in definition order.
func (w *Workflow) OutgoingEdges(id uuid.UUID) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Source == id {
			edges = append(edges, edge)
		}
	}

	return edges
}

// TriggerNodes returns the nodes of kind Trigger.
func (w *Workflow) TriggerNodes() []*Node {
	var triggers []*Node

	for _, node := range w.Nodes {
		if node.IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
