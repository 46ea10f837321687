package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// Parser turns workflow definitions into checked Workflow values and derives
// their execution order. It holds no state and is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a JSON definition and checks its structure. The first failing
// check wins and no workflow is returned.
func (p *Parser) Parse(definition []byte) (*models.Workflow, error) {
	var workflow models.Workflow

	err := json.Unmarshal(definition, &workflow)
	if err != nil {
		return nil, &ParseError{Err: ErrInvalidInput, Detail: err.Error()}
	}

	err = p.Check(&workflow)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// Check runs the structural checks of Parse on an already decoded workflow.
func (p *Parser) Check(workflow *models.Workflow) error {
	err := p.checkStructure(workflow)
	if err != nil {
		return err
	}

	err = p.checkStartingNode(workflow)
	if err != nil {
		return err
	}

	return p.detectCycles(workflow)
}

func (p *Parser) checkStructure(workflow *models.Workflow) error {
	if len(workflow.Nodes) == 0 {
		return &ParseError{Err: ErrEmptyWorkflow}
	}

	nodeIDs := make(map[uuid.UUID]struct{}, len(workflow.Nodes))

	for i, node := range workflow.Nodes {
		if node == nil {
			return &ParseError{Err: ErrInvalidInput, Detail: fmt.Sprintf("node %d is null", i)}
		}

		if _, exists := nodeIDs[node.ID]; exists {
			return &ParseError{Err: ErrDuplicateNodeID, NodeID: node.ID}
		}

		nodeIDs[node.ID] = struct{}{}
	}

	for i, edge := range workflow.Edges {
		if edge == nil {
			return &ParseError{Err: ErrInvalidInput, Detail: fmt.Sprintf("edge %d is null", i)}
		}

		if _, ok := nodeIDs[edge.Source]; !ok {
			return &ParseError{Err: ErrInvalidEdgeSource, NodeID: edge.Source}
		}

		if _, ok := nodeIDs[edge.Target]; !ok {
			return &ParseError{Err: ErrInvalidEdgeTarget, NodeID: edge.Target}
		}
	}

	return nil
}

func (p *Parser) checkStartingNode(workflow *models.Workflow) error {
	sources := make(map[uuid.UUID][]uuid.UUID)
	for _, edge := range workflow.Edges {
		sources[edge.Target] = append(sources[edge.Target], edge.Source)
	}

	for _, node := range workflow.Nodes {
		if len(sources[node.ID]) == 0 {
			return nil
		}
	}

	return &ParseError{Err: ErrNoStartingNode}
}

func (p *Parser) detectCycles(workflow *models.Workflow) error {
	adjacency := forwardAdjacency(workflow)
	visited := make(map[uuid.UUID]bool, len(workflow.Nodes))
	onStack := make(map[uuid.UUID]bool)

	var visit func(id uuid.UUID) (uuid.UUID, bool)

	visit = func(id uuid.UUID) (uuid.UUID, bool) {
		visited[id] = true
		onStack[id] = true

		for _, next := range adjacency[id] {
			if !visited[next] {
				if closedAt, found := visit(next); found {
					return closedAt, true
				}
			} else if onStack[next] {
				return next, true
			}
		}

		onStack[id] = false

		return uuid.Nil, false
	}

	for _, node := range workflow.Nodes {
		if visited[node.ID] {
			continue
		}

		if closedAt, found := visit(node.ID); found {
			return &ParseError{Err: ErrCycleDetected, NodeID: closedAt}
		}
	}

	return nil
}

// TopologicalSort returns node ids so that every edge points forward. Ready
// nodes are taken in FIFO order, seeded in node definition order, so the
// result is deterministic for a given workflow.
func (p *Parser) TopologicalSort(workflow *models.Workflow) ([]uuid.UUID, error) {
	inDegree := make(map[uuid.UUID]int, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		inDegree[node.ID] = 0
	}

	for _, edge := range workflow.Edges {
		if _, ok := inDegree[edge.Target]; !ok {
			return nil, &ParseError{Err: ErrInvalidEdgeTarget, NodeID: edge.Target}
		}

		inDegree[edge.Target]++
	}

	adjacency := forwardAdjacency(workflow)

	queue := make([]uuid.UUID, 0, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	sorted := make([]uuid.UUID, 0, len(workflow.Nodes))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(workflow.Nodes) {
		return nil, &ParseError{
			Err:    ErrCycleDetected,
			Detail: fmt.Sprintf("ordered %d of %d nodes", len(sorted), len(workflow.Nodes)),
		}
	}

	return sorted, nil
}

// NodeDependencies returns the sources of every edge targeting the node, in edge order.
func (p *Parser) NodeDependencies(workflow *models.Workflow, nodeID uuid.UUID) []uuid.UUID {
	var dependencies []uuid.UUID

	for _, edge := range workflow.Edges {
		if edge.Target == nodeID {
			dependencies = append(dependencies, edge.Source)
		}
	}

	return dependencies
}

// NodeDependents returns the targets of every edge leaving the node, in edge order.
func (p *Parser) NodeDependents(workflow *models.Workflow, nodeID uuid.UUID) []uuid.UUID {
	var dependents []uuid.UUID

	for _, edge := range workflow.Edges {
		if edge.Source == nodeID {
			dependents = append(dependents, edge.Target)
		}
	}

	return dependents
}

func forwardAdjacency(workflow *models.Workflow) map[uuid.UUID][]uuid.UUID {
	adjacency := make(map[uuid.UUID][]uuid.UUID, len(workflow.Nodes))
	for _, edge := range workflow.Edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	return adjacency
}
