// Package file stores workflows and execution state as JSON documents under a
// root directory.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/dagflow/pkg/persistence"
)

// Persistence lays out its root as workflows/, execution_contexts/ and
// execution_transitions/.
type Persistence struct {
	root       string
	workflows  *WorkflowRepository
	executions *ExecutionContextRepository
}

// NewPersistence accepts a directory or a file:// URL.
func NewPersistence(root string) persistence.Persistence {
	root = strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:       root,
		workflows:  NewWorkflowRepository(root),
		executions: NewExecutionContextRepository(root),
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck reports whether the root is an existing directory.
func (p *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("persistence root %s is not a directory", p.root)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionContextRepository() persistence.ExecutionContextRepository {
	return p.executions
}
