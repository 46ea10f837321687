// Package persistence provides the storage contracts for workflows and execution state.
package persistence

import (
	"context"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionContextRepository() ExecutionContextRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionContextRepository is the durable store behind executor checkpoints:
// save a serialized context, load it by id and append state transitions.
type ExecutionContextRepository interface {
	SaveExecutionContext(ctx context.Context, execCtx *models.ExecutionContext) error
	GetExecutionContext(ctx context.Context, executionID uuid.UUID) (*models.ExecutionContext, error)
	DeleteExecutionContext(ctx context.Context, executionID uuid.UUID) error

	AppendTransition(ctx context.Context, transition *models.StateTransition) error
	Transitions(ctx context.Context, executionID uuid.UUID) ([]*models.StateTransition, error)
}
