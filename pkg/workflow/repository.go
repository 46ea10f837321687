package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
)

// Repository stores workflows after they pass structural and semantic checks.
type Repository struct {
	persistence persistence.Persistence
	parser      *Parser
	validator   *Validator
}

func NewRepository(persistence persistence.Persistence, parser *Parser, validator *Validator) *Repository {
	return &Repository{
		persistence: persistence,
		parser:      parser,
		validator:   validator,
	}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := r.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return make([]*models.Workflow, 0), err
	}

	return workflows, nil
}

// GetByID returns a stored workflow.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	return r.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Save checks the workflow and stores it. A workflow failing validation is
// rejected along with the validation report.
func (r *Repository) Save(ctx context.Context, workflow *models.Workflow) (models.ValidationResult, error) {
	if workflow.ID == uuid.Nil {
		workflow.ID = uuid.New()
	}

	err := r.parser.Check(workflow)
	if err != nil {
		return models.ValidationResult{Errors: []string{err.Error()}}, err
	}

	result, err := r.validator.ValidateExecutable(workflow)
	if err != nil {
		return result, err
	}

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return result, fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return result, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.persistence.WorkflowRepository().Delete(ctx, id)
}
