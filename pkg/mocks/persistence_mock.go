package mocks

import (
	"context"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionContextRepository is a mock implementation of persistence.ExecutionContextRepository interface.
type MockExecutionContextRepository struct {
	mock.Mock
}

func (m *MockExecutionContextRepository) SaveExecutionContext(ctx context.Context, execCtx *models.ExecutionContext) error {
	args := m.Called(ctx, execCtx)

	return args.Error(0)
}

func (m *MockExecutionContextRepository) GetExecutionContext(ctx context.Context, executionID uuid.UUID) (*models.ExecutionContext, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionContext), args.Error(1)
}

func (m *MockExecutionContextRepository) DeleteExecutionContext(ctx context.Context, executionID uuid.UUID) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

func (m *MockExecutionContextRepository) AppendTransition(ctx context.Context, transition *models.StateTransition) error {
	args := m.Called(ctx, transition)

	return args.Error(0)
}

func (m *MockExecutionContextRepository) Transitions(ctx context.Context, executionID uuid.UUID) ([]*models.StateTransition, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StateTransition), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Workflows  *MockWorkflowRepository
	Executions *MockExecutionContextRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:  &MockWorkflowRepository{},
		Executions: &MockExecutionContextRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) ExecutionContextRepository() persistence.ExecutionContextRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
