package file

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/dukex/dagflow/pkg/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence("file://" + t.TempDir())
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/does/not/exist/dagflow")
	assert.Error(t, missing.HealthCheck(context.Background()))
}

func TestWorkflowRepository_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).WorkflowRepository()

	trigger := uuid.New()
	wf := &models.Workflow{
		ID:   uuid.New(),
		Name: "orders",
		Nodes: []*models.Node{
			{ID: trigger, NodeType: models.Trigger(models.TriggerTypeManual)},
		},
		Variables: map[string]any{"region": "eu"},
	}

	require.NoError(t, repo.Save(ctx, wf))
	assert.False(t, wf.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "orders", loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, trigger, loaded.Nodes[0].ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, wf.ID))
	require.NoError(t, repo.Delete(ctx, wf.ID))

	_, err = repo.GetByID(ctx, wf.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_GetAllEmpty(t *testing.T) {
	all, err := NewWorkflowRepository(t.TempDir()).GetAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExecutionContextRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).ExecutionContextRepository()

	node := uuid.New()
	execCtx := &models.ExecutionContext{
		ExecutionID: uuid.New(),
		WorkflowID:  uuid.New(),
		Variables:   map[string]any{"node_" + node.String(): map[string]any{"ok": true}},
		State:       models.ExecutionStateRunning,
		StartedAt:   time.Now().UTC(),
		CurrentNode: &node,
	}

	_, err := repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	assert.True(t, persistence.IsExecutionContextNotFound(err))

	require.NoError(t, repo.SaveExecutionContext(ctx, execCtx))

	loaded, err := repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStateRunning, loaded.State)
	require.NotNil(t, loaded.CurrentNode)
	assert.Equal(t, node, *loaded.CurrentNode)
	assert.Contains(t, loaded.Variables, "node_"+node.String())

	transitions, err := repo.Transitions(ctx, execCtx.ExecutionID)
	require.NoError(t, err)
	assert.Empty(t, transitions)

	require.NoError(t, repo.AppendTransition(ctx, &models.StateTransition{
		ExecutionID: execCtx.ExecutionID,
		State:       models.ExecutionStateRunning,
		RecordedAt:  time.Now().UTC(),
	}))
	require.NoError(t, repo.AppendTransition(ctx, &models.StateTransition{
		ExecutionID: execCtx.ExecutionID,
		NodeID:      &node,
		State:       models.ExecutionStateFailed,
		Error:       "boom",
		RecordedAt:  time.Now().UTC(),
	}))

	transitions, err = repo.Transitions(ctx, execCtx.ExecutionID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, models.ExecutionStateRunning, transitions[0].State)
	assert.Equal(t, "boom", transitions[1].Error)

	require.NoError(t, repo.DeleteExecutionContext(ctx, execCtx.ExecutionID))

	_, err = repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	assert.True(t, persistence.IsExecutionContextNotFound(err))
}

func TestPersistence_Suite(t *testing.T) {
	persistencetest.Run(t, NewPersistence(t.TempDir()))
}
