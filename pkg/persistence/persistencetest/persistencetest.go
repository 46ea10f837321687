// Package persistencetest holds a behavioral suite shared by every
// persistence.Persistence implementation.
package persistencetest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/dukex/dagflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// IntegrationEnv enables tests that need docker.
const IntegrationEnv = "DAGFLOW_INTEGRATION"

// RequireIntegration skips the test unless DAGFLOW_INTEGRATION=1.
func RequireIntegration(t *testing.T) {
	t.Helper()

	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("set %s=1 to run integration tests", IntegrationEnv)
	}
}

// Run exercises the workflow and execution repositories of p.
func Run(t *testing.T, p persistence.Persistence) {
	t.Helper()

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, p.HealthCheck(context.Background()))
	})

	t.Run("workflows", func(t *testing.T) {
		testWorkflows(t, p.WorkflowRepository())
	})

	t.Run("execution contexts", func(t *testing.T) {
		testExecutionContexts(t, p.ExecutionContextRepository())
	})
}

func testWorkflows(t *testing.T, repo persistence.WorkflowRepository) {
	ctx := context.Background()

	description := "order intake"
	first := testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeHTTP))
	first.Description = &description
	first.Variables = map[string]any{"region": "eu"}

	second := testutil.Chain(testutil.TriggerNode())
	second.Name = "second"

	_, err := repo.GetByID(ctx, first.ID)
	require.True(t, persistence.IsWorkflowNotFound(err))

	require.NoError(t, repo.Save(ctx, first))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.Save(ctx, second))

	assert.False(t, first.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Name, loaded.Name)
	require.NotNil(t, loaded.Description)
	assert.Equal(t, description, *loaded.Description)
	assert.Equal(t, "eu", loaded.Variables["region"])
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, first.Nodes[1].ID, loaded.Nodes[1].ID)
	assert.Equal(t, first.Nodes[1].NodeType, loaded.Nodes[1].NodeType)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, first.Edges[0].Source, loaded.Edges[0].Source)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	first.Name = "renamed"
	require.NoError(t, repo.Save(ctx, first))

	loaded, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", loaded.Name)

	require.NoError(t, repo.Delete(ctx, first.ID))
	require.NoError(t, repo.Delete(ctx, first.ID))

	_, err = repo.GetByID(ctx, first.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	all, err = repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testExecutionContexts(t *testing.T, repo persistence.ExecutionContextRepository) {
	ctx := context.Background()

	node := uuid.New()
	execCtx := &models.ExecutionContext{
		ExecutionID: uuid.New(),
		WorkflowID:  uuid.New(),
		Variables:   map[string]any{"node_" + node.String(): map[string]any{"ok": true}},
		State:       models.ExecutionStateRunning,
		StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
		CurrentNode: &node,
	}

	_, err := repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	assert.True(t, persistence.IsExecutionContextNotFound(err))

	require.NoError(t, repo.SaveExecutionContext(ctx, execCtx))

	loaded, err := repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execCtx.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, models.ExecutionStateRunning, loaded.State)
	assert.True(t, execCtx.StartedAt.Equal(loaded.StartedAt))
	require.NotNil(t, loaded.CurrentNode)
	assert.Equal(t, node, *loaded.CurrentNode)
	assert.Equal(t, map[string]any{"ok": true}, loaded.Variables["node_"+node.String()])

	execCtx.State = models.ExecutionStateCompleted
	execCtx.CurrentNode = nil
	require.NoError(t, repo.SaveExecutionContext(ctx, execCtx))

	loaded, err = repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStateCompleted, loaded.State)
	assert.Nil(t, loaded.CurrentNode)

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
	assert.Nil(t, transitions[0].NodeID)
	require.NotNil(t, transitions[1].NodeID)
	assert.Equal(t, node, *transitions[1].NodeID)
	assert.Equal(t, "boom", transitions[1].Error)

	require.NoError(t, repo.DeleteExecutionContext(ctx, execCtx.ExecutionID))

	_, err = repo.GetExecutionContext(ctx, execCtx.ExecutionID)
	assert.True(t, persistence.IsExecutionContextNotFound(err))

	transitions, err = repo.Transitions(ctx, execCtx.ExecutionID)
	require.NoError(t, err)
	assert.Empty(t, transitions)
}
