package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

type ExecutionContextRepository struct {
	client *goredis.Client
	keys   keyspace
}

func (r *ExecutionContextRepository) SaveExecutionContext(ctx context.Context, execCtx *models.ExecutionContext) error {
	contextToSave := *execCtx
	if contextToSave.Variables == nil {
		contextToSave.Variables = make(map[string]any)
	}

	data, err := json.Marshal(contextToSave)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context %s: %w", execCtx.ExecutionID, err)
	}

	err = r.client.Set(ctx, r.keys.execution(execCtx.ExecutionID), data, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save execution context %s: %w", execCtx.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionContextRepository) GetExecutionContext(ctx context.Context, executionID uuid.UUID) (*models.ExecutionContext, error) {
	var execCtx models.ExecutionContext

	err := getJSON(ctx, r.client, r.keys.execution(executionID), &execCtx)
	if err != nil {
		if isMissing(err) {
			return nil, persistence.NewStoreError("GetExecutionContext", executionID.String(),
				persistence.ErrExecutionContextNotFound)
		}

		return nil, fmt.Errorf("failed to read execution context %s: %w", executionID, err)
	}

	return &execCtx, nil
}

// DeleteExecutionContext removes the snapshot and the transition list.
func (r *ExecutionContextRepository) DeleteExecutionContext(ctx context.Context, executionID uuid.UUID) error {
	err := r.client.Del(ctx, r.keys.execution(executionID), r.keys.transitions(executionID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete execution context %s: %w", executionID, err)
	}

	return nil
}

func (r *ExecutionContextRepository) AppendTransition(ctx context.Context, transition *models.StateTransition) error {
	data, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("failed to marshal transition for %s: %w", transition.ExecutionID, err)
	}

	err = r.client.RPush(ctx, r.keys.transitions(transition.ExecutionID), data).Err()
	if err != nil {
		return fmt.Errorf("failed to append transition for %s: %w", transition.ExecutionID, err)
	}

	return nil
}

// Transitions returns the recorded transitions in append order.
func (r *ExecutionContextRepository) Transitions(ctx context.Context, executionID uuid.UUID) ([]*models.StateTransition, error) {
	items, err := r.client.LRange(ctx, r.keys.transitions(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transitions of %s: %w", executionID, err)
	}

	transitions := make([]*models.StateTransition, 0, len(items))

	for _, item := range items {
		var transition models.StateTransition

		err := json.Unmarshal([]byte(item), &transition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition for %s: %w", executionID, err)
		}

		transitions = append(transitions, &transition)
	}

	return transitions, nil
}
