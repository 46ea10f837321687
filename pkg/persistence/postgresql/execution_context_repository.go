package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionContextRepository keeps the latest snapshot of each execution in
// execution_contexts and its transitions in execution_transitions.
type ExecutionContextRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionContextRepository(db *sql.DB, logger *slog.Logger) *ExecutionContextRepository {
	return &ExecutionContextRepository{db: db, logger: logger}
}

func (r *ExecutionContextRepository) SaveExecutionContext(ctx context.Context, execCtx *models.ExecutionContext) error {
	variables, err := json.Marshal(nonNilMap(execCtx.Variables))
	if err != nil {
		return fmt.Errorf("failed to marshal variables of execution %s: %w", execCtx.ExecutionID, err)
	}

	query := `
		INSERT INTO execution_contexts (execution_id, workflow_id, state, variables, current_node, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (execution_id) DO UPDATE SET
			state = EXCLUDED.state
		  , variables = EXCLUDED.variables
		  , current_node = EXCLUDED.current_node
		  , updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		execCtx.ExecutionID,
		execCtx.WorkflowID,
		string(execCtx.State),
		variables,
		nullUUID(execCtx.CurrentNode),
		execCtx.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution context %s: %w", execCtx.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionContextRepository) GetExecutionContext(ctx context.Context, executionID uuid.UUID) (*models.ExecutionContext, error) {
	query := `
		SELECT
			execution_id
		  , workflow_id
		  , state
		  , variables
		  , current_node
		  , started_at
		FROM execution_contexts
		WHERE execution_id = $1
	`

	var (
		execCtx     models.ExecutionContext
		state       string
		variables   []byte
		currentNode uuid.NullUUID
	)

	err := r.db.QueryRowContext(ctx, query, executionID).Scan(
		&execCtx.ExecutionID,
		&execCtx.WorkflowID,
		&state,
		&variables,
		&currentNode,
		&execCtx.StartedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetExecutionContext", executionID.String(),
				persistence.ErrExecutionContextNotFound)
		}

		return nil, fmt.Errorf("failed to get execution context %s: %w", executionID, err)
	}

	execCtx.State = models.ExecutionState(state)
	execCtx.StartedAt = execCtx.StartedAt.UTC()

	if currentNode.Valid {
		execCtx.CurrentNode = &currentNode.UUID
	}

	err = json.Unmarshal(variables, &execCtx.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables of execution %s: %w", executionID, err)
	}

	return &execCtx, nil
}

// DeleteExecutionContext removes the snapshot and its transitions.
func (r *ExecutionContextRepository) DeleteExecutionContext(ctx context.Context, executionID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, query := range []string{
		"DELETE FROM execution_transitions WHERE execution_id = $1",
		"DELETE FROM execution_contexts WHERE execution_id = $1",
	} {
		_, err = tx.ExecContext(ctx, query, executionID)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to delete execution context %s: %w", executionID, err)
		}
	}

	return tx.Commit()
}

func (r *ExecutionContextRepository) AppendTransition(ctx context.Context, transition *models.StateTransition) error {
	query := `
		INSERT INTO execution_transitions (execution_id, node_id, state, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		transition.ExecutionID,
		nullUUID(transition.NodeID),
		string(transition.State),
		transition.Error,
		transition.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transition for %s: %w", transition.ExecutionID, err)
	}

	return nil
}

// Transitions returns the recorded transitions in append order.
func (r *ExecutionContextRepository) Transitions(ctx context.Context, executionID uuid.UUID) ([]*models.StateTransition, error) {
	query := `
		SELECT execution_id, node_id, state, error, recorded_at
		FROM execution_transitions
		WHERE execution_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions of %s: %w", executionID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	transitions := make([]*models.StateTransition, 0)

	for rows.Next() {
		var (
			transition models.StateTransition
			nodeID     uuid.NullUUID
			state      string
		)

		err := rows.Scan(&transition.ExecutionID, &nodeID, &state, &transition.Error, &transition.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}

		transition.State = models.ExecutionState(state)
		transition.RecordedAt = transition.RecordedAt.UTC()

		if nodeID.Valid {
			transition.NodeID = &nodeID.UUID
		}

		transitions = append(transitions, &transition)
	}

	return transitions, rows.Err()
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}

	return uuid.NullUUID{UUID: *id, Valid: true}
}
