package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionContextRepository keeps one snapshot file per execution and an
// append-only JSON lines file of its transitions.
type ExecutionContextRepository struct {
	root string
	mu   sync.Mutex
}

func NewExecutionContextRepository(root string) *ExecutionContextRepository {
	return &ExecutionContextRepository{root: root}
}

func (ecr *ExecutionContextRepository) contextsDir() string {
	return filepath.Join(ecr.root, "execution_contexts")
}

func (ecr *ExecutionContextRepository) transitionsDir() string {
	return filepath.Join(ecr.root, "execution_transitions")
}

// SaveExecutionContext overwrites the snapshot of the execution.
func (ecr *ExecutionContextRepository) SaveExecutionContext(_ context.Context, execCtx *models.ExecutionContext) error {
	contextToSave := *execCtx
	if contextToSave.Variables == nil {
		contextToSave.Variables = make(map[string]any)
	}

	err := os.MkdirAll(ecr.contextsDir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create execution contexts directory: %w", err)
	}

	data, err := json.Marshal(contextToSave)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context %s: %w", execCtx.ExecutionID, err)
	}

	filePath := filepath.Join(ecr.contextsDir(), execCtx.ExecutionID.String()+".json")

	ecr.mu.Lock()
	defer ecr.mu.Unlock()

	// write then rename so readers never see a partial snapshot
	tmp := filePath + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution context %s: %w", execCtx.ExecutionID, err)
	}

	return os.Rename(tmp, filePath)
}

func (ecr *ExecutionContextRepository) GetExecutionContext(_ context.Context, executionID uuid.UUID) (*models.ExecutionContext, error) {
	filePath := filepath.Join(ecr.contextsDir(), executionID.String()+".json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- name is a parsed uuid
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetExecutionContext", executionID.String(),
				persistence.ErrExecutionContextNotFound)
		}

		return nil, fmt.Errorf("failed to read execution context %s: %w", executionID, err)
	}

	var execCtx models.ExecutionContext

	err = json.Unmarshal(data, &execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution context %s: %w", executionID, err)
	}

	return &execCtx, nil
}

// DeleteExecutionContext removes the snapshot and the transition log.
func (ecr *ExecutionContextRepository) DeleteExecutionContext(_ context.Context, executionID uuid.UUID) error {
	ecr.mu.Lock()
	defer ecr.mu.Unlock()

	for _, filePath := range []string{
		filepath.Join(ecr.contextsDir(), executionID.String()+".json"),
		filepath.Join(ecr.transitionsDir(), executionID.String()+".jsonl"),
	} {
		err := os.Remove(filePath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete execution context %s: %w", executionID, err)
		}
	}

	return nil
}

func (ecr *ExecutionContextRepository) AppendTransition(_ context.Context, transition *models.StateTransition) error {
	data, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("failed to marshal transition for %s: %w", transition.ExecutionID, err)
	}

	ecr.mu.Lock()
	defer ecr.mu.Unlock()

	err = os.MkdirAll(ecr.transitionsDir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create execution transitions directory: %w", err)
	}

	filePath := filepath.Join(ecr.transitionsDir(), transition.ExecutionID.String()+".jsonl")

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- name is a parsed uuid
	if err != nil {
		return fmt.Errorf("failed to open transition log %s: %w", transition.ExecutionID, err)
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))

	return err
}

// Transitions returns the recorded transitions in append order.
func (ecr *ExecutionContextRepository) Transitions(_ context.Context, executionID uuid.UUID) ([]*models.StateTransition, error) {
	ecr.mu.Lock()
	data, err := os.ReadFile(filepath.Join(ecr.transitionsDir(), executionID.String()+".jsonl"))
	ecr.mu.Unlock()

	if err != nil {
		if os.IsNotExist(err) {
			return []*models.StateTransition{}, nil
		}

		return nil, fmt.Errorf("failed to read transition log %s: %w", executionID, err)
	}

	transitions := make([]*models.StateTransition, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var transition models.StateTransition

		err := json.Unmarshal(line, &transition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition for %s: %w", executionID, err)
		}

		transitions = append(transitions, &transition)
	}

	return transitions, scanner.Err()
}
