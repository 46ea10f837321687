package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// DefaultRetryInitialInterval is the delay before the second attempt; each
// following delay doubles.
const DefaultRetryInitialInterval = 100 * time.Millisecond

// ExecuteWithRetry runs the workflow up to maxRetries+1 times, waiting
// initial*2^(attempt-1) between attempts. Every attempt reuses the execution id
// and starts from a fresh copy of executionCtx. A failed result counts as a
// failed attempt; cancelled runs and authoring errors are not retried. The
// last result (or error) is returned.
func (e *Executor) ExecuteWithRetry(
	ctx context.Context,
	workflow *models.Workflow,
	executionCtx models.ExecutionContext,
	maxRetries uint64,
) (*models.ExecutionResult, error) {
	if executionCtx.ExecutionID == uuid.Nil {
		executionCtx.ExecutionID = uuid.New()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retryInitialInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	var (
		attempt    int
		lastResult *models.ExecutionResult
	)

	operation := func() error {
		attempt++
		lastResult = nil

		result, err := e.Execute(ctx, workflow, cloneContext(executionCtx))
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				return backoff.Permanent(err)
			}

			return err
		}

		lastResult = result

		switch result.State {
		case models.ExecutionStateCompleted:
			return nil
		case models.ExecutionStateCancelled:
			return backoff.Permanent(fmt.Errorf("attempt %d: %s", attempt, result.Error))
		default:
			return fmt.Errorf("attempt %d: %s", attempt, result.Error)
		}
	}

	notify := func(err error, wait time.Duration) {
		e.logger.Warn("Workflow execution attempt failed, retrying",
			"workflow_id", workflow.ID,
			"execution_id", executionCtx.ExecutionID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx), notify)
	if lastResult != nil {
		return lastResult, nil
	}

	return nil, err
}

func cloneContext(executionCtx models.ExecutionContext) models.ExecutionContext {
	variables := make(map[string]any, len(executionCtx.Variables))
	for k, v := range executionCtx.Variables {
		variables[k] = v
	}

	executionCtx.Variables = variables
	executionCtx.State = models.ExecutionStatePending
	executionCtx.CurrentNode = nil

	return executionCtx
}

// RecoveryAction is an advisory next step for a failed execution.
type RecoveryAction string

const (
	RecoveryRetry            RecoveryAction = "Retry"
	RecoveryRetryFromFailed  RecoveryAction = "RetryFromFailed"
	RecoveryFixConfiguration RecoveryAction = "FixConfiguration"
	RecoveryManual           RecoveryAction = "Manual"
)

// SuggestRecovery classifies an execution error. It never acts on it.
func SuggestRecovery(err error) RecoveryAction {
	switch {
	case errors.Is(err, ErrTimeout):
		return RecoveryRetry
	case errors.Is(err, ErrNodeExecutionFailed):
		return RecoveryRetryFromFailed
	case errors.Is(err, ErrValidationFailed):
		return RecoveryFixConfiguration
	default:
		return RecoveryManual
	}
}
