package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes/action"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Invoke(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	request := action.Request{
		ActionType:  models.ActionTypeEmail,
		NodeID:      uuid.New(),
		ExecutionID: uuid.New(),
		Parameters:  map[string]any{"message": "Processing user: john_doe", "level": "warn"},
		Input:       map[string]any{"output": 1},
	}

	output, err := NewIntegration(logger).Invoke(context.Background(), request)
	require.NoError(t, err)

	result := output.(map[string]any)
	assert.Equal(t, "executed", result["action"])
	assert.Equal(t, "Email", result["action_type"])
	assert.Equal(t, "WARN", result["level"])
	assert.Equal(t, request.Input, result["input"])

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Processing user: john_doe")
	assert.Contains(t, buf.String(), request.NodeID.String())
}

func TestIntegration_DefaultMessage(t *testing.T) {
	output, err := NewIntegration(nil).Invoke(context.Background(), action.Request{ActionType: models.ActionTypeDatabase})
	require.NoError(t, err)
	assert.Equal(t, "Database action executed", output.(map[string]any)["message"])
}

func TestIntegration_InvalidLevel(t *testing.T) {
	_, err := NewIntegration(nil).Invoke(context.Background(), action.Request{
		ActionType: models.ActionTypeIntegration,
		Parameters: map[string]any{"level": "loud"},
	})
	assert.ErrorContains(t, err, "invalid log level 'loud'")
}
