// Package log provides an Integration that records actions in the log
// instead of calling external systems.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dagflow/pkg/nodes/action"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Integration logs each action request and echoes it back as the node output.
// The optional "message" and "level" parameters control the log line.
type Integration struct {
	logger *slog.Logger
}

func NewIntegration(logger *slog.Logger) *Integration {
	if logger == nil {
		logger = slog.Default()
	}

	return &Integration{logger: logger}
}

func (i *Integration) Invoke(ctx context.Context, request action.Request) (any, error) {
	level := slog.LevelInfo

	if name, ok := request.Parameters["level"].(string); ok {
		l, known := levels[name]
		if !known {
			return nil, fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", name)
		}

		level = l
	}

	message := fmt.Sprintf("%s action executed", request.ActionType)
	if custom, ok := request.Parameters["message"]; ok {
		message = fmt.Sprintf("%v", custom)
	}

	i.logger.Log(ctx, level, message,
		"node_id", request.NodeID,
		"execution_id", request.ExecutionID,
		"action_type", request.ActionType,
	)

	return map[string]any{
		"action":      "executed",
		"action_type": string(request.ActionType),
		"node_id":     request.NodeID.String(),
		"message":     message,
		"level":       level.String(),
		"parameters":  request.Parameters,
		"input":       request.Input,
	}, nil
}
