// Package trigger implements the entry node of a workflow.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes/schema"
	"github.com/dukex/dagflow/pkg/workflow"
)

// Handler emits the data that started the execution. Webhook triggers may
// declare a payload_schema the inbound payload must satisfy.
type Handler struct {
	now func() time.Time
}

func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

func (h *Handler) Handle(
	_ context.Context,
	node *models.Node,
	_ map[string]any,
	execution *workflow.Execution,
) (any, error) {
	output := map[string]any{
		"triggered":    true,
		"trigger_type": string(node.NodeType.TriggerType),
		"timestamp":    h.now().UTC().Format(time.RFC3339),
		"execution_id": execution.ID().String(),
	}

	switch node.NodeType.TriggerType {
	case models.TriggerTypeWebhook:
		payload, _ := execution.Variable(workflow.WebhookPayloadKey)

		if payloadSchema, ok := node.Config.Parameters["payload_schema"].(map[string]any); ok {
			err := schema.Validate(payloadSchema, payload)
			if err != nil {
				return nil, fmt.Errorf("webhook payload rejected: %w", err)
			}
		}

		output["payload"] = payload
		output["webhook_url"] = node.Config.String("webhook_url")
	case models.TriggerTypeSchedule:
		output["cron_expression"] = node.Config.String("cron_expression")
	case models.TriggerTypeManual:
		if payload, ok := execution.Variable(workflow.WebhookPayloadKey); ok {
			output["payload"] = payload
		}
	}

	return output, nil
}
