package web

import (
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// ScheduleRequest is the body of PUT /schedules/:workflowId.
type ScheduleRequest struct {
	Kind           models.ScheduleKind       `json:"kind"                      validate:"required,oneof=cron interval webhook"`
	CronExpression string                    `json:"cron_expression,omitempty" validate:"required_if=Kind cron"`
	Interval       string                    `json:"interval,omitempty"        validate:"required_if=Kind interval"`
	Webhook        *models.WebhookDescriptor `json:"webhook,omitempty"         validate:"required_if=Kind webhook"`
	Enabled        *bool                     `json:"enabled,omitempty"`
}

// RecoverRequest is the body of POST /executions/:id/recover.
type RecoverRequest struct {
	NodeID uuid.UUID `json:"node_id" validate:"required"`
}

// RunRequest is the optional body of POST /workflows/:id/run.
type RunRequest struct {
	Variables map[string]any `json:"variables"`
	Retries   uint64         `json:"retries"   validate:"lte=10"`
}

// ScheduleResponse renders a ScheduleConfig with a readable interval.
type ScheduleResponse struct {
	WorkflowID     uuid.UUID                 `json:"workflow_id"`
	Kind           models.ScheduleKind       `json:"kind"`
	CronExpression string                    `json:"cron_expression,omitempty"`
	Interval       string                    `json:"interval,omitempty"`
	Webhook        *models.WebhookDescriptor `json:"webhook,omitempty"`
	Enabled        bool                      `json:"enabled"`
}

// ExecutionResponse is the inspection view of one execution.
type ExecutionResponse struct {
	ExecutionID uuid.UUID               `json:"execution_id"`
	WorkflowID  uuid.UUID               `json:"workflow_id"`
	State       models.ExecutionState   `json:"state"`
	StartedAt   time.Time               `json:"started_at"`
	CurrentNode *uuid.UUID              `json:"current_node,omitempty"`
	Variables   map[string]any          `json:"variables"`
	Result      *models.ExecutionResult `json:"result,omitempty"`
}

// WebhookResponse is returned once a webhook has started an execution.
type WebhookResponse struct {
	ExecutionID uuid.UUID `json:"execution_id"`
}

// SaveWorkflowResponse carries the stored workflow and its validation report.
type SaveWorkflowResponse struct {
	Workflow   *models.Workflow        `json:"workflow"`
	Validation models.ValidationResult `json:"validation"`
}

func scheduleResponse(config models.ScheduleConfig) ScheduleResponse {
	response := ScheduleResponse{
		WorkflowID:     config.WorkflowID,
		Kind:           config.Kind,
		CronExpression: config.CronExpression,
		Webhook:        config.Webhook,
		Enabled:        config.Enabled,
	}

	if config.Interval > 0 {
		response.Interval = config.Interval.String()
	}

	return response
}
