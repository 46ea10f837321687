package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleKind selects how a schedule fires.
type ScheduleKind string

const (
	ScheduleKindCron     ScheduleKind = "cron"
	ScheduleKindInterval ScheduleKind = "interval"
	ScheduleKindWebhook  ScheduleKind = "webhook"
)

// WebhookDescriptor describes an inbound webhook delivery endpoint.
type WebhookDescriptor struct {
	Path   string `json:"path"             yaml:"path"`
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// ScheduleConfig is a trigger rule for a workflow. The scheduler keeps at most
// one per workflow id.
type ScheduleConfig struct {
	// WorkflowID identifies the workflow this rule triggers
	WorkflowID uuid.UUID `json:"workflow_id" validate:"required" yaml:"workflow_id"`

	// Kind selects which of the remaining fields drives firing
	Kind ScheduleKind `json:"kind" validate:"required,oneof=cron interval webhook" yaml:"kind"`

	// CronExpression uses the 5-field format (minute hour day month weekday)
	CronExpression string `json:"cron_expression,omitempty" validate:"required_if=Kind cron" yaml:"cron_expression,omitempty"`

	Interval time.Duration `json:"interval,omitempty" validate:"required_if=Kind interval" yaml:"interval,omitempty"`

	Webhook *WebhookDescriptor `json:"webhook,omitempty" validate:"required_if=Kind webhook" yaml:"webhook,omitempty"`

	// Enabled schedules are evaluated by the tick loop
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// CronSchedule builds an enabled cron rule.
func CronSchedule(workflowID uuid.UUID, expression string) ScheduleConfig {
	return ScheduleConfig{
		WorkflowID:     workflowID,
		Kind:           ScheduleKindCron,
		CronExpression: expression,
		Enabled:        true,
	}
}

// IntervalSchedule builds an enabled interval rule.
func IntervalSchedule(workflowID uuid.UUID, interval time.Duration) ScheduleConfig {
	return ScheduleConfig{
		WorkflowID: workflowID,
		Kind:       ScheduleKindInterval,
		Interval:   interval,
		Enabled:    true,
	}
}

// WebhookSchedule builds an enabled webhook rule.
func WebhookSchedule(workflowID uuid.UUID, path string) ScheduleConfig {
	return ScheduleConfig{
		WorkflowID: workflowID,
		Kind:       ScheduleKindWebhook,
		Webhook:    &WebhookDescriptor{Path: path},
		Enabled:    true,
	}
}
