// Package web exposes the engine over HTTP: workflow storage, webhook
// ingestion, schedule administration and execution control.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/scheduler"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type APIHandlers struct {
	repository *workflow.Repository
	parser     *workflow.Parser
	executor   *workflow.Executor
	scheduler  *scheduler.Scheduler
	validator  *validator.Validate
}

func NewAPIHandlers(
	repository *workflow.Repository,
	parser *workflow.Parser,
	executor *workflow.Executor,
	scheduler *scheduler.Scheduler,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		repository: repository,
		parser:     parser,
		executor:   executor,
		scheduler:  scheduler,
		validator:  validator,
	}
}

func uuidParam(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, c.Params(name))
	}

	return id, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.repository.HealthCheck(c.Context())

	status := "unhealthy"
	message := "dagflow is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if repOk {
		status = "healthy"
		message = "dagflow is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"scheduler":  h.scheduler.Running(),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.repository.FetchAll(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.repository.GetByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(definition)
}

// SaveWorkflow parses, validates and stores a workflow definition.
func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	definition, err := h.parser.Parse(c.Body())
	if err != nil {
		return handleError(c, err)
	}

	result, err := h.repository.Save(c.Context(), definition)
	if err != nil {
		if len(result.Errors) > 0 {
			return badRequest(c, strings.Join(result.Errors, "; "))
		}

		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(SaveWorkflowResponse{Workflow: definition, Validation: result})
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.repository.Delete(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunWorkflow executes a stored workflow and waits for the result.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req RunRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	definition, err := h.repository.GetByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	executionCtx := models.NewExecutionContext(definition)
	for key, value := range req.Variables {
		executionCtx.Variables[key] = value
	}

	result, err := h.executor.ExecuteWithRetry(c.Context(), definition, executionCtx, req.Retries)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(result)
}

// Webhook starts an execution of the workflow behind an enabled webhook
// schedule. The JSON body becomes the webhook payload.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	id, err := uuidParam(c, "workflowId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload any

	if len(c.Body()) > 0 {
		err := json.Unmarshal(c.Body(), &payload)
		if err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	executionID, err := h.scheduler.HandleWebhook(c.Context(), id, payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(WebhookResponse{ExecutionID: executionID})
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules := h.scheduler.GetSchedules()

	response := make([]ScheduleResponse, 0, len(schedules))
	for _, config := range schedules {
		response = append(response, scheduleResponse(config))
	}

	slices.SortFunc(response, func(a, b ScheduleResponse) int {
		return strings.Compare(a.WorkflowID.String(), b.WorkflowID.String())
	})

	return c.JSON(response)
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	id, err := uuidParam(c, "workflowId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	config, err := h.scheduler.GetSchedule(id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(scheduleResponse(config))
}

// PutSchedule creates or replaces the schedule of a workflow. New schedules
// are enabled unless the body says otherwise.
func (h *APIHandlers) PutSchedule(c fiber.Ctx) error {
	id, err := uuidParam(c, "workflowId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req ScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	config := models.ScheduleConfig{
		WorkflowID:     id,
		Kind:           req.Kind,
		CronExpression: req.CronExpression,
		Webhook:        req.Webhook,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}

	if req.Interval != "" {
		config.Interval, err = time.ParseDuration(req.Interval)
		if err != nil {
			return badRequest(c, "invalid interval: "+err.Error())
		}
	}

	err = h.scheduler.AddSchedule(config)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(scheduleResponse(config))
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	id, err := uuidParam(c, "workflowId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.scheduler.RemoveSchedule(id)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableSchedule(c fiber.Ctx) error {
	return h.toggleSchedule(c, h.scheduler.EnableSchedule)
}

func (h *APIHandlers) DisableSchedule(c fiber.Ctx) error {
	return h.toggleSchedule(c, h.scheduler.DisableSchedule)
}

func (h *APIHandlers) toggleSchedule(c fiber.Ctx, toggle func(uuid.UUID) error) error {
	id, err := uuidParam(c, "workflowId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = toggle(id)
	if err != nil {
		return handleError(c, err)
	}

	config, err := h.scheduler.GetSchedule(id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(scheduleResponse(config))
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executor.Lookup(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	snapshot := execution.Snapshot()

	return c.JSON(ExecutionResponse{
		ExecutionID: snapshot.ExecutionID,
		WorkflowID:  snapshot.WorkflowID,
		State:       snapshot.State,
		StartedAt:   snapshot.StartedAt,
		CurrentNode: snapshot.CurrentNode,
		Variables:   snapshot.Variables,
		Result:      execution.Result(),
	})
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executor.Pause)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executor.Resume)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executor.Cancel)
}

func (h *APIHandlers) controlExecution(
	c fiber.Ctx,
	control func(ctx context.Context, id uuid.UUID) error,
) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = control(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	execution, err := h.executor.Lookup(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"state":        execution.State(),
	})
}

// RecoverExecution re-runs a failed execution from the given node and
// returns the new result.
func (h *APIHandlers) RecoverExecution(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req RecoverRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executor.Lookup(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	definition, err := h.repository.GetByID(c.Context(), execution.WorkflowID())
	if err != nil {
		return handleError(c, err)
	}

	result, err := h.executor.ResumeFromFailure(c.Context(), definition, id, req.NodeID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(result)
}
