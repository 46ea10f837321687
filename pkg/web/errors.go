package web

import (
	"errors"

	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/dukex/dagflow/pkg/scheduler"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps engine errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	var (
		parseErr      *workflow.ParseError
		validationErr *workflow.ValidationError
	)

	switch {
	case persistence.IsWorkflowNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")
	case errors.Is(err, scheduler.ErrScheduleNotFound):
		return problem(c, fiber.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, workflow.ErrExecutionNotFound):
		return problem(c, fiber.StatusNotFound, "execution_not_found", err.Error())
	case errors.Is(err, workflow.ErrNodeNotFound) && !errors.As(err, &validationErr):
		return problem(c, fiber.StatusNotFound, "node_not_found", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrScheduleDisabled),
		errors.Is(err, scheduler.ErrNotWebhook):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, scheduler.ErrInvalidSchedule),
		errors.Is(err, workflow.ErrValidationFailed),
		errors.As(err, &parseErr),
		errors.As(err, &validationErr):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
