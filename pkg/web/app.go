package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with every route registered.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "dagflow"})

	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("dagflow")
	})

	app.Get("/health", handlers.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.SaveWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/run", handlers.RunWorkflow)

	app.Post("/webhooks/:workflowId", handlers.Webhook)

	s := app.Group("/schedules")
	s.Get("/", handlers.GetSchedules)
	s.Get("/:workflowId", handlers.GetSchedule)
	s.Put("/:workflowId", handlers.PutSchedule)
	s.Delete("/:workflowId", handlers.DeleteSchedule)
	s.Post("/:workflowId/enable", handlers.EnableSchedule)
	s.Post("/:workflowId/disable", handlers.DisableSchedule)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/recover", handlers.RecoverExecution)

	return app
}
