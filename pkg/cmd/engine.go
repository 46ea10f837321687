// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/dagflow/pkg/config"
	"github.com/dukex/dagflow/pkg/eventbus"
	"github.com/dukex/dagflow/pkg/nodes"
	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/dukex/dagflow/pkg/scheduler"
	"github.com/dukex/dagflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Engine bundles the components of one dagflow process.
type Engine struct {
	Parser     *workflow.Parser
	Validator  *workflow.Validator
	Repository *workflow.Repository
	Executor   *workflow.Executor
	Scheduler  *scheduler.Scheduler

	logger *slog.Logger
}

// EngineDeps are the collaborators NewEngine wires together. Publisher and
// Tracer are optional.
type EngineDeps struct {
	Persistence persistence.Persistence
	Publisher   eventbus.EventPublisher
	Tracer      trace.Tracer
	Nodes       nodes.Dependencies
	Config      config.Engine
	Logger      *slog.Logger
}

func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Nodes.Logger == nil {
		deps.Nodes.Logger = logger
	}

	parser := workflow.NewParser()
	validator := workflow.NewValidator()
	repository := workflow.NewRepository(deps.Persistence, parser, validator)

	opts := []workflow.Option{
		workflow.WithStore(deps.Persistence.ExecutionContextRepository()),
		workflow.WithLogger(logger),
		workflow.WithRetention(deps.Config.Retention),
		workflow.WithRetryInitialInterval(deps.Config.RetryInitialInterval),
	}
	if deps.Publisher != nil {
		opts = append(opts, workflow.WithPublisher(deps.Publisher))
	}

	if deps.Tracer != nil {
		opts = append(opts, workflow.WithTracer(deps.Tracer))
	}

	executor := workflow.NewExecutor(parser, nodes.NewDispatcher(deps.Nodes), opts...)

	return &Engine{
		Parser:     parser,
		Validator:  validator,
		Repository: repository,
		Executor:   executor,
		Scheduler: scheduler.New(executor, repository,
			scheduler.WithTickInterval(deps.Config.TickInterval),
			scheduler.WithLogger(logger),
		),
		logger: logger,
	}
}

// Preload stores every *.json workflow found in cfg.WorkflowsDir and
// registers the configured schedules. Invalid definitions are skipped
// with a warning; a schedule that cannot be added is an error.
func (e *Engine) Preload(ctx context.Context, cfg config.Engine) error {
	if cfg.WorkflowsDir != "" {
		err := e.loadWorkflows(ctx, cfg.WorkflowsDir)
		if err != nil {
			return err
		}
	}

	for _, schedule := range cfg.Schedules {
		err := e.Scheduler.AddSchedule(schedule)
		if err != nil {
			return fmt.Errorf("failed to add schedule for workflow %s: %w", schedule.WorkflowID, err)
		}
	}

	return nil
}

func (e *Engine) loadWorkflows(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list workflows in %s: %w", dir, err)
	}

	if len(files) == 0 {
		if _, statErr := os.Stat(dir); errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("workflows directory %s does not exist", dir)
		}
	}

	for _, path := range files {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied directory
		if err != nil {
			return fmt.Errorf("failed to read workflow %s: %w", path, err)
		}

		definition, err := e.Parser.Parse(data)
		if err != nil {
			e.logger.WarnContext(ctx, "Skipping invalid workflow", "path", path, "error", err)

			continue
		}

		result, err := e.Repository.Save(ctx, definition)
		if err != nil {
			if len(result.Errors) > 0 {
				e.logger.WarnContext(ctx, "Skipping invalid workflow",
					"path", path, "errors", strings.Join(result.Errors, "; "))

				continue
			}

			return fmt.Errorf("failed to store workflow %s: %w", path, err)
		}

		e.logger.InfoContext(ctx, "Loaded workflow", "workflow_id", definition.ID, "path", path)
	}

	return nil
}
