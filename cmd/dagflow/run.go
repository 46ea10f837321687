package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/dagflow/pkg/log"
	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Execute a workflow file once and print the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow JSON file",
				Required: true,
			},
			&cli.UintFlag{
				Name:  "retries",
				Usage: "Retry the whole run this many times on failure",
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "JSON document exposed to the workflow as the webhook payload",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("run")

			definition, err := readWorkflow(command.String("file"))
			if err != nil {
				return err
			}

			executionCtx := models.NewExecutionContext(definition)

			if raw := command.String("payload"); raw != "" {
				var payload any

				err := json.Unmarshal([]byte(raw), &payload)
				if err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}

				executionCtx.Variables[workflow.WebhookPayloadKey] = payload
			}

			executor := workflow.NewExecutor(
				workflow.NewParser(),
				nodes.NewDispatcher(nodes.Dependencies{Logger: logger}),
				workflow.WithLogger(logger),
			)

			result, err := executor.ExecuteWithRetry(ctx, definition, executionCtx, uint64(command.Uint("retries")))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			err = encoder.Encode(result)
			if err != nil {
				return err
			}

			if !result.Succeeded() {
				return fmt.Errorf("execution %s ended %s", result.ExecutionID, result.State)
			}

			return nil
		},
	}
}
