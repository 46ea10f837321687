package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/dagflow/pkg/log"
	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

var (
	ErrInvalidWorkflow = errors.New("workflow is invalid")
	ErrWarnings        = errors.New("workflow has warnings")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Parse and validate a workflow definition",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow JSON file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat warnings as errors",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			definition, err := readWorkflow(command.String("file"))
			if err != nil {
				return err
			}

			result, err := workflow.NewValidator().ValidateExecutable(definition)

			printValidation(command, definition, result, err)

			if err != nil {
				return ErrInvalidWorkflow
			}

			if command.Bool("strict") && len(result.Warnings) > 0 {
				return ErrWarnings
			}

			return nil
		},
	}
}

// readWorkflow loads and parses a workflow file.
func readWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	definition, err := workflow.NewParser().Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return definition, nil
}

func printValidation(command *cli.Command, definition *models.Workflow, result models.ValidationResult, err error) {
	w := command.Root().Writer

	_, _ = fmt.Fprintf(w, "Workflow: %s (%s)\n", definition.Name, definition.ID)

	for _, message := range result.Errors {
		_, _ = fmt.Fprintf(w, "  error: %s\n", message)
	}

	if err != nil && len(result.Errors) == 0 {
		_, _ = fmt.Fprintf(w, "  error: %s\n", err)
	}

	for _, message := range result.Warnings {
		_, _ = fmt.Fprintf(w, "  warning: %s\n", message)
	}

	if err == nil {
		_, _ = fmt.Fprintln(w, "  valid")
	}
}
