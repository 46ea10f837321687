// Package custom runs user code for Custom nodes. JavaScript runs in an
// embedded goja runtime; other languages go to a Sandbox.
package custom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/workflow"
)

const DefaultTimeout = 5 * time.Second

var (
	ErrNoSandbox     = errors.New("no sandbox configured")
	ErrScriptTimeout = errors.New("script timed out")
)

// Script is the unit of work handed to a Sandbox.
type Script struct {
	Language     string
	Code         string
	Dependencies []string
	Input        map[string]any
	Variables    map[string]any
	Parameters   map[string]any
	Timeout      time.Duration
}

// Sandbox executes code in languages the engine does not embed.
type Sandbox interface {
	Run(ctx context.Context, script Script) (any, error)
}

type Handler struct {
	sandbox Sandbox
	logger  *slog.Logger
}

func NewHandler(sandbox Sandbox, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{sandbox: sandbox, logger: logger}
}

func (h *Handler) Handle(
	ctx context.Context,
	node *models.Node,
	input map[string]any,
	execution *workflow.Execution,
) (any, error) {
	config := node.NodeType.Custom
	if config == nil || config.Code == "" {
		return nil, errors.New("custom node has no code")
	}

	script := Script{
		Language:     strings.ToLower(config.Language),
		Code:         config.Code,
		Dependencies: config.Dependencies,
		Input:        input,
		Variables:    execution.Variables(),
		Parameters:   node.Config.Parameters,
		Timeout:      DefaultTimeout,
	}

	if ms, ok := node.Config.Parameters["timeout_ms"].(float64); ok && ms > 0 {
		script.Timeout = time.Duration(ms) * time.Millisecond
	}

	switch script.Language {
	case "javascript", "js":
		if len(script.Dependencies) > 0 {
			return nil, fmt.Errorf("javascript runtime cannot load dependencies %v", script.Dependencies)
		}

		return h.runJavaScript(ctx, node, script)
	default:
		if h.sandbox == nil {
			return nil, fmt.Errorf("%w for language %q", ErrNoSandbox, config.Language)
		}

		return h.sandbox.Run(ctx, script)
	}
}

// runJavaScript evaluates the code with input, variables and config as
// globals. The completion value of the script is the node output.
func (h *Handler) runJavaScript(ctx context.Context, node *models.Node, script Script) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	logger := h.logger.With("node_id", node.ID, "node_type", node.NodeType.String())
	console := vm.NewObject()

	err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			args = append(args, arg.Export())
		}

		logger.Info(fmt.Sprint(args...))

		return goja.Undefined()
	})
	if err != nil {
		return nil, err
	}

	for name, value := range map[string]any{
		"input":     script.Input,
		"variables": script.Variables,
		"config":    script.Parameters,
		"console":   console,
	} {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to expose %s: %w", name, err)
		}
	}

	timer := time.AfterFunc(script.Timeout, func() { vm.Interrupt(ErrScriptTimeout) })
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	value, err := vm.RunString(script.Code)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
		}

		return nil, fmt.Errorf("error executing javascript: %w", err)
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}

	data, err := json.Marshal(value.Export())
	if err != nil {
		return nil, fmt.Errorf("script result is not serializable: %w", err)
	}

	var output any

	err = json.Unmarshal(data, &output)
	if err != nil {
		return nil, err
	}

	return output, nil
}
