// Package template renders node configuration against execution data.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
)

// Context is the data a node template can reach.
type Context struct {
	ExecutionID uuid.UUID
	WorkflowID  uuid.UUID
	Node        *models.Node
	Variables   map[string]any
	Input       map[string]any
}

// Data flattens the context into the template root.
//
//	.input      collected node inputs
//	.vars       execution variables (.variables is an alias)
//	.webhook    the inbound webhook payload, if any
//	.node       id and config parameters of the running node
//	.execution  execution and workflow ids
//	.env        process environment
func (c *Context) Data() map[string]any {
	node := map[string]any{}
	if c.Node != nil {
		node["id"] = c.Node.ID.String()
		node["config"] = c.Node.Config.Parameters
	}

	return map[string]any{
		"input":     c.Input,
		"vars":      c.Variables,
		"variables": c.Variables,
		"webhook":   c.Variables["webhook_payload"],
		"node":      node,
		"env":       getEnvVars(),
		"execution": map[string]any{
			"id":          c.ExecutionID.String(),
			"workflow_id": c.WorkflowID.String(),
		},
	}
}

// RenderWithContext renders input against the context and coerces the result.
func RenderWithContext(input string, ctx *Context) (any, error) {
	return Render(input, ctx.Data())
}

// RenderStringWithContext renders input against the context without coercion.
func RenderStringWithContext(input string, ctx *Context) (string, error) {
	return RenderString(input, ctx.Data())
}

// NeedsTemplating reports whether s contains a template action.
func NeedsTemplating(s string) bool {
	return strings.Contains(s, "{{")
}

// Render executes the template and coerces the output: JSON objects and
// arrays are decoded, then numbers and booleans are parsed; anything else is
// returned as a string.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderString executes the template and returns the raw output.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := template.
		New("node").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderValue renders every string inside value, walking maps and slices.
// Strings without template actions are kept verbatim.
func RenderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(max int) int {
		if max <= 0 {
			return 0
		}

		num := make([]byte, 1)

		_, err := rand.Read(num)
		if err != nil {
			return 0
		}

		return int(num[0]) % max
	},
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)

		return string(data), err
	},
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
