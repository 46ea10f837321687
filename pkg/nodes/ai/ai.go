// Package ai implements AI nodes on top of a pluggable model Client.
package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/template"
	"github.com/dukex/dagflow/pkg/workflow"
)

var (
	ErrNoClient        = errors.New("no AI client configured")
	ErrPromptInjection = errors.New("prompt rejected: possible injection")
	ErrUnknownLabel    = errors.New("classification returned an unknown label")
)

// Tool is a function the model may call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Request struct {
	Type        models.AINodeType
	Model       string
	Prompt      string
	Temperature *float64
	MaxTokens   int
	Tools       []Tool
	Labels      []string
}

type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	Model        string
	FinishReason string
}

// Client talks to a model provider.
type Client interface {
	Generate(ctx context.Context, request Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, request Request) (*Response, error)

func (f ClientFunc) Generate(ctx context.Context, request Request) (*Response, error) {
	return f(ctx, request)
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore.*previous.*instruction`),
	regexp.MustCompile(`forget.*everything`),
	regexp.MustCompile(`system.*prompt`),
	regexp.MustCompile(`you.*are.*now`),
	regexp.MustCompile(`pretend.*to.*be`),
	regexp.MustCompile(`disregard.*above`),
	regexp.MustCompile(`new.*instructions`),
	regexp.MustCompile(`override.*instructions`),
	regexp.MustCompile(`admin.*mode`),
	regexp.MustCompile(`developer.*mode`),
}

// DetectInjection reports whether text matches a known prompt injection pattern.
func DetectInjection(text string) bool {
	lower := strings.ToLower(text)

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}

	return false
}

// Handler renders the "prompt" template and sends it to the client. Rendered
// input data is screened for injection unless "allow_injection" is true.
type Handler struct {
	client Client
}

func NewHandler(client Client) *Handler {
	return &Handler{client: client}
}

func (h *Handler) Handle(
	ctx context.Context,
	node *models.Node,
	input map[string]any,
	execution *workflow.Execution,
) (any, error) {
	if h.client == nil {
		return nil, ErrNoClient
	}

	request, err := buildRequest(node, &template.Context{
		ExecutionID: execution.ID(),
		WorkflowID:  execution.WorkflowID(),
		Node:        node,
		Variables:   execution.Variables(),
		Input:       input,
	})
	if err != nil {
		return nil, err
	}

	allow, _ := node.Config.Parameters["allow_injection"].(bool)
	if !allow && DetectInjection(request.Prompt) {
		return nil, ErrPromptInjection
	}

	response, err := h.client.Generate(ctx, *request)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", request.Model, err)
	}

	output := map[string]any{
		"content":       response.Content,
		"model":         response.Model,
		"finish_reason": response.FinishReason,
		"usage": map[string]any{
			"prompt_tokens":     response.Usage.PromptTokens,
			"completion_tokens": response.Usage.CompletionTokens,
			"total_tokens":      response.Usage.TotalTokens,
		},
	}

	switch request.Type {
	case models.AINodeTypeToolCalling:
		calls := make([]any, 0, len(response.ToolCalls))
		for _, call := range response.ToolCalls {
			calls = append(calls, map[string]any{"id": call.ID, "name": call.Name, "arguments": call.Arguments})
		}

		output["tool_calls"] = calls
	case models.AINodeTypeClassification:
		label := strings.TrimSpace(response.Content)
		if len(request.Labels) > 0 && !contains(request.Labels, label) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
		}

		output["label"] = label
	case models.AINodeTypeTextGeneration:
	}

	return output, nil
}

func buildRequest(node *models.Node, tmplCtx *template.Context) (*Request, error) {
	model := node.Config.String("model")
	if model == "" {
		return nil, errors.New("missing required field 'model'")
	}

	promptTemplate := node.Config.String("prompt")
	if promptTemplate == "" {
		return nil, errors.New("missing required field 'prompt'")
	}

	prompt, err := template.RenderStringWithContext(promptTemplate, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	request := &Request{
		Type:   node.NodeType.AIType,
		Model:  model,
		Prompt: prompt,
	}

	if temperature, ok := node.Config.Parameters["temperature"].(float64); ok {
		request.Temperature = &temperature
	}

	if maxTokens, ok := node.Config.Parameters["max_tokens"].(float64); ok {
		request.MaxTokens = int(maxTokens)
	}

	if labels, ok := node.Config.Parameters["labels"].([]any); ok {
		for _, label := range labels {
			request.Labels = append(request.Labels, fmt.Sprintf("%v", label))
		}
	}

	if tools, ok := node.Config.Parameters["tools"].([]any); ok {
		for i, raw := range tools {
			spec, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("tool %d must be an object", i)
			}

			name, _ := spec["name"].(string)
			if name == "" {
				return nil, fmt.Errorf("tool %d missing 'name'", i)
			}

			tool := Tool{Name: name}
			tool.Description, _ = spec["description"].(string)
			tool.Parameters, _ = spec["parameters"].(map[string]any)
			request.Tools = append(request.Tools, tool)
		}
	}

	return request, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}
