// Package httprequest implements the Http action node.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes/schema"
	"github.com/dukex/dagflow/pkg/template"
	"github.com/dukex/dagflow/pkg/workflow"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 10 << 20
)

// Config is the parsed configuration of an Http action.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
	Timeout time.Duration
	Retries RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Handler performs HTTP requests described by the node configuration. URL,
// headers and body are rendered as templates first.
type Handler struct {
	client *http.Client
}

// NewHandler returns a handler using client, or http.DefaultClient when nil.
func NewHandler(client *http.Client) *Handler {
	if client == nil {
		client = http.DefaultClient
	}

	return &Handler{client: client}
}

// Schema returns the JSON schema for Http action configuration.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{
				"type": "string",
				"enum": []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS",
					"get", "post", "put", "delete", "patch", "head", "options"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body":    map[string]any{"type": []string{"string", "object", "array"}},
			"timeout": map[string]any{"type": "number", "minimum": 1, "maximum": 300},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number", "minimum": 1, "maximum": 10},
					"delay":    map[string]any{"type": "number", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []string{"url"},
	}
}

// ParseConfig validates the parameters against Schema and applies defaults.
func ParseConfig(parameters map[string]any) (*Config, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}

	err := schema.Validate(Schema(), parameters)
	if err != nil {
		return nil, err
	}

	config := &Config{
		URL:     parameters["url"].(string),
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Body:    parameters["body"],
		Timeout: defaultTimeout,
		Retries: RetryConfig{Attempts: 1},
	}

	if method, ok := parameters["method"].(string); ok {
		config.Method = strings.ToUpper(method)
	}

	if headers, ok := parameters["headers"].(map[string]any); ok {
		for k, v := range headers {
			config.Headers[k], _ = v.(string)
		}
	}

	if timeout, ok := number(parameters["timeout"]); ok {
		config.Timeout = time.Duration(timeout * float64(time.Second))
	}

	if retries, ok := parameters["retries"].(map[string]any); ok {
		if attempts, ok := number(retries["attempts"]); ok {
			config.Retries.Attempts = int(attempts)
		}

		if delay, ok := number(retries["delay"]); ok {
			config.Retries.Delay = time.Duration(delay) * time.Millisecond
		}
	}

	return config, nil
}

func (h *Handler) Handle(
	ctx context.Context,
	node *models.Node,
	input map[string]any,
	execution *workflow.Execution,
) (any, error) {
	config, err := ParseConfig(node.Config.Parameters)
	if err != nil {
		return nil, err
	}

	tmplCtx := &template.Context{
		ExecutionID: execution.ID(),
		WorkflowID:  execution.WorkflowID(),
		Node:        node,
		Variables:   execution.Variables(),
		Input:       input,
	}

	url, err := template.RenderStringWithContext(config.URL, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	headers := make(map[string]string, len(config.Headers))

	for key, value := range config.Headers {
		headers[key], err = template.RenderStringWithContext(value, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %s: %w", key, err)
		}
	}

	body, err := h.renderBody(config.Body, tmplCtx)
	if err != nil {
		return nil, err
	}

	var lastErr error

	for attempt := 1; attempt <= config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(config.Retries.Delay):
			}
		}

		result, err := h.performRequest(ctx, config, url, body, headers)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// 4xx responses are final; network errors and 5xx are retried
		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			break
		}
	}

	return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", config.Retries.Attempts, lastErr)
}

func (h *Handler) renderBody(body any, tmplCtx *template.Context) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		rendered, err := template.RenderStringWithContext(b, tmplCtx)
		if err != nil {
			return "", fmt.Errorf("failed to render body template: %w", err)
		}

		return rendered, nil
	default:
		rendered, err := template.RenderValue(b, tmplCtx.Data())
		if err != nil {
			return "", fmt.Errorf("failed to render body template: %w", err)
		}

		data, err := json.Marshal(rendered)
		if err != nil {
			return "", fmt.Errorf("failed to encode body: %w", err)
		}

		return string(data), nil
	}
}

func (h *Handler) performRequest(
	ctx context.Context,
	config *Config,
	url, body string,
	headers map[string]string,
) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	headerMap := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headerMap[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headerMap,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
