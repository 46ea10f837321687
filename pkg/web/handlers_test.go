package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/nodes"
	"github.com/dukex/dagflow/pkg/nodes/action"
	"github.com/dukex/dagflow/pkg/persistence/file"
	"github.com/dukex/dagflow/pkg/scheduler"
	"github.com/dukex/dagflow/pkg/testutil"
	"github.com/dukex/dagflow/pkg/web"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app       *fiber.App
	repo      *workflow.Repository
	scheduler *scheduler.Scheduler
	calls     *atomic.Int32
	failFirst *atomic.Bool
}

func setupTestApp(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{calls: &atomic.Int32{}, failFirst: &atomic.Bool{}}

	integration := action.IntegrationFunc(func(_ context.Context, request action.Request) (any, error) {
		call := f.calls.Add(1)
		if call == 1 && f.failFirst.Load() {
			return nil, errors.New("database unavailable")
		}

		return map[string]any{"stored": true, "action_type": string(request.ActionType)}, nil
	})

	persistence := file.NewPersistence(t.TempDir())
	parser := workflow.NewParser()
	f.repo = workflow.NewRepository(persistence, parser, workflow.NewValidator())

	executor := workflow.NewExecutor(parser, nodes.NewDispatcher(nodes.Dependencies{Integration: integration}),
		workflow.WithStore(persistence.ExecutionContextRepository()),
		workflow.WithRetryInitialInterval(time.Millisecond),
	)

	f.scheduler = scheduler.New(executor, f.repo)
	t.Cleanup(f.scheduler.Wait)

	handlers := web.NewAPIHandlers(f.repo, parser, executor, f.scheduler, validator.New())
	f.app = web.NewApp(handlers)

	return f
}

func (f *fixture) saveWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	definition := testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeDatabase))

	_, err := f.repo.Save(context.Background(), definition)
	require.NoError(t, err)

	return definition
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var value T
	require.NoError(t, json.Unmarshal(data, &value), string(data))

	return value
}

func TestAPI_RootAndHealth(t *testing.T) {
	f := setupTestApp(t)

	status, body := do(t, f.app, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dagflow", string(body))

	status, body = do(t, f.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)

	health := decode[map[string]any](t, body)
	assert.Equal(t, "healthy", health["status"])
}

func TestAPI_Workflows(t *testing.T) {
	f := setupTestApp(t)

	definition := testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeDatabase))

	status, body := do(t, f.app, http.MethodPost, "/workflows", definition)
	require.Equal(t, http.StatusCreated, status, string(body))

	saved := decode[web.SaveWorkflowResponse](t, body)
	assert.Equal(t, definition.ID, saved.Workflow.ID)
	assert.True(t, saved.Validation.Valid)

	status, body = do(t, f.app, http.MethodGet, "/workflows/"+definition.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, definition.ID, decode[models.Workflow](t, body).ID)

	status, body = do(t, f.app, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Workflow](t, body), 1)

	status, _ = do(t, f.app, http.MethodDelete, "/workflows/"+definition.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, f.app, http.MethodGet, "/workflows/"+definition.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestAPI_SaveWorkflowErrors(t *testing.T) {
	f := setupTestApp(t)

	status, body := do(t, f.app, http.MethodPost, "/workflows", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "validation_error")

	orphan := testutil.ActionNode(models.ActionTypeHTTP)
	unreachable := testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeHTTP))
	unreachable.Nodes = append(unreachable.Nodes, orphan)

	status, body = do(t, f.app, http.MethodPost, "/workflows", unreachable)
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, _ = do(t, f.app, http.MethodGet, "/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_RunWorkflow(t *testing.T) {
	f := setupTestApp(t)
	definition := f.saveWorkflow(t)

	status, body := do(t, f.app, http.MethodPost, "/workflows/"+definition.ID.String()+"/run",
		web.RunRequest{Variables: map[string]any{"region": "eu"}})
	require.Equal(t, http.StatusOK, status, string(body))

	result := decode[models.ExecutionResult](t, body)
	assert.Equal(t, models.ExecutionStateCompleted, result.State)

	status, body = do(t, f.app, http.MethodGet, "/executions/"+result.ExecutionID.String(), nil)
	require.Equal(t, http.StatusOK, status)

	execution := decode[web.ExecutionResponse](t, body)
	assert.Equal(t, models.ExecutionStateCompleted, execution.State)
	assert.Equal(t, "eu", execution.Variables["region"])
	require.NotNil(t, execution.Result)

	status, body = do(t, f.app, http.MethodPost, "/executions/"+result.ExecutionID.String()+"/pause", nil)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, _ = do(t, f.app, http.MethodPost, "/workflows/"+uuid.NewString()+"/run", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_RecoverExecution(t *testing.T) {
	f := setupTestApp(t)
	f.failFirst.Store(true)

	definition := f.saveWorkflow(t)
	failing := definition.Nodes[1]

	status, body := do(t, f.app, http.MethodPost, "/workflows/"+definition.ID.String()+"/run", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	result := decode[models.ExecutionResult](t, body)
	require.Equal(t, models.ExecutionStateFailed, result.State)
	assert.Contains(t, result.Error, failing.ID.String())

	path := "/executions/" + result.ExecutionID.String() + "/recover"

	status, _ = do(t, f.app, http.MethodPost, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, f.app, http.MethodPost, path, web.RecoverRequest{NodeID: uuid.New()})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, f.app, http.MethodPost, path, web.RecoverRequest{NodeID: failing.ID})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.ExecutionStateCompleted, decode[models.ExecutionResult](t, body).State)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestAPI_ExecutionNotFound(t *testing.T) {
	f := setupTestApp(t)

	status, body := do(t, f.app, http.MethodGet, "/executions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "execution_not_found")

	for _, action := range []string{"pause", "resume", "cancel"} {
		status, _ := do(t, f.app, http.MethodPost, "/executions/"+uuid.NewString()+"/"+action, nil)
		assert.Equal(t, http.StatusNotFound, status, action)
	}
}

func TestAPI_Schedules(t *testing.T) {
	f := setupTestApp(t)
	definition := f.saveWorkflow(t)
	base := "/schedules/" + definition.ID.String()

	status, body := do(t, f.app, http.MethodPut, base, web.ScheduleRequest{Kind: models.ScheduleKindInterval, Interval: "90s"})
	require.Equal(t, http.StatusOK, status, string(body))

	schedule := decode[web.ScheduleResponse](t, body)
	assert.Equal(t, "1m30s", schedule.Interval)
	assert.True(t, schedule.Enabled)

	status, body = do(t, f.app, http.MethodPost, base+"/disable", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[web.ScheduleResponse](t, body).Enabled)

	status, body = do(t, f.app, http.MethodPost, base+"/enable", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[web.ScheduleResponse](t, body).Enabled)

	status, body = do(t, f.app, http.MethodGet, "/schedules", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]web.ScheduleResponse](t, body), 1)

	status, _ = do(t, f.app, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, f.app, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "schedule_not_found")
}

func TestAPI_PutScheduleErrors(t *testing.T) {
	f := setupTestApp(t)
	base := "/schedules/" + uuid.NewString()

	tests := []struct {
		name string
		body any
	}{
		{"malformed", []byte("{")},
		{"unknown kind", web.ScheduleRequest{Kind: "hourly"}},
		{"missing cron", web.ScheduleRequest{Kind: models.ScheduleKindCron}},
		{"bad cron", web.ScheduleRequest{Kind: models.ScheduleKindCron, CronExpression: "often"}},
		{"bad interval", web.ScheduleRequest{Kind: models.ScheduleKindInterval, Interval: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, f.app, http.MethodPut, base, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestAPI_Webhook(t *testing.T) {
	f := setupTestApp(t)
	definition := f.saveWorkflow(t)
	hook := "/webhooks/" + definition.ID.String()

	status, _ := do(t, f.app, http.MethodPost, hook, map[string]any{"order": 1})
	assert.Equal(t, http.StatusNotFound, status, "no schedule yet")

	disabled := false
	status, _ = do(t, f.app, http.MethodPut, "/schedules/"+definition.ID.String(), web.ScheduleRequest{
		Kind:    models.ScheduleKindWebhook,
		Webhook: &models.WebhookDescriptor{Path: "/hooks/orders"},
		Enabled: &disabled,
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, f.app, http.MethodPost, hook, map[string]any{"order": 1})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, f.app, http.MethodPost, "/schedules/"+definition.ID.String()+"/enable", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, f.app, http.MethodPost, hook, []byte("{"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, f.app, http.MethodPost, hook, map[string]any{"order": 1})
	require.Equal(t, http.StatusAccepted, status, string(body))

	accepted := decode[web.WebhookResponse](t, body)

	f.scheduler.Wait()

	status, body = do(t, f.app, http.MethodGet, "/executions/"+accepted.ExecutionID.String(), nil)
	require.Equal(t, http.StatusOK, status)

	execution := decode[web.ExecutionResponse](t, body)
	assert.Equal(t, models.ExecutionStateCompleted, execution.State)
	assert.Equal(t, map[string]any{"order": 1.0}, execution.Variables[workflow.WebhookPayloadKey])
}
