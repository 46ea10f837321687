package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/testutil"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []models.ExecutionContext
}

func (r *fakeRunner) Execute(_ context.Context, _ *models.Workflow, executionCtx models.ExecutionContext) (*models.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, executionCtx)

	return &models.ExecutionResult{ExecutionID: executionCtx.ExecutionID, State: models.ExecutionStateCompleted}, nil
}

func (r *fakeRunner) Runs() []models.ExecutionContext {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.ExecutionContext(nil), r.runs...)
}

type fakeSource map[uuid.UUID]*models.Workflow

func (s fakeSource) GetByID(_ context.Context, id uuid.UUID) (*models.Workflow, error) {
	definition, ok := s[id]
	if !ok {
		return nil, errors.New("workflow not found")
	}

	return definition, nil
}

func newFixture(t *testing.T, opts ...Option) (*Scheduler, *fakeRunner, *models.Workflow) {
	t.Helper()

	definition := testutil.Chain(testutil.TriggerNode(), testutil.ActionNode(models.ActionTypeHTTP))
	runner := &fakeRunner{}

	return New(runner, fakeSource{definition.ID: definition}, opts...), runner, definition
}

func TestScheduler_AddRemoveSchedule(t *testing.T) {
	s, _, definition := newFixture(t)

	require.NoError(t, s.AddSchedule(models.CronSchedule(definition.ID, "0 0 * * *")))
	assert.Contains(t, s.GetSchedules(), definition.ID)

	require.NoError(t, s.RemoveSchedule(definition.ID))
	assert.NotContains(t, s.GetSchedules(), definition.ID)

	assert.ErrorIs(t, s.RemoveSchedule(definition.ID), ErrScheduleNotFound)
}

func TestScheduler_EnableDisableSchedule(t *testing.T) {
	s, _, definition := newFixture(t)

	require.NoError(t, s.AddSchedule(models.CronSchedule(definition.ID, "0 0 * * *")))

	require.NoError(t, s.DisableSchedule(definition.ID))
	config, err := s.GetSchedule(definition.ID)
	require.NoError(t, err)
	assert.False(t, config.Enabled)

	require.NoError(t, s.EnableSchedule(definition.ID))
	config, err = s.GetSchedule(definition.ID)
	require.NoError(t, err)
	assert.True(t, config.Enabled)

	assert.ErrorIs(t, s.EnableSchedule(uuid.New()), ErrScheduleNotFound)
	assert.ErrorIs(t, s.DisableSchedule(uuid.New()), ErrScheduleNotFound)
}

func TestScheduler_AddScheduleValidation(t *testing.T) {
	s, _, definition := newFixture(t)

	tests := []struct {
		name   string
		config models.ScheduleConfig
	}{
		{"missing workflow", models.CronSchedule(uuid.Nil, "* * * * *")},
		{"missing cron expression", models.CronSchedule(definition.ID, "")},
		{"bad cron expression", models.CronSchedule(definition.ID, "every minute")},
		{"cron descriptor", models.CronSchedule(definition.ID, "@daily")},
		{"cron every descriptor", models.CronSchedule(definition.ID, "@every 5m")},
		{"weekday names", models.CronSchedule(definition.ID, "0 9 * * MON-FRI")},
		{"month names", models.CronSchedule(definition.ID, "0 0 1 JAN *")},
		{"stepped range", models.CronSchedule(definition.ID, "0-30/10 * * * *")},
		{"missing interval", models.IntervalSchedule(definition.ID, 0)},
		{"sub second interval", models.IntervalSchedule(definition.ID, 10*time.Millisecond)},
		{"missing webhook", models.ScheduleConfig{WorkflowID: definition.ID, Kind: models.ScheduleKindWebhook}},
		{"unknown kind", models.ScheduleConfig{WorkflowID: definition.ID, Kind: "hourly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.AddSchedule(tt.config), ErrInvalidSchedule)
		})
	}

	assert.Empty(t, s.GetSchedules())
}

func TestScheduler_TickCron(t *testing.T) {
	s, runner, definition := newFixture(t)

	require.NoError(t, s.AddSchedule(models.CronSchedule(definition.ID, "*/5 * * * *")))

	at := time.Date(2024, time.January, 10, 9, 10, 0, 0, time.UTC)

	assert.Len(t, s.Tick(context.Background(), at), 1)
	assert.Empty(t, s.Tick(context.Background(), at.Add(30*time.Second)), "fires once per minute")
	assert.Empty(t, s.Tick(context.Background(), at.Add(time.Minute)), "11 does not match */5")
	assert.Len(t, s.Tick(context.Background(), at.Add(5*time.Minute)), 1)

	s.Wait()

	runs := runner.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, definition.ID, runs[0].WorkflowID)
}

func TestScheduler_TickSkipsDisabledAndWebhook(t *testing.T) {
	s, runner, definition := newFixture(t)

	other := testutil.Chain(testutil.TriggerNode())

	require.NoError(t, s.AddSchedule(models.CronSchedule(definition.ID, "* * * * *")))
	require.NoError(t, s.DisableSchedule(definition.ID))
	require.NoError(t, s.AddSchedule(models.WebhookSchedule(other.ID, "/hooks/other")))

	assert.Empty(t, s.Tick(context.Background(), time.Now()))

	s.Wait()
	assert.Empty(t, runner.Runs())
}

func TestScheduler_TickInterval(t *testing.T) {
	start := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

	s, runner, definition := newFixture(t, WithClock(func() time.Time { return start }))

	require.NoError(t, s.AddSchedule(models.IntervalSchedule(definition.ID, 10*time.Second)))

	assert.Empty(t, s.Tick(context.Background(), start.Add(5*time.Second)))
	assert.Len(t, s.Tick(context.Background(), start.Add(10*time.Second)), 1)
	assert.Empty(t, s.Tick(context.Background(), start.Add(15*time.Second)))
	assert.Len(t, s.Tick(context.Background(), start.Add(21*time.Second)), 1)

	s.Wait()
	assert.Len(t, runner.Runs(), 2)
}

func TestScheduler_TickIntervalRestartsOnEnable(t *testing.T) {
	start := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)
	now := start

	s, runner, definition := newFixture(t, WithClock(func() time.Time { return now }))

	require.NoError(t, s.AddSchedule(models.IntervalSchedule(definition.ID, 10*time.Second)))
	require.NoError(t, s.DisableSchedule(definition.ID))

	now = start.Add(time.Minute)
	assert.Empty(t, s.Tick(context.Background(), now), "disabled")

	require.NoError(t, s.EnableSchedule(definition.ID))
	assert.Empty(t, s.Tick(context.Background(), now), "a full interval must pass after enabling")
	assert.Empty(t, s.Tick(context.Background(), now.Add(5*time.Second)))
	assert.Len(t, s.Tick(context.Background(), now.Add(10*time.Second)), 1)

	require.NoError(t, s.EnableSchedule(definition.ID))
	assert.Empty(t, s.Tick(context.Background(), now.Add(15*time.Second)), "enabling an enabled rule keeps its clock")
	assert.Len(t, s.Tick(context.Background(), now.Add(20*time.Second)), 1)

	s.Wait()
	assert.Len(t, runner.Runs(), 2)
}

func TestScheduler_TickMissingWorkflow(t *testing.T) {
	s, runner, _ := newFixture(t)

	require.NoError(t, s.AddSchedule(models.CronSchedule(uuid.New(), "* * * * *")))

	assert.Empty(t, s.Tick(context.Background(), time.Now()))

	s.Wait()
	assert.Empty(t, runner.Runs())
}

func TestScheduler_TriggerWebhook(t *testing.T) {
	s, runner, definition := newFixture(t)

	payload := map[string]any{"order": 42.0}

	id, err := s.TriggerWebhook(context.Background(), definition, payload)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	s.Wait()

	runs := runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ExecutionID)
	assert.Equal(t, definition.ID, runs[0].WorkflowID)
	assert.Equal(t, payload, runs[0].Variables[workflow.WebhookPayloadKey])

	_, err = s.TriggerWebhook(context.Background(), nil, payload)
	assert.Error(t, err)
}

func TestScheduler_TriggerWebhookOutlivesRequestContext(t *testing.T) {
	s, runner, definition := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.TriggerWebhook(ctx, definition, nil)
	require.NoError(t, err)
	cancel()

	s.Wait()
	assert.Len(t, runner.Runs(), 1)
}

func TestScheduler_HandleWebhook(t *testing.T) {
	s, runner, definition := newFixture(t)

	_, err := s.HandleWebhook(context.Background(), definition.ID, nil)
	require.ErrorIs(t, err, ErrScheduleNotFound)

	require.NoError(t, s.AddSchedule(models.CronSchedule(definition.ID, "* * * * *")))
	_, err = s.HandleWebhook(context.Background(), definition.ID, nil)
	require.ErrorIs(t, err, ErrNotWebhook)

	require.NoError(t, s.AddSchedule(models.WebhookSchedule(definition.ID, "/hooks/orders")))
	require.NoError(t, s.DisableSchedule(definition.ID))
	_, err = s.HandleWebhook(context.Background(), definition.ID, nil)
	require.ErrorIs(t, err, ErrScheduleDisabled)

	require.NoError(t, s.EnableSchedule(definition.ID))
	id, err := s.HandleWebhook(context.Background(), definition.ID, map[string]any{"a": 1})
	require.NoError(t, err)

	s.Wait()

	runs := runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ExecutionID)
}

func TestScheduler_StartStop(t *testing.T) {
	s, runner, definition := newFixture(t,
		WithTickInterval(5*time.Millisecond),
		WithClock(func() time.Time { return time.Date(2024, time.January, 10, 9, 10, 0, 0, time.UTC) }),
	)

	require.NoError(t, s.AddSchedule(models.CronSchedule(definition.ID, "10 9 * * *")))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerRunning)

	assert.Eventually(t, func() bool { return len(runner.Runs()) == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())

	s.Stop()

	s.Wait()
	assert.Len(t, runner.Runs(), 1, "a fixed clock fires the cron rule once")

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_StopsWithContext(t *testing.T) {
	s, _, _ := newFixture(t, WithTickInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	cancel()
	s.Stop()

	assert.False(t, s.Running())
}
