// Package scheduler fires workflow executions from cron, interval and
// webhook rules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/dagflow/pkg/log"
	"github.com/dukex/dagflow/pkg/models"
	"github.com/dukex/dagflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const DefaultTickInterval = 60 * time.Second

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrSchedulerRunning = errors.New("scheduler already running")
	ErrScheduleDisabled = errors.New("schedule disabled")
	ErrNotWebhook       = errors.New("schedule is not a webhook")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)

// Runner executes a workflow. *workflow.Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, workflow *models.Workflow, executionCtx models.ExecutionContext) (*models.ExecutionResult, error)
}

// WorkflowSource resolves the workflow a schedule points at.
// *workflow.Repository satisfies it.
type WorkflowSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
}

type Scheduler struct {
	runner   Runner
	source   WorkflowSource
	logger   *slog.Logger
	validate *validator.Validate
	tick     time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	schedules map[uuid.UUID]models.ScheduleConfig
	// lastFired holds the minute a cron rule last fired, or the time an
	// interval rule last fired (its registration time before the first run).
	lastFired map[uuid.UUID]time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	runs sync.WaitGroup
}

type Option func(*Scheduler)

func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.tick = interval }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock replaces time.Now, used to evaluate rules on each tick.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(runner Runner, source WorkflowSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:    runner,
		source:    source,
		validate:  validator.New(),
		tick:      DefaultTickInterval,
		now:       time.Now,
		schedules: make(map[uuid.UUID]models.ScheduleConfig),
		lastFired: make(map[uuid.UUID]time.Time),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = log.WithModule("scheduler")
	}

	return s
}

// AddSchedule registers a rule, replacing any rule for the same workflow.
func (s *Scheduler) AddSchedule(config models.ScheduleConfig) error {
	err := s.validate.Struct(config)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	switch config.Kind {
	case models.ScheduleKindCron:
		_, err = cron.ParseStandard(config.CronExpression)
		if err != nil {
			return fmt.Errorf("%w: cron expression %q: %w", ErrInvalidSchedule, config.CronExpression, err)
		}

		if !ValidCron(config.CronExpression) {
			return fmt.Errorf("%w: cron expression %q: want five numeric fields of *, n, a-b, a,b,c or */n",
				ErrInvalidSchedule, config.CronExpression)
		}
	case models.ScheduleKindInterval:
		if config.Interval < time.Second {
			return fmt.Errorf("%w: interval must be at least 1s, got %s", ErrInvalidSchedule, config.Interval)
		}
	case models.ScheduleKindWebhook:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules[config.WorkflowID] = config

	delete(s.lastFired, config.WorkflowID)

	if config.Kind == models.ScheduleKindInterval {
		s.lastFired[config.WorkflowID] = s.now().UTC()
	}

	s.logger.Info("Schedule added", "workflow_id", config.WorkflowID, "kind", config.Kind)

	return nil
}

func (s *Scheduler) RemoveSchedule(workflowID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[workflowID]; !ok {
		return ErrScheduleNotFound
	}

	delete(s.schedules, workflowID)
	delete(s.lastFired, workflowID)

	return nil
}

func (s *Scheduler) EnableSchedule(workflowID uuid.UUID) error {
	return s.setEnabled(workflowID, true)
}

func (s *Scheduler) DisableSchedule(workflowID uuid.UUID) error {
	return s.setEnabled(workflowID, false)
}

func (s *Scheduler) setEnabled(workflowID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, ok := s.schedules[workflowID]
	if !ok {
		return fmt.Errorf("%w for workflow %s", ErrScheduleNotFound, workflowID)
	}

	if enabled && !config.Enabled && config.Kind == models.ScheduleKindInterval {
		s.lastFired[workflowID] = s.now().UTC()
	}

	config.Enabled = enabled
	s.schedules[workflowID] = config

	return nil
}

// GetSchedules returns a copy of every registered rule.
func (s *Scheduler) GetSchedules() map[uuid.UUID]models.ScheduleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.schedules)
}

func (s *Scheduler) GetSchedule(workflowID uuid.UUID) (models.ScheduleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, ok := s.schedules[workflowID]
	if !ok {
		return models.ScheduleConfig{}, fmt.Errorf("%w for workflow %s", ErrScheduleNotFound, workflowID)
	}

	return config, nil
}

// Start launches the tick loop. It runs until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel != nil {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("Scheduler started", "tick_interval", s.tick)

	return nil
}

// Stop ends the tick loop and waits for it to exit. Executions already
// handed to the runner keep going; use Wait to drain them.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil

	s.logger.Info("Scheduler stopped")
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	return s.cancel != nil
}

// Wait blocks until every execution started by the scheduler has returned.
func (s *Scheduler) Wait() {
	s.runs.Wait()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick evaluates every enabled rule at now and fires the due ones. A cron
// rule fires at most once per matching minute; an interval rule fires once
// its interval has elapsed since it last fired. Webhook rules never fire here.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []uuid.UUID {
	now = now.UTC()
	due := s.dueSchedules(now)

	fired := make([]uuid.UUID, 0, len(due))

	for _, config := range due {
		logger := s.logger.With("workflow_id", config.WorkflowID, "kind", config.Kind)

		definition, err := s.source.GetByID(ctx, config.WorkflowID)
		if err != nil {
			logger.Error("Failed to load scheduled workflow", "error", err)

			continue
		}

		executionCtx := models.NewExecutionContext(definition)
		s.launch(ctx, definition, executionCtx)

		logger.Info("Triggered scheduled workflow", "execution_id", executionCtx.ExecutionID)

		fired = append(fired, executionCtx.ExecutionID)
	}

	return fired
}

func (s *Scheduler) dueSchedules(now time.Time) []models.ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []models.ScheduleConfig

	for id, config := range s.schedules {
		if !config.Enabled {
			continue
		}

		switch config.Kind {
		case models.ScheduleKindCron:
			minute := now.Truncate(time.Minute)

			if !MatchesCron(config.CronExpression, now) || s.lastFired[id].Equal(minute) {
				continue
			}

			s.lastFired[id] = minute
			due = append(due, config)
		case models.ScheduleKindInterval:
			last, ok := s.lastFired[id]
			if !ok {
				s.lastFired[id] = now

				continue
			}

			if cron.Every(config.Interval).Next(last).After(now) {
				continue
			}

			s.lastFired[id] = now
			due = append(due, config)
		case models.ScheduleKindWebhook:
		}
	}

	return due
}

// TriggerWebhook starts an execution of definition with payload stored under
// the webhook_payload variable and returns its id without waiting for it.
// Execution failures are logged.
func (s *Scheduler) TriggerWebhook(ctx context.Context, definition *models.Workflow, payload any) (uuid.UUID, error) {
	if definition == nil {
		return uuid.Nil, errors.New("workflow is required")
	}

	executionCtx := models.NewExecutionContext(definition)
	executionCtx.Variables[workflow.WebhookPayloadKey] = payload

	s.launch(ctx, definition, executionCtx)

	s.logger.Info("Triggered workflow via webhook",
		"workflow_id", definition.ID,
		"execution_id", executionCtx.ExecutionID,
	)

	return executionCtx.ExecutionID, nil
}

// HandleWebhook triggers the workflow behind an enabled webhook rule.
func (s *Scheduler) HandleWebhook(ctx context.Context, workflowID uuid.UUID, payload any) (uuid.UUID, error) {
	config, err := s.GetSchedule(workflowID)
	if err != nil {
		return uuid.Nil, err
	}

	if config.Kind != models.ScheduleKindWebhook {
		return uuid.Nil, fmt.Errorf("%w: workflow %s uses %s", ErrNotWebhook, workflowID, config.Kind)
	}

	if !config.Enabled {
		return uuid.Nil, fmt.Errorf("%w for workflow %s", ErrScheduleDisabled, workflowID)
	}

	definition, err := s.source.GetByID(ctx, workflowID)
	if err != nil {
		return uuid.Nil, err
	}

	return s.TriggerWebhook(ctx, definition, payload)
}

// launch runs the execution detached from ctx cancellation so it outlives
// the request or tick that started it.
func (s *Scheduler) launch(ctx context.Context, definition *models.Workflow, executionCtx models.ExecutionContext) {
	ctx = context.WithoutCancel(ctx)

	s.runs.Add(1)

	go func() {
		defer s.runs.Done()

		logger := s.logger.With("workflow_id", definition.ID, "execution_id", executionCtx.ExecutionID)

		result, err := s.runner.Execute(ctx, definition, executionCtx)
		if err != nil {
			logger.Error("Scheduled execution failed", "error", err)

			return
		}

		if !result.Succeeded() {
			logger.Warn("Scheduled execution did not complete", "state", result.State, "error", result.Error)

			return
		}

		logger.Info("Scheduled execution completed")
	}()
}
