package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dagflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

func TestLoad(t *testing.T) {
	workflowID := uuid.MustParse("8b0f4a7e-3f3c-4a0b-9a55-3f0f3e3c1d11")

	path := writeConfig(t, `
tick_interval: 30s
workflows_dir: ./workflows
schedules:
  - workflow_id: 8b0f4a7e-3f3c-4a0b-9a55-3f0f3e3c1d11
    kind: cron
    cron_expression: "*/5 * * * *"
    enabled: true
  - workflow_id: 8b0f4a7e-3f3c-4a0b-9a55-3f0f3e3c1d11
    kind: interval
    interval: 90s
`)

	engine, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, engine.TickInterval)
	assert.Equal(t, DefaultRetention, engine.Retention)
	assert.Equal(t, DefaultRetryInitialInterval, engine.RetryInitialInterval)
	assert.Equal(t, "./workflows", engine.WorkflowsDir)

	require.Len(t, engine.Schedules, 2)
	assert.Equal(t, workflowID, engine.Schedules[0].WorkflowID)
	assert.Equal(t, models.ScheduleKindCron, engine.Schedules[0].Kind)
	assert.Equal(t, "*/5 * * * *", engine.Schedules[0].CronExpression)
	assert.True(t, engine.Schedules[0].Enabled)
	assert.Equal(t, 90*time.Second, engine.Schedules[1].Interval)
	assert.False(t, engine.Schedules[1].Enabled)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "tick_interval: [1, 2"))
		assert.ErrorContains(t, err, "failed to parse YAML config")
	})

	t.Run("negative duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "retention: -1s"))
		assert.ErrorContains(t, err, "invalid engine config")
	})

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
schedules:
  - workflow_id: 8b0f4a7e-3f3c-4a0b-9a55-3f0f3e3c1d11
    kind: cron
`))
		assert.ErrorContains(t, err, "CronExpression")
	})
}

func TestLoadOrDefault(t *testing.T) {
	engine, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), engine)

	engine, err = LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), engine)

	_, err = LoadOrDefault(writeConfig(t, "tick_interval: 0s"))
	assert.Error(t, err)
}
