// Package config loads the engine configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/dagflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTickInterval         = 60 * time.Second
	DefaultRetention            = time.Hour
	DefaultRetryInitialInterval = 100 * time.Millisecond
)

// Engine is the structure of the dagflow.yaml file.
type Engine struct {
	// TickInterval is how often the scheduler evaluates its rules
	TickInterval time.Duration `validate:"gt=0" yaml:"tick_interval"`

	// Retention is how long finished executions stay inspectable
	Retention time.Duration `validate:"gt=0" yaml:"retention"`

	RetryInitialInterval time.Duration `validate:"gt=0" yaml:"retry_initial_interval"`

	// WorkflowsDir holds *.json definitions loaded at startup
	WorkflowsDir string `yaml:"workflows_dir"`

	Schedules []models.ScheduleConfig `validate:"dive" yaml:"schedules"`
}

func Default() Engine {
	return Engine{
		TickInterval:         DefaultTickInterval,
		Retention:            DefaultRetention,
		RetryInitialInterval: DefaultRetryInitialInterval,
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (Engine, error) {
	engine := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return engine, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &engine)
	if err != nil {
		return engine, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	err = Validate(engine)
	if err != nil {
		return engine, err
	}

	return engine, nil
}

// LoadOrDefault loads path when it is set and exists, and returns the
// defaults otherwise. A file that exists but is invalid is an error.
func LoadOrDefault(path string) (Engine, error) {
	if path == "" {
		return Default(), nil
	}

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return Load(path)
}

func Validate(engine Engine) error {
	err := validator.New().Struct(engine)
	if err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	return nil
}
