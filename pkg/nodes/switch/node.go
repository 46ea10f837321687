// Package switchnode implements the Switch condition: a multi-way branch on
// a rendered value.
package switchnode

import (
	"errors"
	"fmt"

	"github.com/dukex/dagflow/pkg/template"
)

const OutputPortDefault = "default"

// Case maps a rendered value to a branch name.
type Case struct {
	Value      string `json:"value"`
	OutputPort string `json:"output_port"`
}

// Config is the parsed configuration of a Switch node.
type Config struct {
	Value string
	Cases []Case
}

// ParseConfig reads "value" and "cases" from the node parameters.
func ParseConfig(parameters map[string]any) (*Config, error) {
	value, ok := parameters["value"].(string)
	if !ok {
		return nil, errors.New("missing required field 'value'")
	}

	config := &Config{Value: value}

	if casesConfig, ok := parameters["cases"].([]any); ok {
		for i, caseAny := range casesConfig {
			caseMap, ok := caseAny.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("case %d must be an object", i)
			}

			caseValue, ok := caseMap["value"].(string)
			if !ok {
				return nil, fmt.Errorf("case %d missing 'value'", i)
			}

			outputPort, ok := caseMap["output_port"].(string)
			if !ok {
				return nil, fmt.Errorf("case %d missing 'output_port'", i)
			}

			config.Cases = append(config.Cases, Case{Value: caseValue, OutputPort: outputPort})
		}
	}

	return config, nil
}

// Evaluate renders the value and selects the first matching case, falling
// back to the default branch.
func Evaluate(parameters map[string]any, ctx *template.Context) (map[string]any, error) {
	config, err := ParseConfig(parameters)
	if err != nil {
		return nil, err
	}

	result, err := template.RenderWithContext(config.Value, ctx)
	if err != nil {
		return nil, fmt.Errorf("value evaluation failed: %w", err)
	}

	valueStr := fmt.Sprintf("%v", result)

	for _, c := range config.Cases {
		if c.Value == valueStr {
			return map[string]any{
				"matched_value": valueStr,
				"branch":        c.OutputPort,
			}, nil
		}
	}

	return map[string]any{
		"matched_value": valueStr,
		"branch":        OutputPortDefault,
		"no_match":      true,
	}, nil
}
