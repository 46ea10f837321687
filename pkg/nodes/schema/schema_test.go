package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	orderSchema := map[string]any{
		"type":     "object",
		"required": []any{"order_id"},
		"properties": map[string]any{
			"order_id": map[string]any{"type": "string"},
			"total":    map[string]any{"type": "number"},
		},
	}

	require.NoError(t, Validate(orderSchema, map[string]any{"order_id": "A-1", "total": 10.5}))
	require.NoError(t, Validate(nil, "anything"))

	err := Validate(orderSchema, map[string]any{"total": "ten"})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "order_id")

	err = Validate(map[string]any{"type": 12}, map[string]any{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}
