package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchesCronField(t *testing.T) {
	tests := []struct {
		field string
		value int
		want  bool
	}{
		{"*", 5, true},
		{"5", 5, true},
		{"5", 6, false},
		{"1-5", 3, true},
		{"1-5", 1, true},
		{"1-5", 5, true},
		{"1-5", 6, false},
		{"1,3,5", 3, true},
		{"1,3,5", 2, false},
		{"*/5", 10, true},
		{"*/5", 15, true},
		{"*/5", 0, true},
		{"*/5", 11, false},
		{"*/0", 10, false},
		{"2/5", 10, false},
		{"a-b", 1, false},
		{"", 0, false},
		{"banana", 0, false},
		{"0-30/10", 10, false},
		{"MON-FRI", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesCronField(tt.field, tt.value))
		})
	}
}

func TestValidCron(t *testing.T) {
	tests := []struct {
		expression string
		want       bool
	}{
		{"* * * * *", true},
		{"*/15 8-10 * 1,6 0-4", true},
		{"0 0 * * *", true},
		{"* * * *", false},
		{"* * * * * *", false},
		{"@daily", false},
		{"@every 5m", false},
		{"0 9 * * MON-FRI", false},
		{"0 0 1 JAN *", false},
		{"0-30/10 * * * *", false},
		{"1-3,5 * * * *", false},
		{"*/0 * * * *", false},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCron(tt.expression))
		})
	}
}

func TestMatchesCron(t *testing.T) {
	// Wednesday 2024-01-10 09:30 UTC; weekday from Monday is 2.
	at := time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC)

	assert.True(t, MatchesCron("* * * * *", at))
	assert.True(t, MatchesCron("30 9 10 1 2", at))
	assert.True(t, MatchesCron("*/15 8-10 * 1,6 0-4", at))
	assert.False(t, MatchesCron("30 9 10 1 3", at))
	assert.False(t, MatchesCron("31 9 * * *", at))
	assert.False(t, MatchesCron("* * * *", at))
	assert.False(t, MatchesCron("* * * * * *", at))

	sunday := time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)
	assert.True(t, MatchesCron("0 0 * * 6", sunday))
}
