package server_test

import (
	"testing"

	"data-reconciler/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_IsValidSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		want     bool
	}{
		{"Empty", "", true},
		{"Hourly", "@hourly", true},
		{"Nightly", "30 2 * * *", true},
		{"EveryFifteen", "*/15 * * * *", true},
		{"TooFewFields", "* *", false},
		{"Garbage", "sometimes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{Schedule: tt.schedule}
			assert.Equal(t, tt.want, c.IsValidSchedule())
		})
	}
}

func TestConfig_HasSchedule(t *testing.T) {
	assert.False(t, server.Config{}.HasSchedule())
	assert.True(t, server.Config{Schedule: "@daily"}.HasSchedule())
}
