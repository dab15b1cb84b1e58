package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultListLimit},
		{-3, DefaultListLimit},
		{5, 5},
		{MaxListLimit, MaxListLimit},
		{MaxListLimit + 1, MaxListLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampLimit(tt.in), "limit %d", tt.in)
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range Schema {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
	assert.True(t, strings.Contains(Schema[0], "result      JSONB NOT NULL"))
	assert.Contains(t, Schema[2], "REFERENCES theme_runs (id) ON DELETE CASCADE")
}
