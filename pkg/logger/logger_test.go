package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"Info", slog.LevelInfo},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.input)
		require.NoError(t, err, "level %q", tt.input)
		assert.Equal(t, tt.want, level, "level %q", tt.input)
	}
}

func TestParseLevelUnknown(t *testing.T) {
	_, err := ParseLevel("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")

	_, err = ParseLevel("")
	require.Error(t, err)
}
