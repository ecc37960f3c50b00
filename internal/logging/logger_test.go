package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"info", log.InfoLevel},
		{"", log.InfoLevel},
		{"loud", log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLoggerEnvironment(t *testing.T) {
	t.Setenv(envLevel, "debug")
	t.Setenv(envPrefix, "test ")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Debug("decoded", "addr", "0x401000")

	out := buf.String()
	assert.Contains(t, out, "test")
	assert.Contains(t, out, "decoded")
	assert.Contains(t, out, "0x401000")
	assert.True(t, IsDebug())
	require.NoError(t, lg.Close())
}

func TestLoggerDefaultLevelDropsDebug(t *testing.T) {
	t.Setenv(envLevel, "")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Debug("hidden")
	lg.With("session", "x").Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "session=x")
	assert.False(t, IsDebug())
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.log")
	lg, err := NewFileLogger(path)
	require.NoError(t, err)
	lg.Info("defined", "entry", "0x1000")
	require.NoError(t, lg.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "entry=0x1000")

	_, err = NewFileLogger(filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}
