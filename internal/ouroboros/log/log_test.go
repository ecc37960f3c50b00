package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ouroboros.log")
	Setup(path, true)
	t.Cleanup(func() { Close() })
	require.True(t, Initialized())

	slog.Debug("frame", "n", 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=frame")
	assert.Contains(t, string(data), "n=1")
}

func TestRecoverPanicRunsCleanup(t *testing.T) {
	called := false
	func() {
		defer RecoverPanic("test", func() { called = true })
		panic("boom")
	}()
	assert.True(t, called)
}
