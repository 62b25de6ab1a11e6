package debug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFileWritesAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", FileName)

	logger, closeFn, err := NewFile(path, "debug")
	require.NoError(t, err)
	logger.Debug("first run", zap.Int("n", 1))
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Debug logging started")
	assert.Contains(t, string(data), "first run")

	logger, closeFn, err = NewFile(path, "warn")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("second run")
	closeFn()

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "first run")
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "second run")
}

func TestBadLevel(t *testing.T) {
	_, _, err := NewFile(filepath.Join(t.TempDir(), FileName), "loud")
	assert.Error(t, err)
	_, err = NewConsole("loud")
	assert.Error(t, err)
}

func TestNewConsole(t *testing.T) {
	logger, closeFn, err := New("info", false)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	closeFn()
}
