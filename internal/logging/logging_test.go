package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New(Config{Debug: true, Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_OutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flagcache.log")

	logger, err := New(Config{OutputPaths: []string{path}})
	require.NoError(t, err)
	logger.Warn("batch failed")
	require.NoError(t, logger.Sync())

	assert.FileExists(t, path)
}

func TestComponent_NilLogger(t *testing.T) {
	logger := Component(nil, "batcher")
	assert.NotNil(t, logger)
	logger.Error("ignored")
}
