package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/chatlens/internal/config"
)

func TestNewConsoleLogger(t *testing.T) {
	logger, err := New(config.Logging{Level: "warn", Format: "console"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewJSONLogger(t *testing.T) {
	logger, err := New(config.Logging{Level: "DEBUG", Format: "json"})
	require.NoError(t, err)

	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := New(config.Logging{Level: "chatty"})
	require.NoError(t, err)

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestVerbose(t *testing.T) {
	cfg := Verbose(config.Logging{Level: "info", Format: "json"})
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}
