// Package logging builds the process logger from configuration.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/chatlens/internal/config"
)

// New returns a zap logger for the given settings. An unknown level falls
// back to info; format "json" selects the production encoder, anything else
// the console encoder.
func New(cfg config.Logging) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if strings.ToLower(cfg.Format) == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.DisableStacktrace = true
	}
	zapConfig.Level = level
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build()
}

// Verbose raises an existing configuration to debug level.
func Verbose(cfg config.Logging) config.Logging {
	cfg.Level = "debug"
	return cfg
}
