//go:build !tinygo

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewDefaultLogger instantiates a console logger backed by zap
func NewDefaultLogger(debug bool) Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return NullLogger{}
	}
	return logger.Sugar()
}

// Ensure the zap sugared logger implements Logger.
var _ Logger = (*zap.SugaredLogger)(nil)
