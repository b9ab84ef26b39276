package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON production logger or a colored console logger for
// everything else. The returned AtomicLevel lets callers change verbosity at runtime.
func NewLogger(environment, level string) (*zap.Logger, zap.AtomicLevel, error) {
	var config zap.Config

	if strings.EqualFold(environment, "production") {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := SetLevel(config.Level, level); err != nil {
		return nil, config.Level, err
	}

	logger, err := config.Build()
	if err != nil {
		return nil, config.Level, err
	}
	return logger, config.Level, nil
}

// SetLevel parses level ("debug", "info", ...) and applies it. An empty level is a no-op.
func SetLevel(atom zap.AtomicLevel, level string) error {
	if level == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	atom.SetLevel(l)
	return nil
}
