package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Development selects the console encoder.
func New(level string, development bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	conf := zap.NewProductionConfig()
	if development {
		conf = zap.NewDevelopmentConfig()
	}
	conf.Level = zap.NewAtomicLevelAt(lvl)
	conf.EncoderConfig.TimeKey = "time"
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return conf.Build()
}
