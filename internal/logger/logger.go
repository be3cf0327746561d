package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new zap logger
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	return cfg.Build()
}

// Must creates a logger or panics
func Must(development bool) *zap.Logger {
	log, err := New(development)
	if err != nil {
		panic(err)
	}
	return log
}

// ForRun scopes a logger to a single backtest run
func ForRun(log *zap.Logger, runID, symbol string) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	fields := []zap.Field{zap.String("run_id", runID)}
	if symbol != "" {
		fields = append(fields, zap.String("symbol", symbol))
	}
	return log.With(fields...)
}
