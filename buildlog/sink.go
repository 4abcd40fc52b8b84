package buildlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// SinkConfig configures the rotating log file a build session writes
// structured diagnostics to, mirroring how a long-lived level-build
// service keeps a history of its builds without flooding stdout.
type SinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileSink builds a zap.Logger writing JSON lines through a
// lumberjack-rotated file. It is the logger a long-running build server
// passes to buildlog.New; CLI tools typically pass a console logger
// instead (see NewConsoleSink).
func NewFileSink(cfg SinkConfig) *zap.Logger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, zapcore.InfoLevel)
	return zap.New(core)
}

// NewConsoleSink builds a human-readable logger for interactive CLI use.
func NewConsoleSink(debug bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
