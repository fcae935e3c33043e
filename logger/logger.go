package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. Init must be called once at startup;
// packages that run under `go test` get a usable default via init().
var Log *zap.Logger

func init() {
	Log = zap.NewNop()
}

func Init(level string) error {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// Sync flushes buffered entries; safe to call on shutdown.
func Sync() {
	_ = Log.Sync()
}
