// Package logging builds the process-wide slog logger on top of a zap core.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	match "github.com/0x5487/tradesim"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at the given level ("debug", "info", "warn",
// "error") writing to w, and the function that flushes it.
func New(level string, w io.Writer) (*slog.Logger, func() error, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	zl := zap.New(core)

	return slog.New(zapslog.NewHandler(core, zapslog.WithCaller(false))), zl.Sync, nil
}

// Setup builds a stdout logger, installs it as the slog default and as the
// matching engine's logger, and returns the flush function.
func Setup(level string) (*slog.Logger, func() error, error) {
	logger, sync, err := New(level, os.Stdout)
	if err != nil {
		return nil, nil, err
	}

	slog.SetDefault(logger)
	match.SetLogger(logger)
	return logger, sync, nil
}
