// Package logging builds the process logger: a zap console core on stderr,
// optionally teed to a rotating file and to an in-memory line buffer.
package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"joftmode/internal/config"
)

// EncoderConfig mirrors zap's development config without stacktraces.
func EncoderConfig(color bool) zapcore.EncoderConfig {
	level := zapcore.CapitalLevelEncoder
	if color {
		level = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    level,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func ParseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "logging level %q", s)
	}
	return lvl, nil
}

// Logger bundles the root logger with whatever it writes to so the caller
// can flush and close everything at shutdown.
type Logger struct {
	*zap.SugaredLogger
	file *lumberjack.Logger
}

// New builds the root logger. stderr may be nil to suppress console output;
// extra (typically a web.LogBuffer) receives plain uncolored lines.
func New(cfg config.LoggingConfig, stderr io.Writer, extra io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	enabler := zap.NewAtomicLevelAt(lvl)
	plain := zapcore.NewConsoleEncoder(EncoderConfig(false))

	var cores []zapcore.Core
	if stderr != nil {
		color := stderr == os.Stderr
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(EncoderConfig(color)), zapcore.AddSync(stderr), enabler))
	}

	out := &Logger{}
	if cfg.File != "" {
		out.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(plain, zapcore.AddSync(out.file), enabler))
	}
	if extra != nil {
		cores = append(cores, zapcore.NewCore(plain.Clone(), zapcore.AddSync(extra), enabler))
	}

	out.SugaredLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
	return out, nil
}

// Close flushes buffered entries and closes the rotating file.
func (l *Logger) Close() error {
	// Sync on a terminal returns EINVAL on linux; it carries no information.
	_ = l.SugaredLogger.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
