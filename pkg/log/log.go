// Package log is the process-wide structured logger. Call sites use the
// package functions with alternating key/value pairs; the backend is zap.
package log

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(err error, msg string, keysAndValues ...any)

	WithName(name string) Logger
	WithValues(keysAndValues ...any) Logger

	// Logr adapts the logger for libraries that take a logr.Logger.
	Logr() logr.Logger

	// Sync flushes buffered entries. The shutdown path calls it once.
	Sync() error
}

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	z *zap.Logger
	// direct is set on derived loggers, which are called without the
	// package function frame.
	direct bool
}

// std starts as a no-op so packages can log before Init and in tests.
var std atomic.Pointer[zapLogger]

func init() {
	std.Store(&zapLogger{z: zap.NewNop()})
}

// NewLogger builds a logger from opts. Unwritable output paths fall back to
// stderr so the device still reports why it stopped.
func NewLogger(opts *Options) Logger {
	return newZapLogger(opts)
}

func newZapLogger(opts *Options) *zapLogger {
	if opts == nil {
		opts = NewOptions()
	}

	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(opts.Level))

	sink, _, err := zap.Open(outputPaths(opts)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log: %v, writing to stderr\n", err)
		sink = zapcore.Lock(os.Stderr)
	}

	zopts := []zap.Option{
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	}
	if !opts.DisableCaller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(opts.CallerSkip))
	}

	z := zap.New(zapcore.NewCore(newEncoder(opts), sink, level), zopts...)
	if opts.Name != "" {
		z = z.Named(opts.Name)
	}
	return &zapLogger{z: z}
}

func outputPaths(opts *Options) []string {
	if len(opts.OutputPaths) == 0 {
		return []string{"stdout"}
	}
	return opts.OutputPaths
}

func newEncoder(opts *Options) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if opts.Format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.EnableColor {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

// Init replaces the process logger. Commands call it once options are
// loaded.
func Init(opts *Options) {
	std.Store(newZapLogger(opts))
}

// Std returns the process logger.
func Std() Logger { return std.Load() }

func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func Debug(msg string, keysAndValues ...any) { std.Load().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { std.Load().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { std.Load().Warn(msg, keysAndValues...) }
func Error(err error, msg string, keysAndValues ...any) {
	std.Load().Error(err, msg, keysAndValues...)
}
func WithName(name string) Logger            { return std.Load().WithName(name) }
func WithValues(keysAndValues ...any) Logger { return std.Load().WithValues(keysAndValues...) }
func Logr() logr.Logger                      { return std.Load().Logr() }
func Sync() error                            { return std.Load().Sync() }

func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.z.Debug(msg, toFields(keysAndValues...)...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.z.Info(msg, toFields(keysAndValues...)...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.z.Warn(msg, toFields(keysAndValues...)...)
}

func (l *zapLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, fields...)
}

func (l *zapLogger) WithName(name string) Logger {
	return l.derive(l.z.Named(name))
}

func (l *zapLogger) WithValues(keysAndValues ...any) Logger {
	return l.derive(l.z.With(toFields(keysAndValues...)...))
}

func (l *zapLogger) derive(z *zap.Logger) *zapLogger {
	if !l.direct {
		z = z.WithOptions(zap.AddCallerSkip(-1))
	}
	return &zapLogger{z: z, direct: true}
}

func (l *zapLogger) Logr() logr.Logger {
	return zapr.NewLogger(l.z)
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}
