// Package logger wraps zap with request-aware helpers. Domain code logs through
// the package functions, which pick the logger carried by ctx or the process
// default.
package logger

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "storeflow/internal/core/context"
)

// Logger is a zap.SugaredLogger with context helpers.
type Logger struct {
	*zap.SugaredLogger
}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error; empty means info
	Development bool   // console encoder with colors
	Service     string // added to every entry when set
	OutputPaths []string
}

// New builds a logger. An unknown level is an error.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if cfg.Service != "" {
		zc.InitialFields = map[string]any{"service": cfg.Service}
	}

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var process atomic.Pointer[Logger]

func init() {
	z, _ := zap.NewProduction(zap.AddCallerSkip(1))
	process.Store(&Logger{z.Sugar()})
}

// Default returns the process logger.
func Default() *Logger { return process.Load() }

// SetDefault replaces the process logger. Call once from main.
func SetDefault(l *Logger) {
	if l != nil {
		process.Store(l)
	}
}

// WithContext adds request id, trace id and user id from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var kv []any
	if r, ok := appctx.RequestFrom(ctx); ok {
		kv = append(kv, "request_id", r.ID, "trace_id", r.TraceID)
	}
	if uid := appctx.GetUserID(ctx); uid != "" {
		kv = append(kv, "user_id", uid)
	}
	if len(kv) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(kv...)}
}

// With adds key-value pairs to logger.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// WithComponent tags entries with a component name (worker, relay, ...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

type ctxKey struct{}

// WithLogger makes l the logger for everything done under ctx.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or the process logger,
// enriched with the request identity.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	if !ok {
		l = Default()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}
