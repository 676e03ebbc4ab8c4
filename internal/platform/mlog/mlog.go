// Package mlog defines the Logger interface used throughout the core and
// the context plumbing to carry one through a request or job's lifetime.
// Every service method pulls its logger from context.Context via
// FromContext; nothing holds a package-global logger.
package mlog

import "context"

// Logger is the minimal structured-logging surface the core depends on.
// The production implementation (zap.go) wraps go.uber.org/zap; tests may
// substitute NoneLogger or a recording fake.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Debug(args ...any)
	Debugf(format string, args ...any)
	WithFields(fields ...any) Logger
	Sync() error
}

type loggerContextKey struct{}

// ContextWithLogger returns a child context carrying logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext returns the Logger stored in ctx, or NoneLogger if absent.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return &NoneLogger{}
}

// NoneLogger discards everything. It is the safe zero value so a missing
// ContextWithLogger call never panics, only goes quiet.
type NoneLogger struct{}

func (*NoneLogger) Info(...any)            {}
func (*NoneLogger) Infof(string, ...any)   {}
func (*NoneLogger) Warn(...any)            {}
func (*NoneLogger) Warnf(string, ...any)   {}
func (*NoneLogger) Error(...any)           {}
func (*NoneLogger) Errorf(string, ...any)  {}
func (*NoneLogger) Debug(...any)           {}
func (*NoneLogger) Debugf(string, ...any)  {}
func (l *NoneLogger) WithFields(...any) Logger { return l }
func (*NoneLogger) Sync() error            { return nil }
