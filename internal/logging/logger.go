// Package logging defines a minimal structured-logging interface used across
// the project, with slog and zap implementations.
package logging

import (
	"context"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "starting server", "addr", addr, "mode", mode)
type Logger interface {
	// Debug logs diagnostic detail that is off in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

// LogError reports err at the level implied by its severity. Critical errors
// (integrity violations, failed decryption) are logged at error level with
// an explicit severity attribute so they can be alerted on.
func LogError(ctx context.Context, l Logger, msg string, err error, args ...any) {
	sev := common.SeverityOf(err)
	args = append(args, "error", err.Error(), "code", string(common.CodeOf(err)), "severity", sev.String())

	switch sev {
	case common.SeverityInfo:
		l.Info(ctx, msg, args...)
	case common.SeverityWarn:
		l.Warn(ctx, msg, args...)
	default:
		l.Error(ctx, msg, args...)
	}
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }
