// Package logging is the structured logger used across the server. Code
// depends on the Logger interface; SlogLogger is the production backend.
package logging

import "context"

// Logger is a context-aware structured logger. args are alternating keys
// and values:
//
//	logger.Info(ctx, "delta served", "updates", n, "user", scope.UserID)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that adds args to every record.
	With(args ...any) Logger
}
