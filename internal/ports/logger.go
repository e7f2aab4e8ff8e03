package ports

import "context"

// Logger is the write-only sink the core reports through. The core never
// formats user-facing output beyond these calls, which keeps the logging
// implementation (standard log, zap, ...) swappable.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs an error message at Error level together with its cause.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
