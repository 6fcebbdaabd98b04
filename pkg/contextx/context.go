package contextx

import (
	"context"

	"go.uber.org/zap"
)

// Key types (unexported).
type (
	loggerKeyType    struct{}
	callerKeyType    struct{}
	requestIDKeyType struct{}
)

var (
	loggerKey    = loggerKeyType{}
	callerKey    = callerKeyType{}
	requestIDKey = requestIDKeyType{}
)

// Logger helpers.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// Caller helpers carry the authenticated principal through a request.
func WithCaller(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, callerKey, principal)
}

func Caller(ctx context.Context) string {
	if p, ok := ctx.Value(callerKey).(string); ok {
		return p
	}
	return ""
}

// Request-ID helpers.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
