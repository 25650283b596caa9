package middleware

import "context"

type contextKey struct{ name string }

var (
	clientIPKey  = contextKey{"client_ip"}
	requestIDKey = contextKey{"request_id"}
)

// WithRequestInfo returns a context carrying the client IP and request id.
// Services read them back through ClientIP and RequestID, never through gin.
func WithRequestInfo(ctx context.Context, clientIP, requestID string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return ctx
}

// ClientIP returns the client IP stored by RequestInfo, or "" if none. It satisfies audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// RequestID returns the request id stored by RequestInfo and true if set.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}
