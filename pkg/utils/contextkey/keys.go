package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID    key = "trace_id"
	SessionID  key = "session_id"
	DispatchID key = "dispatch_id"
)

// WithTraceID stores a trace id on the context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceID, id)
}

// WithSessionID stores the session id the request is issued under.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionID, id)
}

// WithDispatchID stores the submission dispatch id.
func WithDispatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DispatchID, id)
}

// String returns the string value stored under k, or "".
func String(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}
