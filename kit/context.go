package kit

import "context"

type contextKey string

const (
	SessionIDKey contextKey = "kit_session_id"
	RequestIDKey contextKey = "kit_request_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
	SurfaceKey   contextKey = "kit_surface"   // surface that produced an edit
)

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

// WithSurface records which edit surface (canvas, inspector, sidebar, code)
// originated the request. Style and attribute edits share key names, so the
// surface is what disambiguates them in logs and the journal.
func WithSurface(ctx context.Context, s string) context.Context {
	return context.WithValue(ctx, SurfaceKey, s)
}
func GetSurface(ctx context.Context) string {
	v, _ := ctx.Value(SurfaceKey).(string)
	return v
}
