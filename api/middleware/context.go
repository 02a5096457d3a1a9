package middleware

import "context"

type contextKey string

const (
	ctxAdminEmail    contextKey = "admin_email"
	ctxPortalSession contextKey = "portal_session"
	ctxClientKey     contextKey = "client_key"
)

func AdminEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminEmail).(string); ok {
		return v
	}
	return ""
}

func PortalSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxPortalSession).(string); ok {
		return v
	}
	return ""
}

func ClientKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxClientKey).(string); ok {
		return v
	}
	return ""
}

// WithPortalSession injects the visitor session token into the context.
func WithPortalSession(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPortalSession, token)
}

// WithClientKey injects the visitor client key into the context.
func WithClientKey(ctx context.Context, clientKey string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientKey, clientKey)
}
