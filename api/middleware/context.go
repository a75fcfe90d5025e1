package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
)

type contextKey string

const ctxCaller contextKey = "caller"

// CallerFromContext returns the authenticated principal stored by Auth.
func CallerFromContext(ctx context.Context) (pkgAuth.Caller, bool) {
	if ctx == nil {
		return pkgAuth.Caller{}, false
	}
	caller, ok := ctx.Value(ctxCaller).(pkgAuth.Caller)
	if !ok || !caller.Valid() {
		return pkgAuth.Caller{}, false
	}
	return caller, true
}

// WithCaller injects the principal into the context for downstream handlers.
func WithCaller(ctx context.Context, caller pkgAuth.Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCaller, caller)
}
