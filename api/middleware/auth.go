package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type authenticator struct {
	cfg      config.JWTConfig
	sessions session.AccessSessionChecker
}

// Auth requires a valid bearer token whose session has not been revoked and
// puts the caller on the request context.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	a := authenticator{cfg: cfg, sessions: sessions}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := a.authenticate(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithCaller(r.Context(), caller)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, caller.UserID.String()), string(caller.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a authenticator) authenticate(r *http.Request) (pkgAuth.Caller, error) {
	raw, ok := pkgAuth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return pkgAuth.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token")
	}
	claims, err := pkgAuth.ParseAccessToken(a.cfg, raw)
	if err != nil {
		return pkgAuth.Caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	caller := claims.Caller()
	if !caller.Valid() {
		return pkgAuth.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token")
	}
	if err := a.checkSession(r.Context(), claims.ID); err != nil {
		return pkgAuth.Caller{}, err
	}
	return caller, nil
}

// checkSession rejects tokens whose session was revoked by logout or
// rotated away by refresh.
func (a authenticator) checkSession(ctx context.Context, jti string) error {
	if a.sessions == nil {
		return nil
	}
	live, err := a.sessions.HasSession(ctx, jti)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "session lookup")
	}
	if !live {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")
	}
	return nil
}
