package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func callerFrom(r *http.Request) (pkgAuth.Caller, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return pkgAuth.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return caller, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable")
}
