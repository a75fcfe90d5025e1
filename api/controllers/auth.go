package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// tokenHeader mirrors the access token from the body for clients that only
// read headers.
const tokenHeader = "X-Storefront-Token"

type registrar interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error)
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.LoginRequest
		if !decodeOrFail(w, r, logg, svc != nil, &body) {
			return
		}
		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

// AuthRegister creates a customer account and logs it in, so a successful
// sign-up answers with the same body as login.
func AuthRegister(reg registrar, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.RegisterRequest
		if !decodeOrFail(w, r, logg, reg != nil && svc != nil, &body) {
			return
		}
		if _, err := reg.Register(r.Context(), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Login(r.Context(), auth.LoginRequest{Email: body.Email, Password: body.Password})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthRefresh accepts an expired bearer token together with its refresh
// token.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.RefreshRequest
		if !decodeOrFail(w, r, logg, svc != nil, &body) {
			return
		}
		bearer, _ := pkgAuth.BearerToken(r.Header.Get("Authorization"))
		pair, err := svc.Refresh(r.Context(), bearer, body.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(tokenHeader, pair.AccessToken)
		responses.WriteSuccess(w, pair)
	}
}

func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("auth service"))
			return
		}
		bearer, _ := pkgAuth.BearerToken(r.Header.Get("Authorization"))
		if err := svc.Logout(r.Context(), bearer); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// decodeOrFail writes the error response itself and reports whether the
// handler should continue.
func decodeOrFail(w http.ResponseWriter, r *http.Request, logg *logger.Logger, ready bool, dst any) bool {
	if !ready {
		responses.WriteError(r.Context(), logg, w, unavailable("auth service"))
		return false
	}
	if err := validators.DecodeJSONBody(r, dst); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return false
	}
	return true
}
