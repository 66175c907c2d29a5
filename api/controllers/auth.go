package controllers

import (
	"net/http"

	"github.com/corpalert/corpalert-backend/api/responses"
	"github.com/corpalert/corpalert-backend/api/validators"
	"github.com/corpalert/corpalert-backend/internal/auth"
	"github.com/corpalert/corpalert-backend/pkg/config"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/logger"
)

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc auth.Service, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		setAccessCookie(w, result.AccessToken, cfg.AccessTTL(), cfg.CookieSecure)
		responses.WriteSuccess(w, result)
	}
}

// AuthRegister creates the account and signs it in.
func AuthRegister(reg auth.RegisterService, svc auth.Service, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reg == nil || svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
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

		setAccessCookie(w, result.AccessToken, cfg.AccessTTL(), cfg.CookieSecure)
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
