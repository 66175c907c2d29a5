package controllers

import (
	"net/http"
	"time"

	"github.com/corpalert/corpalert-backend/api/middleware"
	"github.com/corpalert/corpalert-backend/internal/alerts"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/google/uuid"
)

func requireUserID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id, nil
}

func actorFromRequest(r *http.Request) (alerts.Actor, error) {
	id, err := requireUserID(r)
	if err != nil {
		return alerts.Actor{}, err
	}
	return alerts.Actor{UserID: id, Role: middleware.RoleFromContext(r.Context())}, nil
}

func setAccessCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAccessCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
