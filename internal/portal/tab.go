package portal

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/corpalert/corpalert-backend/api/middleware"
	"github.com/corpalert/corpalert-backend/pkg/apiclient"
	"github.com/corpalert/corpalert-backend/pkg/guard"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/usersession"
)

// TabCookie identifies the browser session a request belongs to. It is a
// path-wide cookie, so every tab of one browser shares the session, the same
// way a persisted client-side store would.
const TabCookie = "ca_tab"

type ctxKey string

const (
	ctxTabID ctxKey = "portal_tab_id"
	ctxStore ctxKey = "portal_store"
)

// Tabs resolves the browser's store from the registry and attaches it,
// together with the backend access token, to the request context. A missing
// or malformed cookie starts a new session id. Stores left without a session
// are released once the request is served.
func Tabs(registry *usersession.Registry, secure bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tabID := readTabID(r)
			if tabID == "" {
				tabID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     TabCookie,
					Value:    tabID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithTabID(ctx, tabID)
			}
			if reqID := middleware.RequestIDFromContext(ctx); reqID != "" {
				ctx = apiclient.WithRequestID(ctx, reqID)
			}
			if token := accessToken(r); token != "" {
				ctx = apiclient.WithToken(ctx, token)
			}
			store := registry.Get(ctx, tabID)
			ctx = context.WithValue(ctx, ctxTabID, tabID)
			ctx = context.WithValue(ctx, ctxStore, store)

			defer registry.Release(tabID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StoreFrom returns the tab's store, or nil outside the Tabs middleware.
func StoreFrom(ctx context.Context) *usersession.Store {
	store, _ := ctx.Value(ctxStore).(*usersession.Store)
	return store
}

// TabIDFrom returns the tab id attached by Tabs.
func TabIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxTabID).(string)
	return id
}

// SessionFor is the guard resolver for portal requests.
func SessionFor(r *http.Request) guard.Session {
	store := StoreFrom(r.Context())
	if store == nil {
		return nil
	}
	return store
}

func readTabID(r *http.Request) string {
	cookie, err := r.Cookie(TabCookie)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func accessToken(r *http.Request) string {
	cookie, err := r.Cookie(middleware.AccessTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
