// Package guard decides whether a page renders or redirects based on the
// session held for the request. Decisions are made on every request from
// whatever the session currently holds; no network call is involved.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

const (
	RootPath     = "/"
	AuthPath     = "/auth"
	NotFoundPath = "/not-found"
	// FromParam carries the originally requested location to the auth page.
	FromParam = "from"
)

// Outcome is the result of a guard decision.
type Outcome int

const (
	Render Outcome = iota
	RedirectToAuth
	RedirectToNotFound
	RedirectToRoot
)

func (o Outcome) String() string {
	switch o {
	case RedirectToAuth:
		return "redirect_auth"
	case RedirectToNotFound:
		return "redirect_not_found"
	case RedirectToRoot:
		return "redirect_root"
	}
	return "render"
}

// Decide is the authentication/role gate. With no session it always sends the
// visitor to the auth page. An empty allow-list means any signed-in role.
func Decide(user *types.UserProfile, roles []enums.Role) Outcome {
	if user == nil {
		return RedirectToAuth
	}
	if len(roles) == 0 {
		return Render
	}
	for _, r := range roles {
		if r == user.Role {
			return Render
		}
	}
	return RedirectToNotFound
}

// DecideRedirectIfAuthenticated keeps signed-in users away from the auth page.
func DecideRedirectIfAuthenticated(user *types.UserProfile) Outcome {
	if user != nil {
		return RedirectToRoot
	}
	return Render
}

// Session is the read side of a session store.
type Session interface {
	User() *types.UserProfile
}

// Resolver finds the session for a request. Returning nil means signed out.
type Resolver func(r *http.Request) Session

// Protected wraps next with the authentication/role gate.
func Protected(resolve Resolver, logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	allow := append([]enums.Role(nil), roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := Decide(currentUser(resolve, r), allow)
			if outcome == Render {
				next.ServeHTTP(w, r)
				return
			}
			redirect(w, r, logg, outcome)
		})
	}
}

// RedirectIfAuthenticated wraps the auth entry point.
func RedirectIfAuthenticated(resolve Resolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := DecideRedirectIfAuthenticated(currentUser(resolve, r))
			if outcome == Render {
				next.ServeHTTP(w, r)
				return
			}
			redirect(w, r, logg, outcome)
		})
	}
}

// Location returns where outcome sends a request for requestURI.
func Location(outcome Outcome, requestURI string) string {
	switch outcome {
	case RedirectToAuth:
		if requestURI == "" {
			return AuthPath
		}
		return AuthPath + "?" + url.Values{FromParam: {requestURI}}.Encode()
	case RedirectToNotFound:
		return NotFoundPath
	case RedirectToRoot:
		return RootPath
	}
	return ""
}

// SafeReturnPath validates a "from" value so it can only point back into the
// application. Anything else falls back to the root.
func SafeReturnPath(from string) string {
	from = strings.TrimSpace(from)
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return RootPath
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return RootPath
	}
	if u.Path == AuthPath {
		return RootPath
	}
	return from
}

func currentUser(resolve Resolver, r *http.Request) *types.UserProfile {
	if resolve == nil {
		return nil
	}
	session := resolve(r)
	if session == nil {
		return nil
	}
	return session.User()
}

func redirect(w http.ResponseWriter, r *http.Request, logg *logger.Logger, outcome Outcome) {
	location := Location(outcome, r.URL.RequestURI())
	if logg != nil {
		ctx := logg.WithFields(r.Context(), map[string]any{"path": r.URL.Path, "outcome": outcome.String()})
		logg.Debug(ctx, "guard redirect")
	}
	http.Redirect(w, r, location, http.StatusFound)
}
