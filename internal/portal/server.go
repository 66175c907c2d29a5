// Package portal is the browser-facing application server. Each browser
// gets its own session store, keyed by a cookie; page views are guarded from
// whatever that store holds and form actions call the backend API through a
// typed client.
package portal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corpalert/corpalert-backend/api/middleware"
	"github.com/corpalert/corpalert-backend/api/responses"
	"github.com/corpalert/corpalert-backend/api/validators"
	"github.com/corpalert/corpalert-backend/pkg/access"
	"github.com/corpalert/corpalert-backend/pkg/apiclient"
	"github.com/corpalert/corpalert-backend/pkg/config"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/guard"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/corpalert/corpalert-backend/pkg/usersession"
)

// Backend is the slice of the API the portal drives directly. Profile reads
// go through the registry's fetcher.
type Backend interface {
	Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.Session, error)
	Register(ctx context.Context, reg apiclient.Registration) (*apiclient.Session, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, patch types.UserProfilePatch) (*types.UserProfile, error)
}

type ServerParams struct {
	Registry *usersession.Registry
	Backend  Backend
	Config   config.PortalConfig
	Logger   *logger.Logger
}

type Server struct {
	registry *usersession.Registry
	backend  Backend
	cfg      config.PortalConfig
	logg     *logger.Logger
}

func NewServer(params ServerParams) (*Server, error) {
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session registry is required")
	}
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "api backend is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Server{
		registry: params.Registry,
		backend:  params.Backend,
		cfg:      params.Config,
		logg:     params.Logger,
	}, nil
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	From     string `json:"from,omitempty"`
}

type registerForm struct {
	Email           string                `json:"email" validate:"required,email"`
	Password        string                `json:"password" validate:"required,min=8"`
	FirstName       string                `json:"first_name" validate:"required,max=50"`
	LastName        string                `json:"last_name" validate:"required,max=50"`
	Role            string                `json:"role" validate:"required,oneof=farmer agronomist"`
	SubscribedCrops []string              `json:"subscribed_crops,omitempty"`
	Location        *types.GeographyPoint `json:"location,omitempty"`
}

// Routes builds the portal router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(s.logg),
		middleware.RequestID(s.logg),
		middleware.Logging(s.logg),
		Tabs(s.registry, s.cfg.CookieSecure, s.logg),
	)
	r.NotFound(s.notFound)

	protected := func(route access.Route) func(http.Handler) http.Handler {
		return guard.Protected(SessionFor, s.logg, access.RolesFor(route)...)
	}

	r.Get(access.Path(access.RouteHome), s.page(string(access.RouteHome)))
	r.Get(guard.NotFoundPath, s.notFound)
	r.With(guard.RedirectIfAuthenticated(SessionFor, s.logg)).Get(guard.AuthPath, s.authPage)

	for _, route := range []access.Route{access.RouteProfile, access.RouteFindAlerts, access.RouteAddAlert, access.RouteAdminDashboard} {
		r.With(protected(route)).Get(access.Path(route), s.page(string(route)))
	}

	r.Post("/auth/login", s.login)
	r.Post("/auth/register", s.register)
	r.Post("/auth/logout", s.logout)
	r.With(protected(access.RouteProfile)).Post("/profile", s.updateProfile)
	r.With(protected(access.RouteProfile)).Post("/profile/refresh", s.refreshProfile)

	return r
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, newPageView(name, currentUser(r)))
	}
}

func (s *Server) authPage(w http.ResponseWriter, r *http.Request) {
	view := newPageView("auth", nil)
	view.From = guard.SafeReturnPath(r.URL.Query().Get(guard.FromParam))
	responses.WriteSuccess(w, view)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccessStatus(w, http.StatusNotFound, newPageView("not-found", currentUser(r)))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form loginForm
	if err := validators.DecodeJSONBody(r, &form); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}

	session, err := s.backend.Login(ctx, apiclient.Credentials{
		Email:    strings.TrimSpace(form.Email),
		Password: form.Password,
	})
	if err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}

	store := StoreFrom(ctx)
	result := store.FetchProfile(apiclient.WithToken(ctx, session.AccessToken))
	if result.Err != nil {
		s.clearAccessCookie(w)
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Err, "load profile after login"))
		return
	}
	s.setAccessCookie(w, session)

	responses.WriteSuccess(w, ActionResult{Redirect: guard.SafeReturnPath(form.From), User: store.User()})
}

// register stores the profile the backend returned without a second fetch.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form registerForm
	if err := validators.DecodeJSONBody(r, &form); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}

	session, err := s.backend.Register(ctx, apiclient.Registration{
		Email:           strings.TrimSpace(form.Email),
		Password:        form.Password,
		FirstName:       validators.SanitizeString(form.FirstName, 50),
		LastName:        validators.SanitizeString(form.LastName, 50),
		Role:            form.Role,
		SubscribedCrops: form.SubscribedCrops,
		Location:        form.Location,
	})
	if err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	if session.User == nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeDependency, "registration returned no profile"))
		return
	}
	s.setAccessCookie(w, session)

	store := StoreFrom(ctx)
	store.SetUser(ctx, session.User)
	responses.WriteSuccessStatus(w, http.StatusCreated, ActionResult{Redirect: guard.RootPath, User: store.User()})
}

// logout clears the browser's session whatever the backend answers.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if apiclient.TokenFrom(ctx) != "" {
		if err := s.backend.Logout(ctx); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "backend logout failed; clearing session anyway")
		}
	}
	StoreFrom(ctx).ClearUser(ctx)
	s.clearAccessCookie(w)
	responses.WriteSuccess(w, ActionResult{Redirect: guard.AuthPath})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var patch types.UserProfilePatch
	if err := validators.DecodeJSONBody(r, &patch); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	// Email and approval are not user-editable.
	patch.Email = nil
	patch.IsApproved = nil
	if patch.IsEmpty() {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no profile fields to update"))
		return
	}

	updated, err := s.backend.UpdateProfile(ctx, patch)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}

	store := StoreFrom(ctx)
	store.UpdateUser(ctx, editablePatch(updated))
	responses.WriteSuccess(w, ActionResult{Redirect: access.Path(access.RouteProfile), User: store.User()})
}

func (s *Server) refreshProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := StoreFrom(ctx)
	result := store.FetchProfile(ctx)
	if result.Err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Err, "refresh profile"))
		return
	}
	responses.WriteSuccess(w, RefreshResult{User: store.User(), Stale: result.Stale})
}

func (s *Server) setAccessCookie(w http.ResponseWriter, session *apiclient.Session) {
	if session == nil || session.AccessToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    session.AccessToken,
		Path:     "/",
		MaxAge:   int(session.ExpiresIn),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAccessCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// editablePatch turns the backend's answer into a patch of the fields a user
// can change, so the store mirrors whatever normalization the backend did.
func editablePatch(profile *types.UserProfile) types.UserProfilePatch {
	if profile == nil {
		return types.UserProfilePatch{}
	}
	crops := append([]string{}, profile.SubscribedCrops...)
	patch := types.UserProfilePatch{
		FirstName:       &profile.FirstName,
		LastName:        &profile.LastName,
		SubscribedCrops: &crops,
	}
	if profile.Location != nil {
		loc := *profile.Location
		patch.Location = &loc
	}
	return patch
}

func currentUser(r *http.Request) *types.UserProfile {
	if store := StoreFrom(r.Context()); store != nil {
		return store.User()
	}
	return nil
}
