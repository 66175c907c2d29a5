package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corpalert/corpalert-backend/pkg/access"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSession struct {
	user *types.UserProfile
}

func (s *staticSession) User() *types.UserProfile {
	return s.user.Clone()
}

func resolverFor(s *staticSession) Resolver {
	return func(*http.Request) Session { return s }
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("children"))
})

var allowLists = [][]enums.Role{
	nil,
	{},
	{enums.RoleFarmer},
	{enums.RoleAgronomist},
	{enums.RoleAdmin},
	{enums.RoleFarmer, enums.RoleAgronomist},
	{enums.RoleFarmer, enums.RoleAgronomist, enums.RoleAdmin},
}

func TestDecideWithoutSessionAlwaysRedirectsToAuth(t *testing.T) {
	for _, roles := range allowLists {
		assert.Equal(t, RedirectToAuth, Decide(nil, roles), "roles %v", roles)
	}
}

func TestDecideRoleMembership(t *testing.T) {
	for _, role := range enums.AllRoles() {
		user := &types.UserProfile{ID: "1", Role: role}
		for _, roles := range allowLists {
			want := RedirectToNotFound
			if len(roles) == 0 {
				want = Render
			}
			for _, r := range roles {
				if r == role {
					want = Render
				}
			}
			assert.Equal(t, want, Decide(user, roles), "role %s roles %v", role, roles)
		}
	}
}

func TestDecideRedirectIfAuthenticated(t *testing.T) {
	assert.Equal(t, Render, DecideRedirectIfAuthenticated(nil))
	assert.Equal(t, RedirectToRoot, DecideRedirectIfAuthenticated(&types.UserProfile{ID: "1", Role: enums.RoleAdmin}))
}

func TestProtectedRedirectsAnonymousWithFrom(t *testing.T) {
	h := Protected(resolverFor(&staticSession{}), nil, enums.RoleFarmer)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/alerts?crop=maize", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth?from=%2Falerts%3Fcrop%3Dmaize", rec.Header().Get("Location"))
}

func TestProtectedRedirectsWrongRoleToNotFound(t *testing.T) {
	session := &staticSession{user: &types.UserProfile{ID: "1", Role: enums.RoleFarmer}}
	h := Protected(resolverFor(session), nil, access.RolesFor(access.RouteAdminDashboard)...)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, NotFoundPath, rec.Header().Get("Location"))
}

func TestProtectedRendersUnapprovedAgronomistOnAgronomistRoute(t *testing.T) {
	session := &staticSession{user: &types.UserProfile{ID: "1", Role: enums.RoleAgronomist, IsApproved: false}}
	h := Protected(resolverFor(session), nil, enums.RoleAgronomist)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/new", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "children", rec.Body.String())
}

func TestProtectedReactsToSessionChanges(t *testing.T) {
	session := &staticSession{}
	h := Protected(resolverFor(session), nil)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	session.user = &types.UserProfile{ID: "1", Role: enums.RoleFarmer}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	session.user = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestProtectedNilResolverTreatsAsAnonymous(t *testing.T) {
	h := Protected(func(*http.Request) Session { return nil }, nil)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestRedirectIfAuthenticated(t *testing.T) {
	session := &staticSession{}
	h := RedirectIfAuthenticated(resolverFor(session), nil)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	session.user = &types.UserProfile{ID: "1", Role: enums.RoleFarmer}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, RootPath, rec.Header().Get("Location"))
}

func TestSafeReturnPath(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/alerts?crop=maize":   "/alerts?crop=maize",
		"https://evil.example": "/",
		"//evil.example/path":  "/",
		"/\\evil.example":      "/",
		"alerts":               "/",
		"/auth":                "/",
		"/profile":             "/profile",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeReturnPath(in), "input %q", in)
	}
}
