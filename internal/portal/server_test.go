package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpalert/corpalert-backend/api/middleware"
	"github.com/corpalert/corpalert-backend/pkg/apiclient"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/corpalert/corpalert-backend/pkg/usersession"
)

type fakeBackend struct {
	mu         sync.Mutex
	profiles   map[string]*types.UserProfile
	fetchErr   error
	logoutErr  error
	logoutSeen []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{profiles: map[string]*types.UserProfile{
		"farmer-token": {ID: "u-1", FirstName: "Wanjiru", LastName: "K", Email: "farmer@example.com", Role: enums.RoleFarmer, IsApproved: true, SubscribedCrops: []string{"maize"}},
		"admin-token":  {ID: "u-9", FirstName: "Ada", LastName: "Min", Email: "admin@example.com", Role: enums.RoleAdmin, IsApproved: true},
	}}
}

func (b *fakeBackend) Login(_ context.Context, creds apiclient.Credentials) (*apiclient.Session, error) {
	switch creds.Email {
	case "farmer@example.com":
		return &apiclient.Session{AccessToken: "farmer-token", ExpiresIn: 3600}, nil
	case "admin@example.com":
		return &apiclient.Session{AccessToken: "admin-token", ExpiresIn: 3600}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func (b *fakeBackend) Register(_ context.Context, reg apiclient.Registration) (*apiclient.Session, error) {
	profile := &types.UserProfile{ID: "u-2", FirstName: reg.FirstName, LastName: reg.LastName, Email: reg.Email, Role: enums.Role(reg.Role)}
	b.mu.Lock()
	b.profiles["new-token"] = profile
	b.mu.Unlock()
	return &apiclient.Session{AccessToken: "new-token", ExpiresIn: 3600, User: profile.Clone()}, nil
}

func (b *fakeBackend) Logout(ctx context.Context) error {
	b.mu.Lock()
	b.logoutSeen = append(b.logoutSeen, apiclient.TokenFrom(ctx))
	b.mu.Unlock()
	return b.logoutErr
}

func (b *fakeBackend) UpdateProfile(ctx context.Context, patch types.UserProfilePatch) (*types.UserProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := apiclient.TokenFrom(ctx)
	profile, ok := b.profiles[token]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unauthorized")
	}
	updated := patch.ApplyTo(profile)
	b.profiles[token] = updated
	return updated.Clone(), nil
}

func (b *fakeBackend) FetchProfile(ctx context.Context) (*types.UserProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	profile, ok := b.profiles[apiclient.TokenFrom(ctx)]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unauthorized")
	}
	return profile.Clone(), nil
}

type harness struct {
	backend *fakeBackend
	storage *usersession.MemoryStorage
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := newFakeBackend()
	storage := usersession.NewMemoryStorage()
	return &harness{backend: backend, storage: storage, handler: buildHandler(t, backend, storage)}
}

func buildHandler(t *testing.T, backend *fakeBackend, storage usersession.Storage) http.Handler {
	t.Helper()
	registry := usersession.NewRegistry(usersession.RegistryOptions{
		Storage:  storage,
		Fetcher:  backend,
		Ordering: usersession.OrderLatestDispatched,
	})
	srv, err := NewServer(ServerParams{Registry: registry, Backend: backend, Config: config.PortalConfig{}})
	require.NoError(t, err)
	return srv.Routes()
}

// browser replays the cookies a real browser would hold.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (h *harness) tab(t *testing.T) *browser {
	return &browser{t: t, handler: h.handler, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, path, body string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types.SuccessEnvelope{Data: out}))
}

func TestGuardedPageRedirectsToAuthWithOrigin(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)

	rec := tab.do(http.MethodGet, "/alerts?crop=maize", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth?from=%2Falerts%3Fcrop%3Dmaize", rec.Header().Get("Location"))
	assert.NotNil(t, tab.cookies[TabCookie], "tab cookie issued on first visit")

	rec = tab.do(http.MethodGet, "/auth?from=%2Falerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view PageView
	decodeData(t, rec, &view)
	assert.Equal(t, "/alerts", view.From)
	assert.Nil(t, view.User)
}

func TestLoginFetchesProfileAndGatesByRole(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)

	rec := tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret","from":"/alerts"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ActionResult
	decodeData(t, rec, &result)
	assert.Equal(t, "/alerts", result.Redirect)
	require.NotNil(t, result.User)
	assert.Equal(t, enums.RoleFarmer, result.User.Role)
	require.NotNil(t, tab.cookies[middleware.AccessTokenCookie])
	assert.True(t, tab.cookies[middleware.AccessTokenCookie].HttpOnly)

	assert.Equal(t, http.StatusOK, tab.do(http.MethodGet, "/alerts", "").Code)
	assert.Equal(t, http.StatusOK, tab.do(http.MethodGet, "/profile", "").Code)

	rec = tab.do(http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/not-found", rec.Header().Get("Location"))

	rec = tab.do(http.MethodGet, "/alerts/new", "")
	assert.Equal(t, "/not-found", rec.Header().Get("Location"))

	rec = tab.do(http.MethodGet, "/auth", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginRejectsOffsiteReturnPath(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)
	rec := tab.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"secret","from":"//evil.example"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result ActionResult
	decodeData(t, rec, &result)
	assert.Equal(t, "/", result.Redirect)
}

func TestLoginWithFailedProfileFetchLeavesBrowserSignedOut(t *testing.T) {
	h := newHarness(t)
	h.backend.fetchErr = errors.New("connection refused")
	tab := h.tab(t)

	rec := tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, tab.cookies[middleware.AccessTokenCookie], "no backend token kept for a signed-out tab")
	assert.Equal(t, http.StatusFound, tab.do(http.MethodGet, "/profile", "").Code)
}

func TestLoginFailureDropsEarlierAccessCookie(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)
	tab.cookies[middleware.AccessTokenCookie] = &http.Cookie{Name: middleware.AccessTokenCookie, Value: "old-token"}
	h.backend.fetchErr = errors.New("connection refused")

	rec := tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, tab.cookies[middleware.AccessTokenCookie])
}

func TestAnonymousVisitsDoNotAccumulateStores(t *testing.T) {
	backend := newFakeBackend()
	registry := usersession.NewRegistry(usersession.RegistryOptions{Fetcher: backend})
	srv, err := NewServer(ServerParams{Registry: registry, Backend: backend})
	require.NoError(t, err)
	handler := srv.Routes()

	for range 50 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Zero(t, registry.Len())

	tab := &browser{t: t, handler: handler, cookies: map[string]*http.Cookie{}}
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`).Code)
	assert.Equal(t, 1, registry.Len())
}

func TestLogoutOnOnePortalSignsOutTheOther(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`).Code)

	first := h.handler
	second := buildHandler(t, h.backend, h.storage)
	tab.handler = second
	require.Equal(t, http.StatusOK, tab.do(http.MethodGet, "/profile", "").Code)

	tab.handler = first
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/logout", "").Code)

	tab.handler = second
	rec := tab.do(http.MethodGet, "/profile", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth?from=%2Fprofile", rec.Header().Get("Location"))
}

func TestLoginWithBadCredentials(t *testing.T) {
	h := newHarness(t)
	rec := h.tab(t).do(http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterStoresReturnedProfile(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)

	rec := tab.do(http.MethodPost, "/auth/register", `{"email":"agro@example.com","password":"longenough","first_name":"Otieno","last_name":"O","role":"agronomist"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = tab.do(http.MethodGet, "/alerts/new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view PageView
	decodeData(t, rec, &view)
	require.NotNil(t, view.User)
	assert.Equal(t, "Otieno", view.User.FirstName)
	assert.False(t, view.CanCreateAlert, "unapproved agronomist cannot publish")
}

func TestLogoutClearsSessionEvenWhenBackendFails(t *testing.T) {
	h := newHarness(t)
	h.backend.logoutErr = errors.New("backend down")
	tab := h.tab(t)
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`).Code)
	tabID := tab.cookies[TabCookie].Value

	rec := tab.do(http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"farmer-token"}, h.backend.logoutSeen)
	assert.Nil(t, tab.cookies[middleware.AccessTokenCookie])
	assert.False(t, h.storage.Has(usersession.KeyFor(tabID)))

	rec = tab.do(http.MethodGet, "/profile", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth?from=%2Fprofile", rec.Header().Get("Location"))
}

func TestProfileUpdateMergesIntoStore(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`).Code)

	rec := tab.do(http.MethodPost, "/profile", `{"first_name":"Jane"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ActionResult
	decodeData(t, rec, &result)
	require.NotNil(t, result.User)
	assert.Equal(t, "Jane", result.User.FirstName)
	assert.Equal(t, "K", result.User.LastName)
	assert.Equal(t, []string{"maize"}, result.User.SubscribedCrops)
	assert.Equal(t, "farmer@example.com", result.User.Email)

	rec = tab.do(http.MethodPost, "/profile", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileRefreshReportsFailure(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"secret"}`).Code)

	h.backend.mu.Lock()
	h.backend.profiles["farmer-token"].LastName = "Kamau"
	h.backend.mu.Unlock()

	rec := tab.do(http.MethodPost, "/profile/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed RefreshResult
	decodeData(t, rec, &refreshed)
	assert.Equal(t, "Kamau", refreshed.User.LastName)

	h.backend.fetchErr = errors.New("timeout")
	rec = tab.do(http.MethodPost, "/profile/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, http.StatusOK, tab.do(http.MethodGet, "/profile", "").Code, "failed refresh keeps the session")
}

func TestBrowsersHoldIndependentSessions(t *testing.T) {
	h := newHarness(t)
	first := h.tab(t)
	second := h.tab(t)

	require.Equal(t, http.StatusOK, first.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"secret"}`).Code)
	second.do(http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, first.do(http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusFound, second.do(http.MethodGet, "/admin", "").Code)
}

func TestSessionSurvivesPortalRestart(t *testing.T) {
	h := newHarness(t)
	tab := h.tab(t)
	require.Equal(t, http.StatusOK, tab.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"secret"}`).Code)

	tab.handler = buildHandler(t, h.backend, h.storage)
	rec := tab.do(http.MethodGet, "/admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view PageView
	decodeData(t, rec, &view)
	require.NotNil(t, view.User)
	assert.Equal(t, "u-9", view.User.ID)
	assert.Len(t, view.Menu, 3)
}

func TestUnknownPathRendersNotFoundView(t *testing.T) {
	h := newHarness(t)
	rec := h.tab(t).do(http.MethodGet, "/nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var view PageView
	decodeData(t, rec, &view)
	assert.Equal(t, "not-found", view.Page)
}
