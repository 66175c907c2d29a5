// Package apiclient calls the CorpAlert REST API on behalf of the portal.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

const (
	defaultTimeout            = 10 * time.Second
	errorBodyReadLimit  int64 = 4096
	profilePath               = "/api/user/profile"
	loginPath                 = "/api/auth/login"
	registerPath              = "/api/auth/register"
	logoutPath                = "/api/auth/logout"
	authorizationHeader       = "Authorization"
)

var errBaseURLRequired = errors.New("api base url is required")

type (
	tokenKey     struct{}
	requestIDKey struct{}
)

// WithToken attaches the caller's access token to ctx for outgoing requests.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the access token attached with WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// WithRequestID forwards the inbound request id so API logs correlate with the portal's.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Client wraps the backend endpoints the portal needs.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up body.
type Registration struct {
	Email           string                `json:"email"`
	Password        string                `json:"password"`
	FirstName       string                `json:"first_name"`
	LastName        string                `json:"last_name"`
	Role            string                `json:"role"`
	SubscribedCrops []string              `json:"subscribed_crops,omitempty"`
	Location        *types.GeographyPoint `json:"location,omitempty"`
}

// Session is what login and register return.
type Session struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	User         *types.UserProfile `json:"user"`
}

// FetchProfile loads the signed-in user's profile using the token in ctx.
func (c *Client) FetchProfile(ctx context.Context) (*types.UserProfile, error) {
	var profile *types.UserProfile
	if err := c.do(ctx, http.MethodGet, profilePath, nil, &profile); err != nil {
		return nil, err
	}
	return requireProfile(profile)
}

// UpdateProfile sends the patch and returns the profile the backend now holds.
func (c *Client) UpdateProfile(ctx context.Context, patch types.UserProfilePatch) (*types.UserProfile, error) {
	var profile *types.UserProfile
	if err := c.do(ctx, http.MethodPut, profilePath, patch, &profile); err != nil {
		return nil, err
	}
	return requireProfile(profile)
}

// requireProfile rejects a 2xx answer whose data is null, missing or has no id.
func requireProfile(profile *types.UserProfile) (*types.UserProfile, error) {
	if profile == nil || profile.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "profile response carried no profile")
	}
	return profile, nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, loginPath, creds, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, registerPath, reg, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout revokes the backend session behind the token in ctx.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, logoutPath, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "api client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set(authorizationHeader, "Bearer "+token)
	}
	if id, _ := ctx.Value(requestIDKey{}).(string); id != "" {
		req.Header.Set(types.RequestIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}

	envelope := types.SuccessEnvelope{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

// decodeError maps a non-2xx response onto a typed error, keeping the backend's message.
func decodeError(resp *http.Response) error {
	code := pkgerrors.CodeForStatus(resp.StatusCode)
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return pkgerrors.New(code, envelope.Error.Message).WithDetails(envelope.Error.Details)
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return pkgerrors.Wrap(code, fmt.Errorf("status %d: %s", resp.StatusCode, msg), "api request failed")
}
