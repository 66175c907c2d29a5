package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
)

type alertBody struct {
	Title    string `json:"title" validate:"required,max=100"`
	Severity string `json:"severity" validate:"required,oneof=low medium high"`
}

func decode(t *testing.T, body string) (alertBody, error) {
	t.Helper()
	var out alertBody
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(body))
	return out, DecodeJSONBody(req, &out)
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	out, err := decode(t, `{"title":"Rust on wheat","severity":"high"}`)
	require.NoError(t, err)
	assert.Equal(t, "Rust on wheat", out.Title)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]struct {
		body string
		msg  string
	}{
		"empty":          {"", "request body is required"},
		"unknown field":  {`{"title":"x","severity":"low","admin":true}`, "invalid request body"},
		"trailing value": {`{"title":"x","severity":"low"} {}`, "single JSON object"},
		"too large":      {`{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "too large"},
		"bad enum":       {`{"title":"x","severity":"extreme"}`, "validation failed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, tc.body)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.Contains(t, pkgerrors.As(err).Message(), tc.msg)
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	_, err := decode(t, `{"title":"","severity":"extreme"}`)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["title"])
	assert.Equal(t, "must be one of: low medium high", details["severity"])
}
