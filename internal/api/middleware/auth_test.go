package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudioproxy/internal/config"
	"aistudioproxy/pkg/models"
)

func authTestConfig(keys ...string) *config.Config {
	cfg := &config.Config{}
	cfg.API.Keys = keys
	return cfg
}

func invokeAuth(t *testing.T, cfg *config.Config, authorization string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	passed := false
	next := func(c echo.Context) error {
		passed = true
		return c.NoContent(http.StatusOK)
	}
	require.NoError(t, APIKeyAuth(cfg)(next)(c))
	return rec, passed
}

func TestAuthDisabledWithoutKeys(t *testing.T) {
	rec, passed := invokeAuth(t, authTestConfig(), "")

	assert.True(t, passed)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	rec, passed := invokeAuth(t, authTestConfig("sk-alpha"), "")

	assert.False(t, passed)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "authentication_failed", resp.Error.Type)
	assert.Equal(t, "API key is missing", resp.Error.Message)
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	for _, header := range []string{"sk-alpha", "Basic sk-alpha", "Bearer sk-alpha extra"} {
		rec, passed := invokeAuth(t, authTestConfig("sk-alpha"), header)

		assert.False(t, passed, header)
		assert.Equal(t, http.StatusForbidden, rec.Code, header)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Invalid authorization header format", resp.Error.Message, header)
	}
}

func TestAuthRejectsUnknownKey(t *testing.T) {
	rec, passed := invokeAuth(t, authTestConfig("sk-alpha"), "Bearer sk-beta")

	assert.False(t, passed)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid API key", resp.Error.Message)
}

func TestAuthAcceptsConfiguredKey(t *testing.T) {
	rec, passed := invokeAuth(t, authTestConfig("sk-alpha", "sk-beta"), "bearer sk-beta")

	assert.True(t, passed)
	assert.Equal(t, http.StatusOK, rec.Code)
}
