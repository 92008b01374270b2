package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudioproxy/internal/config"
	"aistudioproxy/internal/proxy"
	"aistudioproxy/pkg/models"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Performance.MaxConcurrentRequests = 2
	cfg.Models.Supported = []string{"Gemini 1.5 Pro", "Gemini 1.5 Flash"}
	return cfg
}

func postJSON(t *testing.T, handler echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "test-req")
	require.NoError(t, handler(c))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChatCompletionsRejectsMalformedBody(t *testing.T) {
	cfg := testConfig()
	h := ChatCompletionsHandler(cfg, proxy.NewRequestHandler(cfg, nil, nil))

	rec := postJSON(t, h, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeError(t, rec).Error.Type)
}

func TestChatCompletionsRejectsMissingFields(t *testing.T) {
	cfg := testConfig()
	h := ChatCompletionsHandler(cfg, proxy.NewRequestHandler(cfg, nil, nil))

	rec := postJSON(t, h, `{"model": "Gemini 1.5 Pro", "messages": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeError(t, rec).Error.Type)
}

func TestChatCompletionsRejectsUnsupportedModel(t *testing.T) {
	cfg := testConfig()
	h := ChatCompletionsHandler(cfg, proxy.NewRequestHandler(cfg, nil, nil))

	rec := postJSON(t, h, `{"model": "gpt-4", "messages": [{"role": "user", "content": "hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "model_not_found", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "gpt-4")
	assert.Equal(t, "test-req", resp.RequestID)
}

func TestChatCompletionsBrowserDown(t *testing.T) {
	cfg := testConfig()
	h := ChatCompletionsHandler(cfg, proxy.NewRequestHandler(cfg, nil, nil))

	rec := postJSON(t, h, `{"model": "Gemini 1.5 Pro", "messages": [{"role": "user", "content": "hi"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service_unavailable", decodeError(t, rec).Error.Type)
}

func TestModelsListsConfiguredModels(t *testing.T) {
	cfg := testConfig()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, ModelsHandler(cfg)(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var list models.ModelList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "Gemini 1.5 Pro", list.Data[0].ID)
	assert.Equal(t, "model", list.Data[0].Object)
	assert.Equal(t, "google", list.Data[0].OwnedBy)
}

func TestLivenessAlwaysOK(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, LivenessHandler(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
}

func TestHealthDegradedWithoutBrowser(t *testing.T) {
	cfg := testConfig()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, HealthHandler(nil, proxy.NewRequestHandler(cfg, nil, nil))(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "not_running", resp.Checks["browser"])
}

func TestStatusReportsRequestTable(t *testing.T) {
	cfg := testConfig()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, StatusHandler(nil, proxy.NewRequestHandler(cfg, nil, nil))(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "operational", resp.Status)
	assert.Equal(t, "0", resp.Checks["active_requests"])
}

func TestRequestRecordNotFoundWithoutArchive(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status/requests/chatcmpl-abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("chatcmpl-abc")
	require.NoError(t, RequestRecordHandler(nil)(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "service_unavailable", resp.Error.Type)
}

func TestReadinessStandaloneWithoutManager(t *testing.T) {
	cfg := testConfig()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, ReadinessHandler(proxy.NewRequestHandler(cfg, nil, nil), nil)(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
}

func TestReadinessFailsWithoutHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, ReadinessHandler(nil, nil)(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unavailable", resp.Checks["browser"])
}
