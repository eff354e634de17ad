package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/command"
	"telegram-forwarder/internal/config"
	"telegram-forwarder/internal/metrics"
	"telegram-forwarder/internal/rulestore"
	"telegram-forwarder/internal/scheduler"
	"telegram-forwarder/internal/storage"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := rulestore.New(storage.NewFileBackend(filepath.Join(t.TempDir(), "config.json")))
	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg)
	sched := scheduler.NewScheduler(config.SchedulerConfig{RefreshInterval: time.Hour, SuperviseInterval: time.Hour}, store, nil)
	t.Cleanup(func() { sched.Stop() })

	r := gin.New()
	NewHandlers(command.NewProcessor(store), sched, reg).SetupRoutes(r)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRuleLifecycle(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/rules", gin.H{"name": "news", "destination": -100111})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/v1/rules/news/sources", gin.H{"sources": []string{"-100222", "-100222", "bad"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var added AddSourcesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, []int64{-100222}, added.Added)
	assert.Equal(t, []int64{-100222}, added.Duplicates)
	assert.Equal(t, []string{"bad"}, added.Invalid)

	w = doJSON(r, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rules []RuleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Equal(t, []RuleResponse{{Name: "news", Destination: -100111, Sources: []int64{-100222}}}, rules)

	w = doJSON(r, http.MethodDelete, "/api/v1/rules/news", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/rules", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRuleErrors(t *testing.T) {
	r := setupTestRouter(t)
	require.Equal(t, http.StatusCreated, doJSON(r, http.MethodPost, "/api/v1/rules", gin.H{"name": "news", "destination": 1}).Code)

	cases := []struct {
		method, path string
		body         any
		status       int
		code         string
	}{
		{http.MethodPost, "/api/v1/rules", gin.H{"name": "news", "destination": 2}, http.StatusConflict, "conflict"},
		{http.MethodPost, "/api/v1/rules", gin.H{"name": "x"}, http.StatusBadRequest, "validation_error"},
		{http.MethodPost, "/api/v1/rules", gin.H{"destination": 2}, http.StatusBadRequest, "validation_error"},
		{http.MethodPost, "/api/v1/rules/missing/sources", gin.H{"sources": []string{"1"}}, http.StatusNotFound, "not_found"},
		{http.MethodPost, "/api/v1/rules/news/sources", gin.H{"sources": []string{}}, http.StatusBadRequest, "validation_error"},
		{http.MethodDelete, "/api/v1/rules/missing", nil, http.StatusNotFound, "not_found"},
	}
	for _, c := range cases {
		w := doJSON(r, c.method, c.path, c.body)
		assert.Equal(t, c.status, w.Code, "%s %s", c.method, c.path)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, c.code, resp.Error)
		assert.Equal(t, c.status, resp.Code)
	}
}

func TestStatusAndScheduler(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 0, status.Rules)
	assert.False(t, status.LoggedIn)

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/v1/scheduler/start", nil).Code)
	assert.Equal(t, http.StatusConflict, doJSON(r, http.MethodPost, "/api/v1/scheduler/start", nil).Code)

	w = doJSON(r, http.MethodGet, "/api/v1/scheduler/status", nil)
	assert.Contains(t, w.Body.String(), `"status":"running"`)

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/v1/scheduler/run-once", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/v1/scheduler/stop", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "telegram_forwarder_rules")
}

func TestHealthCheck(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Storage)
	assert.Equal(t, "stopped", health.Details["scheduler"])
	assert.Equal(t, "unknown", health.Details["forwarder"])
}
