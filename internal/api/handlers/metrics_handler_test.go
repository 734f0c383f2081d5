package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/admissions/services/pipeline/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func healthRouter(m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := &MetricsHandler{metrics: m}
	router.GET("/healthz", handler.HandleGetHealthCheck)
	return router
}

func TestHealthCheckReportsComponents(t *testing.T) {
	m := metrics.NewMetrics()
	m.SetHealth("database", true)
	m.SetHealth("cache", true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	healthRouter(m).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status  bool            `json:"status"`
		Details map[string]bool `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Status)
	require.Len(t, body.Details, 2)
	require.True(t, body.Details["database"])
}

func TestHealthCheckFailsOnUnhealthyComponent(t *testing.T) {
	m := metrics.NewMetrics()
	m.SetHealth("database", true)
	m.SetHealth("search", false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	healthRouter(m).ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status  bool            `json:"status"`
		Details map[string]bool `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Status)
	require.False(t, body.Details["search"])
}
