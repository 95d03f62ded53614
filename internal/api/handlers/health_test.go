package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthRouter(storeErr error) *gin.Engine {
	h := NewHealthHandler(HealthProbes{
		Store:          func(ctx context.Context) error { return storeErr },
		ModelTrained:   func() bool { return true },
		LLMConfigured:  func() bool { return false },
		Subscribers:    func() int { return 2 },
		TelemetryAlive: func() bool { return true },
	}, testLog())
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	return r
}

func TestRootLiveness(t *testing.T) {
	w := perform(healthRouter(nil), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SENTINEL-CORE API")
	assert.Contains(t, w.Body.String(), "operational")
}

func TestHealthReportsSubsystems(t *testing.T) {
	w := perform(healthRouter(nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["database"])
	assert.Equal(t, false, body["gemini"])
	assert.Equal(t, true, body["ml_model"])
	assert.Equal(t, float64(2), body["websocket_connections"])
	assert.Equal(t, true, body["telemetry_active"])
}

func TestHealthDegradedWhenStoreDown(t *testing.T) {
	w := perform(healthRouter(assert.AnError), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
