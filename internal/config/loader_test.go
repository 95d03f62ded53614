package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5, cfg.Telemetry.IntervalSeconds)
	assert.InDelta(t, 0.75, cfg.ML.AnomalyThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.ML.Contamination, 1e-9)
	assert.False(t, cfg.DemoMode)
}

func TestLoad_LegacyEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("TELEMETRY_INTERVAL_SECONDS", "2")
	t.Setenv("ML_ANOMALY_THRESHOLD", "0.9")
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("CORS_ORIGINS", "https://soc.example.com,https://ui.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 2, cfg.Telemetry.IntervalSeconds)
	assert.InDelta(t, 0.9, cfg.ML.AnomalyThreshold, 1e-9)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, []string{"https://soc.example.com", "https://ui.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_RejectsBadThreshold(t *testing.T) {
	t.Setenv("ML_ANOMALY_THRESHOLD", "1.5")
	_, err := Load()
	assert.Error(t, err)
}

func TestMain(m *testing.M) {
	// Make sure stray CI variables do not leak into default checks.
	os.Unsetenv("PORT")
	os.Unsetenv("DEMO_MODE")
	os.Exit(m.Run())
}
