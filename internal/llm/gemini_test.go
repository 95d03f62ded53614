package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

func testIncident() *models.Incident {
	return &models.Incident{
		ID:           models.NewID(),
		ThreatType:   models.ThreatMalware,
		Severity:     models.SeverityCritical,
		Status:       models.StatusActive,
		Description:  "Malicious process detected: suspicious.exe",
		AnomalyScore: 0.42,
		MLFlagged:    true,
		CreatedAt:    time.Now().UTC(),
	}
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		SnapshotID:   models.NewID(),
		CapturedAt:   time.Now().UTC(),
		IncidentType: models.ThreatMalware,
		SystemInfo:   models.SystemInfo{CPUPercent: 45.2, MemoryPercent: 62.1, DiskPercent: 38.0, UptimeHours: 72.5},
		Processes: []models.ProcessInfo{
			{PID: 100, Name: "low.exe", CPUPercent: 1.0},
			{PID: 200, Name: "hot.exe", CPUPercent: 88.0},
		},
		Connections:     []models.ConnectionInfo{{Status: "ESTABLISHED", RemoteAddress: "198.51.100.42:443"}},
		Indicators:      []string{"Known malicious process detected: suspicious.exe"},
		Recommendations: []string{"Isolate affected host", "Preserve memory dump"},
	}
}

func TestFallbackSummaryContainsSections(t *testing.T) {
	summary := FallbackSummary(testIncident(), testSnapshot())

	assert.Contains(t, summary, "## Incident Summary")
	assert.Contains(t, summary, "**Severity:** CRITICAL")
	assert.Contains(t, summary, "**ML Anomaly Score:** 0.42")
	assert.Contains(t, summary, "- Known malicious process detected: suspicious.exe")
	assert.Contains(t, summary, "1. Isolate affected host")
	assert.Contains(t, summary, "### Prevention Measures")
}

func TestFallbackSummaryWithoutSnapshot(t *testing.T) {
	summary := FallbackSummary(testIncident(), nil)

	assert.Contains(t, summary, "- None identified")
	assert.Contains(t, summary, "- **Active Processes:** 0")
}

func TestSummarizeUnconfiguredUsesFallback(t *testing.T) {
	c := NewGeminiClient(config.GeminiConfig{}, logger.New("error"))

	summary, err := c.SummarizeIncident(context.Background(), testIncident(), testSnapshot())

	require.NoError(t, err)
	assert.False(t, c.Configured())
	assert.Contains(t, summary, "AI-powered analysis is currently unavailable")
}

func TestSummarizeCallsGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-pro:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"## Executive Summary\nContained."}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(config.GeminiConfig{APIKey: "test-key"}, logger.New("error"))
	c.baseURL = srv.URL

	summary, err := c.SummarizeIncident(context.Background(), testIncident(), testSnapshot())

	require.NoError(t, err)
	assert.Equal(t, "## Executive Summary\nContained.", summary)
}

func TestSummarizeAPIErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeminiClient(config.GeminiConfig{APIKey: "test-key"}, logger.New("error"))
	c.baseURL = srv.URL

	summary, err := c.SummarizeIncident(context.Background(), testIncident(), testSnapshot())

	require.NoError(t, err)
	assert.Contains(t, summary, "AI-powered analysis is currently unavailable")
}

func TestPromptIncludesForensicState(t *testing.T) {
	prompt := buildSummaryPrompt(testIncident(), testSnapshot())

	assert.Contains(t, prompt, "Provide remediation in 5 bullets")
	assert.Contains(t, prompt, "Severity Level: CRITICAL")
	assert.Contains(t, prompt, "ML Flagged: Yes")
	assert.Contains(t, prompt, "Active Connections: 1")
	// processes are sorted by CPU before inclusion
	hotIdx := strings.Index(prompt, "hot.exe")
	lowIdx := strings.Index(prompt, "low.exe")
	require.Positive(t, hotIdx)
	require.Positive(t, lowIdx)
	assert.Less(t, hotIdx, lowIdx)
}
