package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const (
	defaultModel   = "gemini-pro"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Summarizer produces an incident-response narrative for an incident plus its
// forensic snapshot.
type Summarizer interface {
	SummarizeIncident(ctx context.Context, incident *models.Incident, snapshot *models.Snapshot) (string, error)
}

// GeminiClient calls the Gemini generateContent REST API. Without an API key,
// or on any API failure, it degrades to a deterministic local summary.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewGeminiClient(cfg config.GeminiConfig, log logger.Logger) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// Configured reports whether an API key is present.
func (c *GeminiClient) Configured() bool { return c.apiKey != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

// SummarizeIncident returns the model's narrative, or the fallback summary
// when the API is unconfigured or fails. The fallback path never errors.
func (c *GeminiClient) SummarizeIncident(ctx context.Context, incident *models.Incident, snapshot *models.Snapshot) (string, error) {
	if !c.Configured() {
		return FallbackSummary(incident, snapshot), nil
	}

	text, err := c.generate(ctx, buildSummaryPrompt(incident, snapshot))
	if err != nil {
		c.logger.Warn("summarization API call failed, using local summary",
			"incident_id", incident.ID, "error", err)
		return FallbackSummary(incident, snapshot), nil
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.2,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 2048,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generation API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generation API returned no candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func buildSummaryPrompt(incident *models.Incident, snapshot *models.Snapshot) string {
	var b strings.Builder

	b.WriteString("You are a Senior SOC (Security Operations Center) Analyst.\n")
	b.WriteString("Summarize this forensic snapshot for Incident Response (IR) analysis.\n")
	b.WriteString("Provide remediation in 5 bullets.\n\n")

	fmt.Fprintf(&b, "=== INCIDENT DETAILS ===\n")
	fmt.Fprintf(&b, "Incident Type: %s\n", incident.ThreatType)
	fmt.Fprintf(&b, "Severity Level: %s\n", strings.ToUpper(string(incident.Severity)))
	fmt.Fprintf(&b, "Description: %s\n", incident.Description)
	fmt.Fprintf(&b, "Detection Time: %s\n", incident.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Status: %s\n", incident.Status)
	fmt.Fprintf(&b, "ML Anomaly Score: %.2f\n", incident.AnomalyScore)
	fmt.Fprintf(&b, "ML Flagged: %s\n\n", yesNo(incident.MLFlagged))

	if snapshot != nil {
		si := snapshot.SystemInfo
		fmt.Fprintf(&b, "=== SYSTEM STATE AT CAPTURE ===\n")
		fmt.Fprintf(&b, "CPU Usage: %.1f%%\n", si.CPUPercent)
		fmt.Fprintf(&b, "Memory Usage: %.1f%%\n", si.MemoryPercent)
		fmt.Fprintf(&b, "Disk Usage: %.1f%%\n", si.DiskPercent)
		fmt.Fprintf(&b, "System Uptime: %.1f hours\n\n", si.UptimeHours)

		fmt.Fprintf(&b, "=== TOP PROCESSES (by CPU) ===\n%s\n\n", jsonBlock(topProcesses(snapshot.Processes, 5)))

		fmt.Fprintf(&b, "=== NETWORK CONNECTIONS ===\n")
		fmt.Fprintf(&b, "Active Connections: %d\n", len(snapshot.Connections))
		fmt.Fprintf(&b, "%s\n\n", jsonBlock(limitConns(snapshot.Connections, 5)))

		fmt.Fprintf(&b, "=== PACKET CAPTURE SUMMARY ===\n%s\n\n", jsonBlock(limitPackets(snapshot.PacketData, 3)))

		fmt.Fprintf(&b, "=== INDICATORS OF COMPROMISE (IOCs) ===\n%s\n\n", bulletList(snapshot.Indicators, "None identified"))
	}

	b.WriteString(`=== REQUIRED OUTPUT ===
Please provide a structured analysis with:

1. **Executive Summary** (2-3 sentences for management briefing)

2. **Technical Analysis** (What happened, attack vector, affected components)

3. **Impact Assessment** (What systems/data may be compromised, business impact)

4. **Remediation Recommendations** (Exactly 5 specific, actionable bullet points)

5. **Prevention Measures** (How to prevent this type of incident in the future)

Format your response in clear markdown with the headers above.
Be specific and actionable. Avoid generic advice.
`)
	return b.String()
}

// FallbackSummary builds the deterministic local narrative used when no
// external model is reachable.
func FallbackSummary(incident *models.Incident, snapshot *models.Snapshot) string {
	var b strings.Builder

	b.WriteString("## Incident Summary\n\n")
	fmt.Fprintf(&b, "**Type:** %s\n", incident.ThreatType)
	fmt.Fprintf(&b, "**Severity:** %s\n", strings.ToUpper(string(incident.Severity)))
	fmt.Fprintf(&b, "**Status:** %s\n", incident.Status)
	fmt.Fprintf(&b, "**ML Anomaly Score:** %.2f\n\n", incident.AnomalyScore)

	b.WriteString("### Executive Summary\n")
	fmt.Fprintf(&b, "A %s severity %s incident has been detected and requires immediate attention. "+
		"The automated forensic capture has collected system state data for analysis.\n\n",
		incident.Severity, incident.ThreatType)

	b.WriteString("### Technical Analysis\n")
	desc := incident.Description
	if desc == "" {
		desc = "Incident detected by automated monitoring system."
	}
	b.WriteString(desc + "\n\n")

	var indicators, recommendations []string
	var processCount, connCount int
	var si models.SystemInfo
	if snapshot != nil {
		indicators = snapshot.Indicators
		recommendations = snapshot.Recommendations
		processCount = len(snapshot.Processes)
		connCount = len(snapshot.Connections)
		si = snapshot.SystemInfo
	}

	b.WriteString("### Indicators of Compromise\n")
	b.WriteString(bulletList(indicators, "- None identified") + "\n\n")

	b.WriteString("### System State at Detection\n")
	fmt.Fprintf(&b, "- **CPU:** %.1f%%\n", si.CPUPercent)
	fmt.Fprintf(&b, "- **Memory:** %.1f%%\n", si.MemoryPercent)
	fmt.Fprintf(&b, "- **Disk:** %.1f%%\n", si.DiskPercent)
	fmt.Fprintf(&b, "- **Active Processes:** %d\n", processCount)
	fmt.Fprintf(&b, "- **Network Connections:** %d\n\n", connCount)

	b.WriteString("### Remediation Recommendations\n")
	if len(recommendations) == 0 {
		b.WriteString("1. Follow standard incident response procedures\n")
	} else {
		if len(recommendations) > 5 {
			recommendations = recommendations[:5]
		}
		for i, r := range recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}

	b.WriteString(`
### Prevention Measures
1. Review and update detection rules
2. Implement additional monitoring for this attack type
3. Conduct security awareness training
4. Review access controls and permissions
5. Update incident response playbook

---
*Note: This is an automated summary. AI-powered analysis is currently unavailable.*
`)
	return b.String()
}

func topProcesses(procs []models.ProcessInfo, n int) []models.ProcessInfo {
	out := make([]models.ProcessInfo, len(procs))
	copy(out, procs)
	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func limitConns(conns []models.ConnectionInfo, n int) []models.ConnectionInfo {
	if len(conns) > n {
		return conns[:n]
	}
	return conns
}

func limitPackets(packets []models.Packet, n int) []models.Packet {
	if len(packets) > n {
		return packets[:n]
	}
	return packets
}

func jsonBlock(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "unavailable"
	}
	return string(data)
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
