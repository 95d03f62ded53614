package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Severity is the ordinal event/incident severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison: critical > high > medium > low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Score maps severity to the feature-space value used by the anomaly model.
func (s Severity) Score() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	default:
		return 0.25
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ThreatType tags a materialized detection.
type ThreatType string

const (
	ThreatBruteforce       ThreatType = "bruteforce"
	ThreatPortScan         ThreatType = "port_scan"
	ThreatMalware          ThreatType = "malware"
	ThreatDDoS             ThreatType = "ddos"
	ThreatSQLInjection     ThreatType = "sql_injection"
	ThreatExfiltration     ThreatType = "exfiltration"
	ThreatPrivEscalation   ThreatType = "privilege_escalation"
	ThreatMLAnomaly        ThreatType = "ml_anomaly"
	ThreatMaliciousTraffic ThreatType = "malicious_traffic"
)

// Incident status values.
const (
	StatusActive        = "active"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
)

// Event kinds.
const (
	EventOS      = "os_event"
	EventLogin   = "login_event"
	EventProcess = "process_event"
	EventNetwork = "network_event"
)

// Details is the open per-kind payload of an event. Keys are producer-defined;
// the typed accessors tolerate the scalar widening JSON round-trips introduce.
type Details map[string]interface{}

func (d Details) String(key string) string {
	if v, ok := d[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (d Details) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return 0
}

func (d Details) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}

func (d Details) Bool(key string) bool {
	if v, ok := d[key].(bool); ok {
		return v
	}
	return false
}

func (d Details) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Flatten renders the details as a stable string for entropy and pattern
// scanning. Marshal order is Go's sorted-key JSON order, so the rendering is
// deterministic for a given mapping.
func (d Details) Flatten() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(d))
	}
	return string(b)
}

// MLContext carries the per-event features pre-computed by the deriver so
// scoring never re-queries the store.
type MLContext struct {
	EventFrequency int     `json:"event_frequency"`
	TypeRarity     float64 `json:"type_rarity"`
	IPRarity       float64 `json:"ip_rarity"`
	PayloadEntropy float64 `json:"payload_entropy"`
}

// Event is a single immutable telemetry observation, enriched post-ingest
// with an anomaly score and feature context.
type Event struct {
	ID           string     `json:"id" db:"id"`
	Timestamp    time.Time  `json:"timestamp" db:"timestamp"`
	Type         string     `json:"type" db:"type"`
	SourceIP     string     `json:"source_ip" db:"source_ip"`
	Severity     Severity   `json:"severity" db:"severity"`
	Details      Details    `json:"details" db:"-"`
	AnomalyScore float64    `json:"anomaly_score" db:"anomaly_score"`
	MLFlagged    bool       `json:"ml_flagged" db:"ml_flagged"`
	MLContext    *MLContext `json:"ml_context,omitempty" db:"-"`
}

// Incident is a materialized detection bound to one triggering event.
type Incident struct {
	ID                     string     `json:"id" db:"id"`
	ThreatType             ThreatType `json:"threat_type" db:"threat_type"`
	Status                 string     `json:"status" db:"status"`
	Severity               Severity   `json:"severity" db:"severity"`
	Description            string     `json:"description" db:"description"`
	Confidence             float64    `json:"confidence" db:"confidence"`
	Indicators             []string   `json:"indicators" db:"-"`
	EventID                string     `json:"event_id" db:"event_id"`
	SourceIP               string     `json:"source_ip" db:"source_ip"`
	AnomalyScore           float64    `json:"anomaly_score" db:"anomaly_score"`
	MLFlagged              bool       `json:"ml_flagged" db:"ml_flagged"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy             string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes        string     `json:"resolution_notes,omitempty" db:"resolution_notes"`
	InvestigatingBy        string     `json:"investigating_by,omitempty" db:"investigating_by"`
	InvestigationStartedAt *time.Time `json:"investigation_started_at,omitempty" db:"investigation_started_at"`
}

// ForensicReport is the incident-scoped snapshot captured at detection time.
type ForensicReport struct {
	ID            string    `json:"id" db:"id"`
	IncidentID    string    `json:"incident_id" db:"incident_id"`
	Snapshot      *Snapshot `json:"forensic_data" db:"-"`
	GeminiSummary string    `json:"gemini_summary,omitempty" db:"gemini_summary"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Snapshot is the forensic capture payload. All fields survive JSON
// serialization as plain nested mappings.
type Snapshot struct {
	SnapshotID      string           `json:"snapshot_id"`
	CapturedAt      time.Time        `json:"captured_at"`
	IncidentType    ThreatType       `json:"incident_type"`
	SystemInfo      SystemInfo       `json:"system_info"`
	Processes       []ProcessInfo    `json:"processes"`
	Connections     []ConnectionInfo `json:"connections"`
	PacketData      []Packet         `json:"packet_data"`
	Indicators      []string         `json:"suspicious_indicators"`
	Recommendations []string         `json:"recommended_actions"`
	TriggerEvent    TriggerEvent     `json:"trigger_event"`
}

type SystemInfo struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent"`
	MemoryTotalGB     float64 `json:"memory_total_gb"`
	MemoryAvailableGB float64 `json:"memory_available_gb"`
	DiskPercent       float64 `json:"disk_percent"`
	DiskTotalGB       float64 `json:"disk_total_gb"`
	BootTime          string  `json:"boot_time"`
	UptimeHours       float64 `json:"uptime_hours"`
}

type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Username      string  `json:"username"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Status        string  `json:"status"`
	Created       string  `json:"created,omitempty"`
}

type ConnectionInfo struct {
	Family        string `json:"family"`
	Type          string `json:"type"`
	LocalAddress  string `json:"local_address,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`
	Status        string `json:"status"`
	PID           int32  `json:"pid,omitempty"`
	ProcessName   string `json:"process_name,omitempty"`
}

type Packet struct {
	Sequence        int    `json:"sequence"`
	Timestamp       string `json:"timestamp"`
	SourceIP        string `json:"source_ip"`
	SourcePort      int    `json:"source_port"`
	DestinationIP   string `json:"destination_ip"`
	DestinationPort int    `json:"destination_port"`
	Protocol        string `json:"protocol"`
	Flags           string `json:"flags"`
	SizeBytes       int    `json:"size_bytes"`
	TTL             int    `json:"ttl"`
	PayloadPreview  string `json:"payload_preview"`
}

type TriggerEvent struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	SourceIP string   `json:"source_ip"`
	Severity Severity `json:"severity"`
}

// Detection is a rule engine or model outcome for a single event.
type Detection struct {
	IsThreat    bool       `json:"is_threat"`
	ThreatType  ThreatType `json:"threat_type,omitempty"`
	Severity    Severity   `json:"severity,omitempty"`
	Description string     `json:"description"`
	Confidence  float64    `json:"confidence"`
	Indicators  []string   `json:"indicators"`
}

// NoThreat is the negative detection outcome.
func NoThreat() Detection {
	return Detection{Description: "No threats detected"}
}

// Stats are the dashboard counters returned by the store gateway.
type Stats struct {
	TotalEvents     int64 `json:"total_events" db:"total_events"`
	TotalIncidents  int64 `json:"total_incidents" db:"total_incidents"`
	ActiveIncidents int64 `json:"active_incidents" db:"active_incidents"`
	MLFlagged       int64 `json:"ml_flagged" db:"ml_flagged"`
}

// NewID derives the 16-hex-character opaque identifier used for events,
// incidents and reports: a truncated digest over timestamp plus nonce.
func NewID() string {
	sum := sha256.Sum256([]byte(time.Now().UTC().Format(time.RFC3339Nano) + uuid.NewString()))
	return hex.EncodeToString(sum[:])[:16]
}
