package response

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const actionLogLimit = 500

// DeviceStore is the persistence slice the engine needs for quarantine.
type DeviceStore interface {
	QuarantineDevice(ctx context.Context, ip, reason string) error
	AppendAudit(ctx context.Context, actor, action, target, detail string) error
}

// Broadcaster pushes escalation alerts to live subscribers.
type Broadcaster interface {
	Broadcast(messageType string, data interface{})
}

// ActionResult is the structured outcome of one response action.
type ActionResult struct {
	Action     string `json:"action"`
	Status     string `json:"status"`
	Target     string `json:"target,omitempty"`
	IncidentID string `json:"incident_id,omitempty"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// LedgerEntry groups the actions executed for one incident.
type LedgerEntry struct {
	IncidentID string         `json:"incident_id"`
	Actions    []ActionResult `json:"actions"`
	Timestamp  string         `json:"timestamp"`
}

// IsolationRecord tracks a process marked for isolation.
type IsolationRecord struct {
	PID         int32  `json:"pid"`
	ProcessName string `json:"process_name,omitempty"`
	IncidentID  string `json:"incident_id"`
	IsolatedAt  string `json:"isolated_at"`
	Reason      string `json:"reason"`
}

// QuarantineRecord tracks a quarantined device.
type QuarantineRecord struct {
	DeviceID      string `json:"device_id"`
	SourceIP      string `json:"source_ip"`
	IncidentID    string `json:"incident_id"`
	QuarantinedAt string `json:"quarantined_at"`
}

// Engine executes advisory containment actions for incidents. Actions are
// recorded in in-memory ledgers; nothing is ever actually terminated.
type Engine struct {
	mu                sync.Mutex
	actionLog         []LedgerEntry
	isolatedProcesses map[int32]IsolationRecord
	quarantined       map[string]QuarantineRecord
	revokedSessions   []string
	escalated         []string

	store  DeviceStore
	hub    Broadcaster
	email  config.EmailConfig
	logger logger.Logger
}

func NewEngine(store DeviceStore, hub Broadcaster, email config.EmailConfig, log logger.Logger) *Engine {
	return &Engine{
		isolatedProcesses: make(map[int32]IsolationRecord),
		quarantined:       make(map[string]QuarantineRecord),
		store:             store,
		hub:               hub,
		email:             email,
		logger:            log,
	}
}

// ExecuteResponse fans out the automated actions for an incident: critical
// incidents always escalate and alert; threat-kind branches add containment.
func (e *Engine) ExecuteResponse(ctx context.Context, incident *models.Incident, event *models.Event) []ActionResult {
	var actions []ActionResult

	if incident.Severity == models.SeverityCritical {
		actions = append(actions,
			e.EscalateNotification(incident.ID, incident.Severity, incident.ThreatType),
			e.SendAlertEmail(incident),
		)
	}

	switch incident.ThreatType {
	case models.ThreatMalware:
		if event != nil && event.Details.Has("pid") {
			actions = append(actions, e.IsolateProcess(ctx, int32(event.Details.Int("pid")), incident.ID, "Malware detected"))
		}
	case models.ThreatBruteforce:
		if incident.SourceIP != "" {
			actions = append(actions, e.QuarantineDevice(ctx, "device_"+incident.SourceIP, incident.SourceIP, incident.ID))
		}
	case models.ThreatPrivEscalation:
		actions = append(actions, e.RevokeUserSession(ctx, escalatedUser(event), incident.ID))
	}

	e.logActions(incident.ID, actions)
	return actions
}

// escalatedUser resolves whose sessions to revoke: an explicit username
// field, or the source account of a "from -> to" role change.
func escalatedUser(event *models.Event) string {
	if event == nil {
		return "unknown"
	}
	if u := event.Details.String("username"); u != "" {
		return u
	}
	if u := event.Details.String("user"); u != "" {
		return u
	}
	if change := event.Details.String("user_change"); strings.Contains(change, "->") {
		if from := strings.TrimSpace(strings.SplitN(change, "->", 2)[0]); from != "" {
			return from
		}
	}
	return "unknown"
}

// IsolateProcess marks a process for isolation. The process is looked up for
// context but never terminated.
func (e *Engine) IsolateProcess(ctx context.Context, pid int32, incidentID, reason string) ActionResult {
	result := ActionResult{
		Action:     "isolate_process",
		Status:     "success",
		Target:     fmt.Sprintf("%d", pid),
		IncidentID: incidentID,
		Timestamp:  now(),
	}

	record := IsolationRecord{
		PID:        pid,
		IncidentID: incidentID,
		IsolatedAt: result.Timestamp,
		Reason:     reason,
	}

	if proc, err := process.NewProcess(pid); err == nil {
		if name, err := proc.Name(); err == nil {
			record.ProcessName = name
			result.Message = fmt.Sprintf("Process %d (%s) marked for isolation", pid, name)
		} else {
			result.Message = fmt.Sprintf("Process %d marked for isolation", pid)
		}
	} else {
		result.Message = fmt.Sprintf("Process %d does not exist", pid)
	}

	e.mu.Lock()
	e.isolatedProcesses[pid] = record
	e.mu.Unlock()

	e.audit(ctx, "isolate_process", result.Target, reason)
	monitoring.ResponseActionsTotal.WithLabelValues("isolate_process", result.Status).Inc()
	e.logger.Info("process isolation recorded", "pid", pid, "incident_id", incidentID)
	return result
}

// QuarantineDevice persists the quarantine through the store and records it
// in the ledger.
func (e *Engine) QuarantineDevice(ctx context.Context, deviceID, sourceIP, incidentID string) ActionResult {
	result := ActionResult{
		Action:     "quarantine_device",
		Status:     "quarantined",
		Target:     sourceIP,
		IncidentID: incidentID,
		Timestamp:  now(),
		Message:    fmt.Sprintf("Device %s (%s) has been quarantined", deviceID, sourceIP),
	}

	if err := e.store.QuarantineDevice(ctx, sourceIP, "incident "+incidentID); err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("quarantine persistence failed: %v", err)
		e.logger.Error("device quarantine failed", "ip", sourceIP, "error", err)
	} else if e.hub != nil {
		e.hub.Broadcast(models.WSDeviceQuarantined, map[string]interface{}{
			"device_id":   deviceID,
			"source_ip":   sourceIP,
			"incident_id": incidentID,
		})
	}

	e.mu.Lock()
	e.quarantined[deviceID] = QuarantineRecord{
		DeviceID:      deviceID,
		SourceIP:      sourceIP,
		IncidentID:    incidentID,
		QuarantinedAt: result.Timestamp,
	}
	e.mu.Unlock()

	e.audit(ctx, "quarantine_device", sourceIP, "incident "+incidentID)
	monitoring.ResponseActionsTotal.WithLabelValues("quarantine_device", result.Status).Inc()
	return result
}

// RevokeUserSession appends to the revocation ledger. The identity
// provider's admin surface is not called from this layer.
func (e *Engine) RevokeUserSession(ctx context.Context, userID, incidentID string) ActionResult {
	e.mu.Lock()
	e.revokedSessions = append(e.revokedSessions, userID)
	e.mu.Unlock()

	result := ActionResult{
		Action:     "revoke_user_session",
		Status:     "revoked",
		Target:     userID,
		IncidentID: incidentID,
		Timestamp:  now(),
		Message:    fmt.Sprintf("Session revocation requested for user %s", userID),
	}
	e.audit(ctx, "revoke_user_session", userID, "incident "+incidentID)
	monitoring.ResponseActionsTotal.WithLabelValues("revoke_user_session", result.Status).Inc()
	e.logger.Info("session revocation recorded", "user", userID, "incident_id", incidentID)
	return result
}

// EscalateNotification records the escalation and pushes a critical alert to
// subscribers.
func (e *Engine) EscalateNotification(incidentID string, severity models.Severity, threatType models.ThreatType) ActionResult {
	e.mu.Lock()
	e.escalated = append(e.escalated, incidentID)
	e.mu.Unlock()

	result := ActionResult{
		Action:     "escalate_notification",
		Status:     "escalated",
		IncidentID: incidentID,
		Timestamp:  now(),
		Message:    fmt.Sprintf("CRITICAL ALERT: %s incident %s escalated", threatType, incidentID),
	}

	if e.hub != nil {
		e.hub.Broadcast(models.WSCriticalAlert, map[string]interface{}{
			"incident_id": incidentID,
			"severity":    severity,
			"threat_type": threatType,
			"message":     result.Message,
		})
	}
	monitoring.ResponseActionsTotal.WithLabelValues("escalate_notification", result.Status).Inc()
	e.logger.Warn("incident escalated", "incident_id", incidentID, "threat_type", threatType)
	return result
}

// SendAlertEmail queues a notification to the configured recipients. The
// delivery path is a stub: the ledger records the send.
func (e *Engine) SendAlertEmail(incident *models.Incident) ActionResult {
	result := ActionResult{
		Action:     "send_alert_email",
		IncidentID: incident.ID,
		Timestamp:  now(),
	}
	if !e.email.Enabled || len(e.email.Recipients) == 0 {
		result.Status = "skipped"
		result.Message = "email alerts disabled"
		return result
	}

	result.Status = "sent"
	result.Message = fmt.Sprintf("Alert email queued for delivery to %s", strings.Join(e.email.Recipients, ", "))
	monitoring.ResponseActionsTotal.WithLabelValues("send_alert_email", result.Status).Inc()
	e.logger.Info("alert email queued",
		"incident_id", incident.ID, "severity", incident.Severity, "recipients", len(e.email.Recipients))
	return result
}

// ActionLog returns the newest entries up to limit.
func (e *Engine) ActionLog(limit int) []LedgerEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.actionLog) {
		limit = len(e.actionLog)
	}
	out := make([]LedgerEntry, limit)
	copy(out, e.actionLog[len(e.actionLog)-limit:])
	return out
}

// IsolatedProcesses returns a copy of the isolation ledger.
func (e *Engine) IsolatedProcesses() map[int32]IsolationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int32]IsolationRecord, len(e.isolatedProcesses))
	for k, v := range e.isolatedProcesses {
		out[k] = v
	}
	return out
}

// QuarantinedDevices returns a copy of the quarantine ledger.
func (e *Engine) QuarantinedDevices() map[string]QuarantineRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]QuarantineRecord, len(e.quarantined))
	for k, v := range e.quarantined {
		out[k] = v
	}
	return out
}

func (e *Engine) logActions(incidentID string, actions []ActionResult) {
	if len(actions) == 0 {
		return
	}
	e.mu.Lock()
	e.actionLog = append(e.actionLog, LedgerEntry{
		IncidentID: incidentID,
		Actions:    actions,
		Timestamp:  now(),
	})
	if len(e.actionLog) > actionLogLimit {
		e.actionLog = e.actionLog[len(e.actionLog)-actionLogLimit:]
	}
	e.mu.Unlock()
}

func (e *Engine) audit(ctx context.Context, action, target, detail string) {
	if e.store == nil {
		return
	}
	if err := e.store.AppendAudit(ctx, "response-engine", action, target, detail); err != nil {
		e.logger.Warn("audit append failed", "action", action, "error", err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
