package detect

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
)

// Simulated threat intelligence.
var (
	blacklistIPs = map[string]bool{
		"45.33.32.156":  true, // known scanner
		"198.51.100.42": true, // C2 server
		"203.0.113.0":   true, // botnet node
		"192.0.2.1":     true, // malware distribution
		"10.255.255.1":  true, // internal threat
	}

	maliciousHashes = map[string]bool{
		"abc123malicious": true,
		"def456ransomware": true,
		"ghi789trojan":    true,
		"jkl012rootkit":   true,
	}

	sqliPatterns = []string{
		"UNION SELECT",
		"DROP TABLE",
		"DELETE FROM",
		"INSERT INTO",
		"UPDATE SET",
		"--",
		"'; --",
		"1=1",
		"OR 1=1",
		"' OR '",
	}

	suspiciousProcesses = []string{
		"suspicious.exe",
		"mimikatz",
		"pwdump",
		"keylogger",
		"backdoor",
		"rootkit",
		"cryptominer",
		"ransomware",
	}

	elevationTools = map[string]bool{
		"sudo":     true,
		"su":       true,
		"doas":     true,
		"pkexec":   true,
		"runas":    true,
		"sudoedit": true,
		"dzdo":     true,
	}

	privilegedRoles = map[string]bool{
		"root":          true,
		"admin":         true,
		"administrator": true,
		"sudo":          true,
		"wheel":         true,
		"superuser":     true,
	}
)

const (
	bruteforceWindow    = 30 * time.Second
	bruteforceThreshold = 5
	portScanWindow      = 60 * time.Second
	portScanThreshold   = 10
	trafficWindow       = 30 * time.Second
	exfilThresholdBytes = 50000
	ddosMultiplier      = 4.0
	baselineInitBytes   = 1000.0
	baselineMinSamples  = 10
)

type loginAttempt struct {
	at       time.Time
	username string
}

type portHit struct {
	at   time.Time
	port int
	dst  string
}

type trafficSample struct {
	at    time.Time
	bytes int
}

// Engine runs all detection rules against each event and keeps the sliding
// windows they need. A single mutex guards all state; it is held only for
// window bookkeeping, never across I/O.
type Engine struct {
	mu sync.Mutex

	failedLogins map[string][]loginAttempt
	portHits     map[string][]portHit
	traffic      map[string][]trafficSample

	// Adaptive per-event byte baseline, fed by traffic that stays under the
	// current threshold. Starts at a fixed prior until enough samples exist.
	baselineSum   float64
	baselineCount int

	clock func() time.Time
}

func NewEngine() *Engine {
	return &Engine{
		failedLogins: make(map[string][]loginAttempt),
		portHits:     make(map[string][]portHit),
		traffic:      make(map[string][]trafficSample),
		clock:        time.Now,
	}
}

// Baseline returns the current adaptive traffic baseline in bytes per event.
func (e *Engine) Baseline() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline()
}

func (e *Engine) baseline() float64 {
	if e.baselineCount <= baselineMinSamples {
		return baselineInitBytes
	}
	return e.baselineSum / float64(e.baselineCount)
}

// Analyze runs every detector against the event and returns the single
// highest-severity hit. Ties go to the earlier detector in the fixed order.
func (e *Engine) Analyze(event *models.Event) models.Detection {
	e.mu.Lock()
	defer e.mu.Unlock()

	checks := []struct {
		name string
		fn   func(*models.Event) models.Detection
	}{
		{"bruteforce", e.checkBruteforce},
		{"port_scan", e.checkPortScan},
		{"malware", e.checkMalware},
		{"ddos", e.checkDDoS},
		{"sql_injection", e.checkSQLInjection},
		{"exfiltration", e.checkExfiltration},
		{"privilege_escalation", e.checkPrivilegeEscalation},
		{"malicious_traffic", e.checkMaliciousTraffic},
	}

	e.evictStale(event.SourceIP)

	best := models.NoThreat()
	for _, check := range checks {
		result := check.fn(event)
		if !result.IsThreat {
			continue
		}
		monitoring.DetectorHitsTotal.WithLabelValues(check.name).Inc()
		if result.Severity.Rank() > best.Severity.Rank() || !best.IsThreat {
			best = result
		}
	}
	return best
}

// evictStale prunes the touched key's windows to their horizons and drops
// keys that end up empty, so idle sources do not accumulate state.
func (e *Engine) evictStale(key string) {
	now := e.clock()
	if w, ok := e.failedLogins[key]; ok {
		if w = pruneAttempts(w, now.Add(-bruteforceWindow)); len(w) == 0 {
			delete(e.failedLogins, key)
		} else {
			e.failedLogins[key] = w
		}
	}
	if w, ok := e.portHits[key]; ok {
		if w = prunePortHits(w, now.Add(-portScanWindow)); len(w) == 0 {
			delete(e.portHits, key)
		} else {
			e.portHits[key] = w
		}
	}
	if w, ok := e.traffic[key]; ok {
		if w = pruneTraffic(w, now.Add(-trafficWindow)); len(w) == 0 {
			delete(e.traffic, key)
		} else {
			e.traffic[key] = w
		}
	}
}

// checkBruteforce fires when a source exceeds 5 failed logins inside 30 s.
func (e *Engine) checkBruteforce(event *models.Event) models.Detection {
	if event.Type != models.EventLogin {
		return models.NoThreat()
	}
	if event.Details.Bool("success") || !event.Details.Has("success") {
		return models.NoThreat()
	}

	now := e.clock()
	cutoff := now.Add(-bruteforceWindow)
	window := pruneAttempts(e.failedLogins[event.SourceIP], cutoff)
	window = append(window, loginAttempt{at: now, username: event.Details.String("username")})
	e.failedLogins[event.SourceIP] = window

	count := len(window)
	if count <= bruteforceThreshold {
		return models.NoThreat()
	}

	severity := models.SeverityHigh
	if count >= 10 {
		severity = models.SeverityCritical
	}

	usernames := map[string]bool{}
	for _, a := range window {
		if a.username != "" {
			usernames[a.username] = true
		}
	}
	targets := make([]string, 0, len(usernames))
	for u := range usernames {
		targets = append(targets, u)
	}

	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatBruteforce,
		Severity:    severity,
		Description: fmt.Sprintf("Brute force attack detected: %d failed login attempts in 30 seconds", count),
		Confidence:  minFloat(0.95, 0.5+0.1*float64(count-bruteforceThreshold)),
		Indicators: []string{
			fmt.Sprintf("Source IP: %s", event.SourceIP),
			fmt.Sprintf("Failed attempts: %d", count),
			fmt.Sprintf("Targeted users: %s", strings.Join(targets, ", ")),
		},
	}
}

// checkPortScan fires when one source touches more than 10 distinct ports
// inside 60 s.
func (e *Engine) checkPortScan(event *models.Event) models.Detection {
	if event.Type != models.EventNetwork || !event.Details.Has("port") {
		return models.NoThreat()
	}

	now := e.clock()
	cutoff := now.Add(-portScanWindow)
	window := prunePortHits(e.portHits[event.SourceIP], cutoff)
	window = append(window, portHit{
		at:   now,
		port: event.Details.Int("port"),
		dst:  event.Details.String("destination_ip"),
	})
	e.portHits[event.SourceIP] = window

	distinct := map[int]bool{}
	for _, h := range window {
		distinct[h.port] = true
	}
	if len(distinct) <= portScanThreshold {
		return models.NoThreat()
	}

	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatPortScan,
		Severity:    models.SeverityHigh,
		Description: fmt.Sprintf("Port scan detected: %d distinct ports probed in 60 seconds", len(distinct)),
		Confidence:  minFloat(0.9, 0.5+0.05*float64(len(distinct)-portScanThreshold)),
		Indicators: []string{
			fmt.Sprintf("Source IP: %s", event.SourceIP),
			fmt.Sprintf("Distinct ports: %d", len(distinct)),
			fmt.Sprintf("Probes in window: %d", len(window)),
		},
	}
}

// checkMalware matches process names against suspicious substrings and
// hashes against known-bad digests.
func (e *Engine) checkMalware(event *models.Event) models.Detection {
	if event.Type != models.EventProcess {
		return models.NoThreat()
	}

	name := strings.ToLower(event.Details.String("process_name"))
	hash := event.Details.String("hash")

	var indicators []string
	for _, suspicious := range suspiciousProcesses {
		if strings.Contains(name, suspicious) {
			indicators = append(indicators, fmt.Sprintf("Suspicious process: %s", name))
			break
		}
	}
	if maliciousHashes[hash] {
		indicators = append(indicators, fmt.Sprintf("Known malicious hash: %s", hash))
	}
	if len(indicators) == 0 {
		return models.NoThreat()
	}

	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatMalware,
		Severity:    models.SeverityCritical,
		Description: "Malware detected: suspicious process or known malicious hash",
		Confidence:  0.9,
		Indicators:  indicators,
	}
}

// checkDDoS compares event traffic against the adaptive baseline. Traffic
// that stays below the threshold feeds the baseline; traffic above it, or a
// saturated 30 s window, fires.
func (e *Engine) checkDDoS(event *models.Event) models.Detection {
	if event.Type != models.EventNetwork || !event.Details.Has("bytes") {
		return models.NoThreat()
	}

	bytes := event.Details.Int("bytes")
	threshold := e.baseline() * ddosMultiplier

	now := e.clock()
	cutoff := now.Add(-trafficWindow)
	window := pruneTraffic(e.traffic[event.SourceIP], cutoff)
	window = append(window, trafficSample{at: now, bytes: bytes})
	e.traffic[event.SourceIP] = window

	windowTotal := 0
	for _, s := range window {
		windowTotal += s.bytes
	}
	windowFlood := len(window) > 5 && float64(windowTotal) > threshold*float64(len(window))

	if float64(bytes) <= threshold && !windowFlood {
		e.baselineSum += float64(bytes)
		e.baselineCount++
		return models.NoThreat()
	}

	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatDDoS,
		Severity:    models.SeverityCritical,
		Description: fmt.Sprintf("DDoS attack detected: traffic volume %d bytes exceeds threshold", bytes),
		Confidence:  0.85,
		Indicators: []string{
			fmt.Sprintf("Traffic volume: %d bytes", bytes),
			fmt.Sprintf("Baseline: %.0f bytes", e.baseline()),
			fmt.Sprintf("Window events: %d, window bytes: %d", len(window), windowTotal),
		},
	}
}

// checkSQLInjection scans payload-carrying fields and the flattened details
// for injection patterns.
func (e *Engine) checkSQLInjection(event *models.Event) models.Detection {
	haystacks := []string{
		event.Details.String("command"),
		event.Details.String("request_payload"),
		event.Details.String("query"),
		event.Details.Flatten(),
	}

	for _, haystack := range haystacks {
		if haystack == "" {
			continue
		}
		upper := strings.ToUpper(haystack)
		for _, pattern := range sqliPatterns {
			if strings.Contains(upper, strings.ToUpper(pattern)) {
				return models.Detection{
					IsThreat:    true,
					ThreatType:  models.ThreatSQLInjection,
					Severity:    models.SeverityHigh,
					Description: fmt.Sprintf("SQL injection attempt detected: found pattern '%s'", pattern),
					Confidence:  0.88,
					Indicators: []string{
						fmt.Sprintf("Pattern matched: %s", pattern),
						fmt.Sprintf("Source: %s", event.SourceIP),
					},
				}
			}
		}
	}
	return models.NoThreat()
}

// checkExfiltration flags single transfers above 50 KB.
func (e *Engine) checkExfiltration(event *models.Event) models.Detection {
	if event.Type != models.EventNetwork {
		return models.NoThreat()
	}
	bytes := event.Details.Int("bytes")
	if bytes <= exfilThresholdBytes {
		return models.NoThreat()
	}
	dest := event.Details.String("destination_ip")
	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatExfiltration,
		Severity:    models.SeverityHigh,
		Description: fmt.Sprintf("Potential data exfiltration: %d bytes transferred to %s", bytes, dest),
		Confidence:  0.75,
		Indicators: []string{
			fmt.Sprintf("Outbound bytes: %d", bytes),
			fmt.Sprintf("Destination: %s", dest),
			"Exceeds normal transfer threshold",
		},
	}
}

// checkPrivilegeEscalation covers three paths: a role change into a
// privileged account, a bare role_change action, and elevation tooling.
func (e *Engine) checkPrivilegeEscalation(event *models.Event) models.Detection {
	if userChange := event.Details.String("user_change"); strings.Contains(userChange, "->") {
		parts := strings.SplitN(userChange, "->", 2)
		from := strings.ToLower(strings.TrimSpace(parts[0]))
		to := strings.ToLower(strings.TrimSpace(parts[1]))
		if privilegedRoles[to] && !privilegedRoles[from] {
			return models.Detection{
				IsThreat:    true,
				ThreatType:  models.ThreatPrivEscalation,
				Severity:    models.SeverityCritical,
				Description: fmt.Sprintf("Privilege escalation detected: %s", userChange),
				Confidence:  0.92,
				Indicators: []string{
					fmt.Sprintf("Role change: %s", userChange),
					"Sudden elevation to privileged account",
				},
			}
		}
	}

	if event.Details.String("action") == "role_change" {
		return models.Detection{
			IsThreat:    true,
			ThreatType:  models.ThreatPrivEscalation,
			Severity:    models.SeverityHigh,
			Description: "Unexpected role change recorded",
			Confidence:  0.75,
			Indicators: []string{
				fmt.Sprintf("User: %s", event.Details.String("user")),
				fmt.Sprintf("Source: %s", event.SourceIP),
			},
		}
	}

	if event.Type == models.EventProcess {
		name := strings.ToLower(event.Details.String("process_name"))
		if elevationTools[name] {
			return models.Detection{
				IsThreat:    true,
				ThreatType:  models.ThreatPrivEscalation,
				Severity:    models.SeverityHigh,
				Description: fmt.Sprintf("Privilege escalation attempt via %s", name),
				Confidence:  0.7,
				Indicators: []string{
					fmt.Sprintf("Elevation tool: %s", name),
					fmt.Sprintf("PID: %d", event.Details.Int("pid")),
				},
			}
		}
	}

	return models.NoThreat()
}

// checkMaliciousTraffic flags connections to blacklisted destinations.
func (e *Engine) checkMaliciousTraffic(event *models.Event) models.Detection {
	if event.Type != models.EventNetwork {
		return models.NoThreat()
	}
	dest := event.Details.String("destination_ip")
	if !blacklistIPs[dest] {
		return models.NoThreat()
	}
	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatMaliciousTraffic,
		Severity:    models.SeverityCritical,
		Description: fmt.Sprintf("Communication with known malicious IP: %s", dest),
		Confidence:  0.95,
		Indicators: []string{
			fmt.Sprintf("Blacklisted IP: %s", dest),
			fmt.Sprintf("Port: %d", event.Details.Int("port")),
			fmt.Sprintf("Protocol: %s", event.Details.String("protocol")),
		},
	}
}

func pruneAttempts(window []loginAttempt, cutoff time.Time) []loginAttempt {
	kept := window[:0]
	for _, a := range window {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	return kept
}

func prunePortHits(window []portHit, cutoff time.Time) []portHit {
	kept := window[:0]
	for _, h := range window {
		if h.at.After(cutoff) {
			kept = append(kept, h)
		}
	}
	return kept
}

func pruneTraffic(window []trafficSample, cutoff time.Time) []trafficSample {
	kept := window[:0]
	for _, s := range window {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
