package forensics

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const (
	processLimit    = 20
	connectionLimit = 15
	packetCount     = 5
)

var payloadPreviews = map[models.ThreatType]string{
	models.ThreatBruteforce:       `[AUTH] Failed password for admin from 192.168.1.x port 52341 ssh2`,
	models.ThreatMalware:          `[BINARY] MZ\x90\x00\x03\x00\x00\x00...PE signature detected`,
	models.ThreatDDoS:             `[FLOOD] GET / HTTP/1.1\r\nHost: target.com\r\nUser-Agent: [RANDOMIZED]`,
	models.ThreatSQLInjection:     `[SQL] SELECT * FROM users WHERE id='1' OR '1'='1'--`,
	models.ThreatExfiltration:     `[DATA] POST /upload HTTP/1.1\r\nContent-Length: 524288\r\n[ENCRYPTED]`,
	models.ThreatPrivEscalation:   `[SUDO] user : TTY=pts/0 ; PWD=/home/user ; USER=root ; COMMAND=/bin/bash`,
	models.ThreatMaliciousTraffic: `[C2] BEACON: id=0x4A2B status=ACTIVE interval=60s`,
}

var baseRecommendations = []string{
	"Document all findings for incident report",
	"Review related logs for additional context",
	"Update incident response runbook if needed",
}

var threatRecommendations = map[models.ThreatType][]string{
	models.ThreatBruteforce: {
		"Block source IP at firewall level",
		"Force password reset for targeted accounts",
		"Enable account lockout policy",
		"Implement multi-factor authentication",
		"Review authentication logs for successful compromise",
	},
	models.ThreatMalware: {
		"Isolate affected system immediately",
		"Kill malicious process and quarantine files",
		"Run full antivirus/EDR scan",
		"Check for persistence mechanisms",
		"Scan network for lateral movement indicators",
	},
	models.ThreatDDoS: {
		"Enable rate limiting on affected services",
		"Activate CDN/DDoS protection services",
		"Block attacking IP ranges at edge",
		"Scale infrastructure if possible",
		"Contact ISP for upstream filtering",
	},
	models.ThreatSQLInjection: {
		"Block source IP immediately",
		"Review database for unauthorized changes",
		"Check for data exfiltration",
		"Patch vulnerable application",
		"Implement Web Application Firewall (WAF) rules",
	},
	models.ThreatExfiltration: {
		"Block destination IP and domain",
		"Identify scope of data potentially leaked",
		"Preserve logs for forensic analysis",
		"Notify security leadership immediately",
		"Prepare for potential breach disclosure",
	},
	models.ThreatPrivEscalation: {
		"Revoke elevated privileges immediately",
		"Reset all affected user credentials",
		"Audit recent admin actions",
		"Check for unauthorized changes to system files",
		"Review sudo/admin group memberships",
	},
	models.ThreatMaliciousTraffic: {
		"Block C2 IP/domain at DNS and firewall",
		"Isolate infected host from network",
		"Scan for additional compromised systems",
		"Check for beaconing patterns in proxy logs",
		"Identify initial infection vector",
	},
}

var genericRecommendations = []string{
	"Investigate event source and context",
	"Check for related suspicious activity",
	"Escalate if severity is high or critical",
	"Monitor for recurrence",
}

// Engine captures incident-scoped host snapshots. In demo mode the live
// probes are replaced with canned fixtures so presentations do not depend on
// the host the server happens to run on.
type Engine struct {
	mu       sync.Mutex
	rng      *rand.Rand
	demoMode bool
	logger   logger.Logger
}

func NewEngine(demoMode bool, log logger.Logger) *Engine {
	return &Engine{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		demoMode: demoMode,
		logger:   log,
	}
}

// Narrative returns the canned analyst summary in demo mode, where the real
// one would come from the LLM. Empty otherwise.
func (e *Engine) Narrative() string {
	if e.demoMode {
		return DemoSummary
	}
	return ""
}

// Capture builds the forensic snapshot for a detected incident. Probe
// failures degrade to empty sections; capture never fails the pipeline.
func (e *Engine) Capture(event *models.Event, threatType models.ThreatType, severity models.Severity) *models.Snapshot {
	if e.demoMode {
		return demoSnapshot(event, threatType, severity)
	}

	snapshot := &models.Snapshot{
		SnapshotID:      models.NewID(),
		CapturedAt:      time.Now().UTC(),
		IncidentType:    threatType,
		SystemInfo:      e.systemInfo(),
		Processes:       e.processes(),
		Connections:     e.connections(),
		PacketData:      e.packets(event, threatType),
		Indicators:      extractIndicators(event, severity),
		Recommendations: Recommendations(threatType),
		TriggerEvent: models.TriggerEvent{
			ID:       event.ID,
			Type:     event.Type,
			SourceIP: event.SourceIP,
			Severity: event.Severity,
		},
	}
	return snapshot
}

func (e *Engine) systemInfo() models.SystemInfo {
	info := models.SystemInfo{}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		info.CPUPercent = round2(percents[0])
	} else if err != nil {
		e.logger.Debug("cpu probe failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryPercent = round2(vm.UsedPercent)
		info.MemoryTotalGB = round2(float64(vm.Total) / (1 << 30))
		info.MemoryAvailableGB = round2(float64(vm.Available) / (1 << 30))
	} else {
		e.logger.Debug("memory probe failed", "error", err)
	}

	if du, err := disk.Usage("/"); err == nil {
		info.DiskPercent = round2(du.UsedPercent)
		info.DiskTotalGB = round2(float64(du.Total) / (1 << 30))
	} else {
		e.logger.Debug("disk probe failed", "error", err)
	}

	if bootTS, err := host.BootTime(); err == nil {
		boot := time.Unix(int64(bootTS), 0).UTC()
		info.BootTime = boot.Format(time.RFC3339)
		info.UptimeHours = round2(time.Since(boot).Hours())
	} else {
		e.logger.Debug("host probe failed", "error", err)
	}

	return info
}

func (e *Engine) processes() []models.ProcessInfo {
	procs, err := process.Processes()
	if err != nil {
		e.logger.Debug("process probe failed", "error", err)
		return nil
	}

	var out []models.ProcessInfo
	for _, p := range procs {
		info := models.ProcessInfo{PID: p.Pid}
		if name, err := p.Name(); err == nil {
			info.Name = name
		}
		if user, err := p.Username(); err == nil {
			info.Username = user
		}
		if cpuPct, err := p.CPUPercent(); err == nil {
			info.CPUPercent = round2(cpuPct)
		}
		if memPct, err := p.MemoryPercent(); err == nil {
			info.MemoryPercent = round2(float64(memPct))
		}
		if status, err := p.Status(); err == nil && len(status) > 0 {
			info.Status = status[0]
		}
		if created, err := p.CreateTime(); err == nil && created > 0 {
			info.Created = time.UnixMilli(created).UTC().Format(time.RFC3339)
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	if len(out) > processLimit {
		out = out[:processLimit]
	}
	return out
}

func (e *Engine) connections() []models.ConnectionInfo {
	conns, err := gopsnet.Connections("inet")
	if err != nil {
		e.logger.Debug("connection probe failed", "error", err)
		return nil
	}

	var out []models.ConnectionInfo
	for _, c := range conns {
		if len(out) >= connectionLimit {
			break
		}
		info := models.ConnectionInfo{
			Family: familyName(c.Family),
			Type:   socketTypeName(c.Type),
			Status: c.Status,
			PID:    c.Pid,
		}
		if c.Laddr.IP != "" {
			info.LocalAddress = fmt.Sprintf("%s:%d", c.Laddr.IP, c.Laddr.Port)
		}
		if c.Raddr.IP != "" {
			info.RemoteAddress = fmt.Sprintf("%s:%d", c.Raddr.IP, c.Raddr.Port)
		}
		if c.Pid > 0 {
			if p, err := process.NewProcess(c.Pid); err == nil {
				if name, err := p.Name(); err == nil {
					info.ProcessName = name
				}
			}
		}
		out = append(out, info)
	}
	return out
}

// packets synthesizes a short trace around the triggering event; real packet
// capture is out of scope for this system.
func (e *Engine) packets(event *models.Event, threatType models.ThreatType) []models.Packet {
	e.mu.Lock()
	defer e.mu.Unlock()

	flags := []string{"SYN", "SYN-ACK", "ACK", "FIN", "RST", "PSH"}
	protocols := []string{"TCP", "UDP", "ICMP"}
	ttls := []int{64, 128, 255}

	destIP := event.Details.String("destination_ip")
	if destIP == "" {
		destIP = "10.0.0.1"
	}
	destPort := event.Details.Int("port")
	if destPort == 0 {
		destPort = []int{22, 80, 443, 3306, 8080}[e.rng.Intn(5)]
	}
	protocol := event.Details.String("protocol")
	if protocol == "" {
		protocol = protocols[e.rng.Intn(len(protocols))]
	}

	packets := make([]models.Packet, 0, packetCount)
	for i := 0; i < packetCount; i++ {
		packets = append(packets, models.Packet{
			Sequence:        i + 1,
			Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
			SourceIP:        event.SourceIP,
			SourcePort:      1024 + e.rng.Intn(64512),
			DestinationIP:   destIP,
			DestinationPort: destPort,
			Protocol:        protocol,
			Flags:           flags[e.rng.Intn(len(flags))],
			SizeBytes:       64 + e.rng.Intn(1437),
			TTL:             ttls[e.rng.Intn(len(ttls))],
			PayloadPreview:  PayloadPreview(threatType),
		})
	}
	return packets
}

// PayloadPreview renders the threat-specific sample payload shown in packet
// traces.
func PayloadPreview(threatType models.ThreatType) string {
	if preview, ok := payloadPreviews[threatType]; ok {
		return preview
	}
	return "[ENCRYPTED DATA]"
}

// Recommendations returns the remediation checklist for a threat kind.
func Recommendations(threatType models.ThreatType) []string {
	specific, ok := threatRecommendations[threatType]
	if !ok {
		specific = genericRecommendations
	}
	out := make([]string, 0, len(specific)+len(baseRecommendations))
	out = append(out, specific...)
	out = append(out, baseRecommendations...)
	return out
}

func extractIndicators(event *models.Event, severity models.Severity) []string {
	indicators := []string{
		fmt.Sprintf("Event Type: %s", event.Type),
		fmt.Sprintf("Source IP: %s", event.SourceIP),
		fmt.Sprintf("Severity: %s", severity),
		fmt.Sprintf("Detection Time: %s", time.Now().UTC().Format(time.RFC3339)),
	}
	if v := event.Details.String("destination_ip"); v != "" {
		indicators = append(indicators, fmt.Sprintf("Destination IP: %s", v))
	}
	if v := event.Details.Int("port"); v != 0 {
		indicators = append(indicators, fmt.Sprintf("Target Port: %d", v))
	}
	if v := event.Details.String("process_name"); v != "" {
		indicators = append(indicators, fmt.Sprintf("Process: %s", v))
	}
	if v := event.Details.String("hash"); v != "" {
		indicators = append(indicators, fmt.Sprintf("Hash: %s", v))
	}
	if v := event.Details.String("username"); v != "" {
		indicators = append(indicators, fmt.Sprintf("Username: %s", v))
	}
	return indicators
}

func familyName(family uint32) string {
	if family == 2 {
		return "IPv4"
	}
	return "IPv6"
}

func socketTypeName(socketType uint32) string {
	switch socketType {
	case 1:
		return "SOCK_STREAM"
	case 2:
		return "SOCK_DGRAM"
	default:
		return "SOCK_RAW"
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
