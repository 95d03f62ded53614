package forensics

import (
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

// DemoSummary is the canned narrative attached to demo-mode reports instead
// of a live LLM call.
const DemoSummary = `THREAT ASSESSMENT: HIGH SEVERITY

- Detected suspicious process execution chain
- Potential credential harvesting activity
- Outbound C2 communication patterns identified

RECOMMENDED ACTIONS:
1. Immediately isolate affected host from network
2. Force password reset for all affected accounts
3. Enable multi-factor authentication
4. Conduct full forensic disk image
5. Review firewall logs for lateral movement

CONFIDENCE SCORE: 94%`

// demoSnapshot returns the fixed presentation snapshot, stamped with the
// real trigger event.
func demoSnapshot(event *models.Event, threatType models.ThreatType, severity models.Severity) *models.Snapshot {
	return &models.Snapshot{
		SnapshotID:   models.NewID(),
		CapturedAt:   time.Now().UTC(),
		IncidentType: threatType,
		SystemInfo: models.SystemInfo{
			CPUPercent:        45.2,
			MemoryPercent:     68.5,
			MemoryTotalGB:     16.0,
			MemoryAvailableGB: 5.1,
			DiskPercent:       72.3,
			UptimeHours:       168.5,
		},
		Processes: []models.ProcessInfo{
			{PID: 1234, Name: "cmd.exe", Username: "SYSTEM", CPUPercent: 2.5, MemoryPercent: 15.2, Status: "running"},
			{PID: 5678, Name: "powershell.exe", Username: "admin", CPUPercent: 8.1, MemoryPercent: 45.6, Status: "running"},
			{PID: 3456, Name: "malware_proc.exe", Username: "guest", CPUPercent: 15.2, MemoryPercent: 88.4, Status: "running"},
			{PID: 7890, Name: "ssh.exe", Username: "admin", CPUPercent: 0.8, MemoryPercent: 8.2, Status: "running"},
		},
		Connections: []models.ConnectionInfo{
			{Family: "IPv4", Type: "SOCK_STREAM", LocalAddress: "192.168.1.42:52341", RemoteAddress: "45.33.32.156:443", Status: "ESTABLISHED", ProcessName: "malware_proc.exe"},
			{Family: "IPv4", Type: "SOCK_STREAM", LocalAddress: "192.168.1.42:22", RemoteAddress: "10.0.0.55:49152", Status: "ESTABLISHED", ProcessName: "ssh.exe"},
			{Family: "IPv4", Type: "SOCK_DGRAM", LocalAddress: "192.168.1.42:49200", RemoteAddress: "8.8.8.8:53", Status: "TIME_WAIT", ProcessName: "svchost.exe"},
		},
		PacketData: []models.Packet{
			{Sequence: 1, Timestamp: time.Now().UTC().Format(time.RFC3339Nano), SourceIP: event.SourceIP,
				SourcePort: 52341, DestinationIP: "45.33.32.156", DestinationPort: 443, Protocol: "TCP",
				Flags: "PSH", SizeBytes: 1024, TTL: 64, PayloadPreview: PayloadPreview(threatType)},
		},
		Indicators: []string{
			"Suspicious process: malware_proc.exe (PID: 3456)",
			"C2 Communication: 45.33.32.156:443",
			"Encoded PowerShell execution detected",
			"Multiple failed authentication attempts",
			"Data exfiltration pattern: 512KB+ outbound",
		},
		Recommendations: []string{
			"Block IP 45.33.32.156 at firewall",
			"Isolate host 192.168.1.42 immediately",
			"Kill process PID 3456 (malware_proc.exe)",
			"Force credential reset for user: admin",
			"Enable enhanced logging on all systems",
		},
		TriggerEvent: models.TriggerEvent{
			ID:       event.ID,
			Type:     event.Type,
			SourceIP: event.SourceIP,
			Severity: severity,
		},
	}
}
