package telemetry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

// Simulated network topology and account inventory used by the generator.
var (
	eventTypes = []string{models.EventOS, models.EventLogin, models.EventProcess, models.EventNetwork}

	severities      = []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}
	severityWeights = []float64{0.40, 0.35, 0.20, 0.05}

	externalIPs = []string{"8.8.8.8", "1.1.1.1", "208.67.222.222", "9.9.9.9"}
	commonPorts = []int{22, 80, 443, 3306, 5432, 8080, 8443, 3389}

	// Known bad addresses injected into a fraction of suspicious events.
	blacklistIPs = []string{"45.33.32.156", "198.51.100.42", "203.0.113.0", "192.0.2.1"}

	usernames = []string{"admin", "root", "user1", "user2", "developer", "analyst", "guest", "service_account"}

	normalProcesses = []string{
		"nginx", "python", "node", "java", "postgres", "redis",
		"docker", "systemd", "sshd", "cron", "apache2",
	}
	suspiciousProcesses = []string{"suspicious.exe", "cryptominer", "backdoor.sh"}

	osActions = []string{
		"file_access", "file_modify", "registry_change",
		"service_start", "service_stop", "config_change",
	}
)

// anomalyInjectionRate is the fraction of generated events that are mildly
// suspicious rather than clean background noise.
const anomalyInjectionRate = 0.05

// Generator produces simulated background telemetry. Safe for concurrent
// use; the rand source is guarded.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	n   int
}

func NewGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededGenerator fixes the rand source for reproducible tests.
func NewSeededGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate produces a single telemetry event.
func (g *Generator) Generate() *models.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++

	eventType := eventTypes[g.rng.Intn(len(eventTypes))]
	severity := g.weightedSeverity()
	suspicious := g.rng.Float64() < anomalyInjectionRate
	if suspicious {
		if g.rng.Intn(2) == 0 {
			severity = models.SeverityMedium
		} else {
			severity = models.SeverityHigh
		}
	}

	return &models.Event{
		ID:        g.eventID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		SourceIP:  g.sourceIP(suspicious),
		Severity:  severity,
		Details:   g.details(eventType, suspicious),
	}
}

func (g *Generator) weightedSeverity() models.Severity {
	r := g.rng.Float64()
	cumulative := 0.0
	for i, w := range severityWeights {
		cumulative += w
		if r < cumulative {
			return severities[i]
		}
	}
	return severities[len(severities)-1]
}

func (g *Generator) eventID() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s%d%f",
		time.Now().UTC().Format(time.RFC3339Nano), g.n, g.rng.Float64())))
	return hex.EncodeToString(sum[:])[:16]
}

func (g *Generator) sourceIP(suspicious bool) string {
	if suspicious && g.rng.Float64() < 0.3 {
		return blacklistIPs[g.rng.Intn(len(blacklistIPs))]
	}
	return fmt.Sprintf("192.168.1.%d", 1+g.rng.Intn(254))
}

func (g *Generator) details(eventType string, suspicious bool) models.Details {
	switch eventType {
	case models.EventLogin:
		return g.loginDetails(suspicious)
	case models.EventProcess:
		return g.processDetails(suspicious)
	case models.EventNetwork:
		return g.networkDetails(suspicious)
	default:
		return g.osDetails(suspicious)
	}
}

func (g *Generator) loginDetails(suspicious bool) models.Details {
	// 10% of clean logins fail anyway.
	success := !suspicious && g.rng.Float64() > 0.1
	attempts := 1
	if !success {
		attempts = 1 + g.rng.Intn(3)
	}
	return models.Details{
		"username":       usernames[g.rng.Intn(len(usernames))],
		"success":        success,
		"method":         []string{"ssh", "console", "rdp", "api"}[g.rng.Intn(4)],
		"attempts":       attempts,
		"client_version": fmt.Sprintf("OpenSSH_%d.%d", 7+g.rng.Intn(3), g.rng.Intn(10)),
	}
}

func (g *Generator) processDetails(suspicious bool) models.Details {
	name := normalProcesses[g.rng.Intn(len(normalProcesses))]
	if suspicious && g.rng.Float64() < 0.5 {
		name = suspiciousProcesses[g.rng.Intn(len(suspiciousProcesses))]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s%f", name, g.rng.Float64())))
	return models.Details{
		"process_name": name,
		"pid":          1000 + g.rng.Intn(64536),
		"ppid":         1 + g.rng.Intn(1000),
		"hash":         hex.EncodeToString(sum[:]),
		"cpu_percent":  float64(int(g.rng.Float64()*1500)) / 100,
		"memory_mb":    10 + g.rng.Intn(491),
		"user":         usernames[g.rng.Intn(len(usernames))],
	}
}

func (g *Generator) networkDetails(suspicious bool) models.Details {
	var destIP string
	var bytes int
	if suspicious && g.rng.Float64() < 0.4 {
		destIP = blacklistIPs[g.rng.Intn(len(blacklistIPs))]
		bytes = 10000 + g.rng.Intn(90001)
	} else {
		if g.rng.Intn(2) == 0 {
			destIP = externalIPs[g.rng.Intn(len(externalIPs))]
		} else {
			destIP = fmt.Sprintf("192.168.1.%d", 1+g.rng.Intn(10))
		}
		bytes = 64 + g.rng.Intn(4937)
	}
	return models.Details{
		"destination_ip":   destIP,
		"port":             commonPorts[g.rng.Intn(len(commonPorts))],
		"protocol":         []string{"TCP", "UDP"}[g.rng.Intn(2)],
		"bytes":            bytes,
		"direction":        []string{"inbound", "outbound"}[g.rng.Intn(2)],
		"connection_state": []string{"ESTABLISHED", "SYN_SENT", "TIME_WAIT", "CLOSE_WAIT"}[g.rng.Intn(4)],
	}
}

func (g *Generator) osDetails(suspicious bool) models.Details {
	logFiles := []string{"syslog", "auth.log", "messages"}
	dir := ""
	result := "success"
	if suspicious {
		dir = "suspicious/"
		if g.rng.Intn(2) == 0 {
			result = "failure"
		}
	}
	return models.Details{
		"action":   osActions[g.rng.Intn(len(osActions))],
		"path":     "/var/log/" + dir + logFiles[g.rng.Intn(len(logFiles))],
		"user":     usernames[g.rng.Intn(len(usernames))],
		"result":   result,
		"audit_id": 10000 + g.rng.Intn(90000),
	}
}
