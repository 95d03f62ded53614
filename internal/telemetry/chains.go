package telemetry

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// ChainGenerator produces scripted multi-stage attack sequences for the
// simulation endpoint. Unknown chain names fall back to a single generic
// suspicious event.
type ChainGenerator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	chains map[string]func(target string) []*models.Event
}

func NewChainGenerator() *ChainGenerator {
	g := &ChainGenerator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	g.chains = map[string]func(string) []*models.Event{
		"bruteforce":           g.bruteforceChain,
		"brute_force":          g.bruteforceChain,
		"port_scan":            g.portScanChain,
		"malware":              g.malwareChain,
		"malware_detection":    g.malwareChain,
		"ddos":                 g.ddosChain,
		"sql_injection":        g.sqliChain,
		"privilege_escalation": g.privescChain,
		"exfiltration":         g.exfiltrationChain,
		"data_exfiltration":    g.exfiltrationChain,
	}
	return g
}

// KnownChains lists the canonical chain names, for the simulate endpoint's
// response.
func KnownChains() []string {
	return []string{
		"bruteforce", "port_scan", "malware", "ddos",
		"sql_injection", "privilege_escalation", "exfiltration",
	}
}

// Generate builds the event sequence for the named chain against a target.
func (g *ChainGenerator) Generate(chain, target string) []*models.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	if target == "" {
		target = "192.168.1.100"
	}
	if fn, ok := g.chains[chain]; ok {
		return fn(target)
	}
	return g.defaultChain(target)
}

func (g *ChainGenerator) event(eventType string, severity models.Severity, sourceIP string, details models.Details) *models.Event {
	if sourceIP == "" {
		sourceIP = fmt.Sprintf("192.168.1.%d", 1+g.rng.Intn(255))
	}
	return &models.Event{
		ID:        models.NewID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		SourceIP:  sourceIP,
		Severity:  severity,
		Details:   details,
	}
}

func (g *ChainGenerator) bruteforceChain(string) []*models.Event {
	attacker := fmt.Sprintf("10.0.0.%d", 1+g.rng.Intn(255))
	targets := []string{"admin", "root", "administrator"}
	var events []*models.Event
	for i := 0; i < 6; i++ {
		sev := models.SeverityMedium
		if i >= 4 {
			sev = models.SeverityHigh
		}
		events = append(events, g.event(models.EventLogin, sev, attacker, models.Details{
			"username": targets[g.rng.Intn(len(targets))],
			"success":  false,
			"method":   "ssh",
			"attempts": 1,
			"reason":   "invalid_password",
		}))
	}
	// The break-in after the spray.
	events = append(events, g.event(models.EventLogin, models.SeverityCritical, attacker, models.Details{
		"username":   "admin",
		"success":    true,
		"method":     "ssh",
		"attempts":   1,
		"suspicious": true,
	}))
	return events
}

func (g *ChainGenerator) portScanChain(target string) []*models.Event {
	attacker := fmt.Sprintf("10.0.0.%d", 1+g.rng.Intn(255))
	ports := []int{22, 23, 80, 443, 445, 3306, 3389, 5432, 8080, 8443}
	var events []*models.Event
	for _, port := range ports {
		events = append(events, g.event(models.EventNetwork, models.SeverityMedium, attacker, models.Details{
			"destination_ip": target,
			"port":           port,
			"protocol":       "TCP",
			"bytes":          64,
			"flags":          "SYN",
			"scan_detected":  true,
		}))
	}
	return events
}

func (g *ChainGenerator) malwareChain(string) []*models.Event {
	return []*models.Event{
		g.event(models.EventProcess, models.SeverityCritical, "", models.Details{
			"process_name":   "suspicious.exe",
			"pid":            6666,
			"hash":           "abc123malicious",
			"parent_process": "explorer.exe",
			"command_line":   "suspicious.exe -hidden -persist",
		}),
		g.event(models.EventNetwork, models.SeverityCritical, "", models.Details{
			"destination_ip": blacklistIPs[0],
			"port":           443,
			"protocol":       "TCP",
			"bytes":          5000,
			"beacon":         true,
		}),
		g.event(models.EventOS, models.SeverityHigh, "", models.Details{
			"action":     "file_modify",
			"path":       "/etc/crontab",
			"user":       "root",
			"suspicious": true,
		}),
	}
}

func (g *ChainGenerator) ddosChain(target string) []*models.Event {
	flags := []string{"SYN", "ACK", "RST"}
	var events []*models.Event
	for i := 0; i < 10; i++ {
		source := fmt.Sprintf("%d.%d.%d.%d",
			1+g.rng.Intn(255), 1+g.rng.Intn(255), 1+g.rng.Intn(255), 1+g.rng.Intn(255))
		events = append(events, g.event(models.EventNetwork, models.SeverityCritical, source, models.Details{
			"destination_ip": target,
			"port":           80,
			"protocol":       "TCP",
			"bytes":          5000 + g.rng.Intn(10001),
			"flags":          flags[g.rng.Intn(len(flags))],
			"flood_detected": true,
		}))
	}
	return events
}

func (g *ChainGenerator) sqliChain(target string) []*models.Event {
	attacker := fmt.Sprintf("10.0.0.%d", 1+g.rng.Intn(255))
	return []*models.Event{
		g.event(models.EventNetwork, models.SeverityMedium, attacker, models.Details{
			"destination_ip": target,
			"port":           3306,
			"protocol":       "TCP",
			"bytes":          512,
			"service":        "mysql",
		}),
		g.event(models.EventOS, models.SeverityHigh, attacker, models.Details{
			"action":             "database_query",
			"command":            "SELECT * FROM users WHERE id=1 OR 1=1; DROP TABLE users;--",
			"database":           "production_db",
			"injection_detected": true,
		}),
	}
}

func (g *ChainGenerator) privescChain(string) []*models.Event {
	return []*models.Event{
		g.event(models.EventLogin, models.SeverityLow, "", models.Details{
			"username": "user1",
			"success":  true,
			"method":   "ssh",
		}),
		g.event(models.EventProcess, models.SeverityHigh, "", models.Details{
			"process_name": "sudo",
			"pid":          8888,
			"hash":         "privilege_esc",
			"command_line": "sudo -i",
		}),
		g.event(models.EventOS, models.SeverityCritical, "", models.Details{
			"action":      "role_change",
			"user_change": "user1 -> root",
			"method":      "sudo",
			"suspicious":  true,
		}),
	}
}

func (g *ChainGenerator) exfiltrationChain(string) []*models.Event {
	return []*models.Event{
		g.event(models.EventProcess, models.SeverityMedium, "", models.Details{
			"process_name": "tar",
			"pid":          7777,
			"hash":         "compress_data",
			"command_line": "tar -czf /tmp/data.tar.gz /var/sensitive/",
		}),
		g.event(models.EventNetwork, models.SeverityCritical, "", models.Details{
			"destination_ip":         blacklistIPs[1],
			"port":                   443,
			"protocol":               "TCP",
			"bytes":                  500000,
			"direction":              "outbound",
			"exfiltration_suspected": true,
		}),
	}
}

func (g *ChainGenerator) defaultChain(target string) []*models.Event {
	return []*models.Event{
		g.event(models.EventNetwork, models.SeverityHigh, "", models.Details{
			"destination_ip": target,
			"port":           80,
			"protocol":       "TCP",
			"bytes":          1000,
			"suspicious":     true,
		}),
	}
}

// Runner drives the background generator on a fixed interval, handing each
// event to the pipeline sink.
type Runner struct {
	generator *Generator
	interval  time.Duration
	sink      func(*models.Event)
	logger    logger.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	running bool
}

func NewRunner(gen *Generator, interval time.Duration, sink func(*models.Event), log logger.Logger) *Runner {
	return &Runner{generator: gen, interval: interval, sink: sink, logger: log}
}

// Start launches the generation loop. Starting a running runner is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.stopped = make(chan struct{})
	r.logger.Info("telemetry generator started", "interval", r.interval.String())

	go func() {
		defer close(r.stopped)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.sink(r.generator.Generate())
			}
		}
	}()
}

// Stop halts generation and waits for the loop to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	stopped := r.stopped
	r.mu.Unlock()
	<-stopped
	r.logger.Info("telemetry generator stopped")
}

// Running reports whether the loop is active, for health output.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
