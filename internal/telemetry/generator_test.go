package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

func TestGenerateProducesWellFormedEvents(t *testing.T) {
	g := NewSeededGenerator(1)
	for i := 0; i < 500; i++ {
		ev := g.Generate()
		require.Len(t, ev.ID, 16)
		assert.Contains(t, []string{models.EventOS, models.EventLogin, models.EventProcess, models.EventNetwork}, ev.Type)
		assert.True(t, ev.Severity.Valid(), "severity %q", ev.Severity)
		assert.NotEmpty(t, ev.SourceIP)
		assert.NotEmpty(t, ev.Details)
		assert.Zero(t, ev.AnomalyScore)
		assert.False(t, ev.MLFlagged)
	}
}

func TestGenerateSeverityDistribution(t *testing.T) {
	g := NewSeededGenerator(7)
	counts := map[models.Severity]int{}
	const n = 5000
	for i := 0; i < n; i++ {
		counts[g.Generate().Severity]++
	}
	// Low and medium dominate; critical stays rare. Wide tolerances keep
	// this stable across rand implementations.
	assert.Greater(t, counts[models.SeverityLow], n/4)
	assert.Greater(t, counts[models.SeverityMedium], n/4)
	assert.Less(t, counts[models.SeverityCritical], n/10)
}

func TestGenerateDetailFieldsPerKind(t *testing.T) {
	g := NewSeededGenerator(3)
	seen := map[string]bool{}
	for i := 0; i < 200 && len(seen) < 4; i++ {
		ev := g.Generate()
		if seen[ev.Type] {
			continue
		}
		seen[ev.Type] = true
		switch ev.Type {
		case models.EventLogin:
			assert.True(t, ev.Details.Has("username"))
			assert.True(t, ev.Details.Has("success"))
			assert.True(t, ev.Details.Has("method"))
		case models.EventProcess:
			assert.True(t, ev.Details.Has("process_name"))
			assert.True(t, ev.Details.Has("pid"))
			assert.True(t, ev.Details.Has("hash"))
		case models.EventNetwork:
			assert.True(t, ev.Details.Has("destination_ip"))
			assert.True(t, ev.Details.Has("port"))
			assert.True(t, ev.Details.Has("bytes"))
		case models.EventOS:
			assert.True(t, ev.Details.Has("action"))
			assert.True(t, ev.Details.Has("path"))
		}
	}
	require.Len(t, seen, 4, "all four kinds should appear in 200 draws")
}

func TestBruteforceChainShape(t *testing.T) {
	g := NewChainGenerator()
	events := g.Generate("bruteforce", "")
	require.Len(t, events, 7)

	attacker := events[0].SourceIP
	for i, ev := range events {
		assert.Equal(t, models.EventLogin, ev.Type)
		assert.Equal(t, attacker, ev.SourceIP, "all stages come from one attacker")
		if i < 6 {
			assert.False(t, ev.Details.Bool("success"))
		}
	}
	last := events[6]
	assert.True(t, last.Details.Bool("success"))
	assert.Equal(t, models.SeverityCritical, last.Severity)
}

func TestChainAliases(t *testing.T) {
	g := NewChainGenerator()
	assert.Len(t, g.Generate("brute_force", ""), 7)
	assert.Len(t, g.Generate("malware_detection", ""), 3)
	assert.Len(t, g.Generate("data_exfiltration", ""), 2)
}

func TestUnknownChainFallsBack(t *testing.T) {
	g := NewChainGenerator()
	events := g.Generate("zero_day_mystery", "192.168.1.42")
	require.Len(t, events, 1)
	assert.Equal(t, models.EventNetwork, events[0].Type)
	assert.Equal(t, "192.168.1.42", events[0].Details.String("destination_ip"))
	assert.True(t, events[0].Details.Bool("suspicious"))
}

func TestPortScanChainCoversDistinctPorts(t *testing.T) {
	g := NewChainGenerator()
	events := g.Generate("port_scan", "192.168.1.100")
	require.Len(t, events, 10)
	ports := map[int]bool{}
	for _, ev := range events {
		ports[ev.Details.Int("port")] = true
		assert.Equal(t, models.EventNetwork, ev.Type)
		assert.Equal(t, "192.168.1.100", ev.Details.String("destination_ip"))
	}
	assert.Len(t, ports, 10, "every common service port is hit exactly once")
	for _, want := range []int{22, 23, 80, 443, 445, 3306, 3389, 5432, 8080, 8443} {
		assert.True(t, ports[want], "port %d missing from scan", want)
	}
}

func TestRunnerStartStop(t *testing.T) {
	var mu sync.Mutex
	var got int
	sink := func(*models.Event) {
		mu.Lock()
		got++
		mu.Unlock()
	}

	r := NewRunner(NewSeededGenerator(9), 10*time.Millisecond, sink, logger.New("error"))
	r.Start()
	r.Start() // second start is a no-op
	assert.True(t, r.Running())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got >= 3
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
}
