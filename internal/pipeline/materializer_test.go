package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/ml"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/response"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

type stubCounts struct{}

func (stubCounts) CountEvents(context.Context) (int, error)                   { return 100, nil }
func (stubCounts) CountEventsWithType(context.Context, string) (int, error)   { return 25, nil }
func (stubCounts) CountEventsWithSource(context.Context, string) (int, error) { return 10, nil }
func (stubCounts) CountEventsSince(context.Context, string, time.Time) (int, error) {
	return 3, nil
}

type fakeScorer struct {
	score   float64
	flagged bool
}

func (f fakeScorer) Predict(*models.Event) (float64, bool) { return f.score, f.flagged }

type fakeRules struct {
	detection models.Detection
}

func (f fakeRules) Analyze(*models.Event) models.Detection { return f.detection }

type fakeCapturer struct{}

func (fakeCapturer) Capture(event *models.Event, threatType models.ThreatType, severity models.Severity) *models.Snapshot {
	return &models.Snapshot{
		SnapshotID:   models.NewID(),
		CapturedAt:   time.Now().UTC(),
		IncidentType: threatType,
		TriggerEvent: models.TriggerEvent{ID: event.ID, Type: event.Type, SourceIP: event.SourceIP, Severity: severity},
	}
}

func (fakeCapturer) Narrative() string { return "" }

type fakeStore struct {
	mu        sync.Mutex
	events    []*models.Event
	incidents []*models.Incident
	reports   []*models.ForensicReport
	failAll   bool
}

func (f *fakeStore) InsertEvent(_ context.Context, ev *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return assert.AnError
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) InsertIncident(_ context.Context, inc *models.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return assert.AnError
	}
	f.incidents = append(f.incidents, inc)
	return nil
}

func (f *fakeStore) InsertReport(_ context.Context, rep *models.ForensicReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return assert.AnError
	}
	f.reports = append(f.reports, rep)
	return nil
}

type fakeHub struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeHub) Broadcast(messageType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messageType)
}

type fakeResponder struct {
	mu      sync.Mutex
	invoked []string
}

func (f *fakeResponder) ExecuteResponse(_ context.Context, incident *models.Incident, _ *models.Event) []response.ActionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, incident.ID)
	return []response.ActionResult{{Action: "escalate_notification", Status: "escalated"}}
}

func newTestMaterializer(scorer Scorer, rules Analyzer, store *fakeStore, hub *fakeHub, responder *fakeResponder) *Materializer {
	log := logger.New("error")
	return NewMaterializer(ml.NewDeriver(stubCounts{}, log), scorer, rules, fakeCapturer{}, store, hub, responder, log)
}

func networkEvent() *models.Event {
	return &models.Event{
		ID:        models.NewID(),
		Timestamp: time.Now().UTC(),
		Type:      models.EventNetwork,
		SourceIP:  "192.168.1.55",
		Severity:  models.SeverityLow,
		Details:   models.Details{"destination_ip": "10.0.0.1", "port": 443, "bytes": 1200},
	}
}

func TestProcessBenignEventPersistsAndBroadcasts(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	m := newTestMaterializer(fakeScorer{score: 0.2}, fakeRules{detection: models.NoThreat()}, store, hub, &fakeResponder{})

	event := networkEvent()
	incident := m.Process(context.Background(), event)

	assert.Nil(t, incident)
	require.Len(t, store.events, 1)
	assert.Empty(t, store.incidents)
	assert.Equal(t, []string{models.WSNewEvent}, hub.messages)
	// enrichment lands on the event itself
	require.NotNil(t, event.MLContext)
	assert.InDelta(t, 0.2, event.AnomalyScore, 1e-9)
	assert.False(t, event.MLFlagged)
}

func TestProcessThreatMaterializesIncidentAndReport(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	detection := models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatPortScan,
		Severity:    models.SeverityHigh,
		Description: "Port scan detected from 192.168.1.55",
		Confidence:  0.85,
		Indicators:  []string{"11 distinct ports probed"},
	}
	m := newTestMaterializer(fakeScorer{score: 0.3}, fakeRules{detection: detection}, store, hub, &fakeResponder{})

	event := networkEvent()
	incident := m.Process(context.Background(), event)

	require.NotNil(t, incident)
	assert.Len(t, incident.ID, 16)
	assert.Equal(t, models.ThreatPortScan, incident.ThreatType)
	assert.Equal(t, models.StatusActive, incident.Status)
	assert.Equal(t, event.ID, incident.EventID)
	assert.Equal(t, event.SourceIP, incident.SourceIP)

	require.Len(t, store.incidents, 1)
	require.Len(t, store.reports, 1)
	assert.Equal(t, incident.ID, store.reports[0].IncidentID)
	require.NotNil(t, store.reports[0].Snapshot)
	assert.Equal(t, event.ID, store.reports[0].Snapshot.TriggerEvent.ID)

	// incident broadcast precedes the event broadcast
	assert.Equal(t, []string{models.WSNewIncident, models.WSNewEvent}, hub.messages)
}

func TestProcessCriticalTriggersResponse(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	responder := &fakeResponder{}
	detection := models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatMalware,
		Severity:    models.SeverityCritical,
		Description: "Malicious process detected",
		Confidence:  0.9,
	}
	m := newTestMaterializer(fakeScorer{}, fakeRules{detection: detection}, store, hub, responder)

	incident := m.Process(context.Background(), networkEvent())

	require.NotNil(t, incident)
	assert.Equal(t, []string{models.WSCriticalAlert, models.WSNewEvent}, hub.messages)
	require.Len(t, responder.invoked, 1)
	assert.Equal(t, incident.ID, responder.invoked[0])
}

func TestProcessMLOnlyAnomalyEscalates(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	m := newTestMaterializer(fakeScorer{score: 0.91, flagged: true}, fakeRules{detection: models.NoThreat()}, store, hub, &fakeResponder{})

	incident := m.Process(context.Background(), networkEvent())

	require.NotNil(t, incident)
	assert.Equal(t, models.ThreatMLAnomaly, incident.ThreatType)
	assert.Equal(t, models.SeverityHigh, incident.Severity)
	assert.InDelta(t, 0.91, incident.Confidence, 1e-9)
	assert.Contains(t, incident.Description, "0.91")
	assert.NotEmpty(t, incident.Indicators)
}

func TestProcessRuleThreatWinsOverMLEscalation(t *testing.T) {
	detection := models.Detection{
		IsThreat:   true,
		ThreatType: models.ThreatBruteforce,
		Severity:   models.SeverityHigh,
		Confidence: 0.7,
	}
	store := &fakeStore{}
	m := newTestMaterializer(fakeScorer{score: 0.95, flagged: true}, fakeRules{detection: detection}, store, &fakeHub{}, &fakeResponder{})

	incident := m.Process(context.Background(), networkEvent())

	require.NotNil(t, incident)
	assert.Equal(t, models.ThreatBruteforce, incident.ThreatType)
	// the model enrichment still lands on the incident
	assert.True(t, incident.MLFlagged)
	assert.InDelta(t, 0.95, incident.AnomalyScore, 1e-9)
}

func TestProcessStoreFailureStillBroadcasts(t *testing.T) {
	store := &fakeStore{failAll: true}
	hub := &fakeHub{}
	detection := models.Detection{
		IsThreat:   true,
		ThreatType: models.ThreatSQLInjection,
		Severity:   models.SeverityHigh,
		Confidence: 0.88,
	}
	m := newTestMaterializer(fakeScorer{}, fakeRules{detection: detection}, store, hub, &fakeResponder{})

	incident := m.Process(context.Background(), networkEvent())

	require.NotNil(t, incident)
	assert.Equal(t, []string{models.WSNewIncident, models.WSNewEvent}, hub.messages)
}

func TestInjectChainProcessesAllEvents(t *testing.T) {
	store := &fakeStore{}
	m := newTestMaterializer(fakeScorer{}, fakeRules{detection: models.NoThreat()}, store, &fakeHub{}, &fakeResponder{})

	events := []*models.Event{networkEvent(), networkEvent(), networkEvent()}
	start := time.Now()
	incidents, err := m.InjectChain(context.Background(), events)

	require.NoError(t, err)
	assert.Empty(t, incidents)
	assert.Len(t, store.events, 3)
	// two inter-event delays
	assert.GreaterOrEqual(t, time.Since(start), 2*chainInjectionDelay)
}

func TestInjectChainStopsOnCancellation(t *testing.T) {
	store := &fakeStore{}
	m := newTestMaterializer(fakeScorer{}, fakeRules{detection: models.NoThreat()}, store, &fakeHub{}, &fakeResponder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := []*models.Event{networkEvent(), networkEvent()}
	_, err := m.InjectChain(ctx, events)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, store.events, 1)
}
