package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/ml"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/internal/response"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// chainInjectionDelay spaces replayed attack-chain events so the detector
// windows observe them as a burst rather than a single instant.
const chainInjectionDelay = 300 * time.Millisecond

// EventStore is the persistence slice the materializer needs.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.Event) error
	InsertIncident(ctx context.Context, inc *models.Incident) error
	InsertReport(ctx context.Context, rep *models.ForensicReport) error
}

// Broadcaster pushes pipeline outcomes to live subscribers.
type Broadcaster interface {
	Broadcast(messageType string, data interface{})
}

// Responder runs the automated containment fan-out for critical incidents.
type Responder interface {
	ExecuteResponse(ctx context.Context, incident *models.Incident, event *models.Event) []response.ActionResult
}

// Scorer is the anomaly model surface used per event.
type Scorer interface {
	Predict(event *models.Event) (float64, bool)
}

// Analyzer is the rule engine surface used per event.
type Analyzer interface {
	Analyze(event *models.Event) models.Detection
}

// Capturer builds the forensic snapshot attached to a new incident.
// Narrative is the pre-baked analyst summary, empty unless the capturer runs
// in presentation mode.
type Capturer interface {
	Capture(event *models.Event, threatType models.ThreatType, severity models.Severity) *models.Snapshot
	Narrative() string
}

// Materializer drives a single event through derive, score, rule-evaluate,
// persist, incident materialization, forensics, broadcast and response. Every
// step is contained: a failure is logged and the remaining steps still run.
type Materializer struct {
	deriver   *ml.Deriver
	scorer    Scorer
	rules     Analyzer
	forensics Capturer
	store     EventStore
	hub       Broadcaster
	responder Responder
	logger    logger.Logger
}

func NewMaterializer(
	deriver *ml.Deriver,
	scorer Scorer,
	rules Analyzer,
	capturer Capturer,
	store EventStore,
	hub Broadcaster,
	responder Responder,
	log logger.Logger,
) *Materializer {
	return &Materializer{
		deriver:   deriver,
		scorer:    scorer,
		rules:     rules,
		forensics: capturer,
		store:     store,
		hub:       hub,
		responder: responder,
		logger:    log,
	}
}

// Process runs the full pipeline for one event and returns the incident it
// materialized, if any. Events are processed serially by the caller.
func (m *Materializer) Process(ctx context.Context, event *models.Event) *models.Incident {
	if event == nil {
		return nil
	}

	// 1. derive features, attached as context sub-mapping
	_, mlCtx := m.deriver.Derive(ctx, event)
	event.MLContext = mlCtx

	// 2. anomaly score
	score, flagged := m.scorer.Predict(event)
	event.AnomalyScore = score
	event.MLFlagged = flagged

	// 3. rule evaluation
	detection := m.rules.Analyze(event)

	// 4. model-only escalation when no rule fired
	if flagged && !detection.IsThreat {
		detection = m.escalateAnomaly(event, score)
	}

	// 5. persist the enriched event; store failure does not block broadcast
	if err := m.store.InsertEvent(ctx, event); err != nil {
		m.logger.Error("event persistence failed", "event_id", event.ID, "error", err)
	}

	var incident *models.Incident
	if detection.IsThreat {
		incident = m.materializeIncident(ctx, event, detection)
	}

	// 7. the enriched event always reaches subscribers last
	m.hub.Broadcast(models.WSNewEvent, event)
	monitoring.EventsProcessedTotal.WithLabelValues(event.Type, string(event.Severity)).Inc()
	return incident
}

// InjectChain replays a scripted attack chain through the pipeline with the
// burst cadence the detector windows expect. Cancellation stops between
// events.
func (m *Materializer) InjectChain(ctx context.Context, events []*models.Event) ([]*models.Incident, error) {
	var incidents []*models.Incident
	for i, event := range events {
		if i > 0 {
			select {
			case <-ctx.Done():
				return incidents, ctx.Err()
			case <-time.After(chainInjectionDelay):
			}
		}
		if incident := m.Process(ctx, event); incident != nil {
			incidents = append(incidents, incident)
		}
	}
	return incidents, nil
}

func (m *Materializer) escalateAnomaly(event *models.Event, score float64) models.Detection {
	freq := 0
	typeRarity, ipRarity := 0.0, 0.0
	if event.MLContext != nil {
		freq = event.MLContext.EventFrequency
		typeRarity = event.MLContext.TypeRarity
		ipRarity = event.MLContext.IPRarity
	}
	return models.Detection{
		IsThreat:    true,
		ThreatType:  models.ThreatMLAnomaly,
		Severity:    models.SeverityHigh,
		Description: fmt.Sprintf("ML anomaly detected (score: %.2f)", score),
		Confidence:  score,
		Indicators: []string{
			fmt.Sprintf("Anomaly score: %.2f", score),
			fmt.Sprintf("Event frequency: %d in 5min", freq),
			fmt.Sprintf("Type rarity: %.2f", typeRarity),
			fmt.Sprintf("IP rarity: %.2f", ipRarity),
		},
	}
}

// materializeIncident binds a detection to a fresh incident, captures and
// persists its forensic report, broadcasts, and fans out the automated
// response for critical findings.
func (m *Materializer) materializeIncident(ctx context.Context, event *models.Event, detection models.Detection) *models.Incident {
	now := time.Now().UTC()
	incident := &models.Incident{
		ID:           models.NewID(),
		ThreatType:   detection.ThreatType,
		Status:       models.StatusActive,
		Severity:     detection.Severity,
		Description:  detection.Description,
		Confidence:   detection.Confidence,
		Indicators:   detection.Indicators,
		EventID:      event.ID,
		SourceIP:     event.SourceIP,
		AnomalyScore: event.AnomalyScore,
		MLFlagged:    event.MLFlagged,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.InsertIncident(ctx, incident); err != nil {
		m.logger.Error("incident persistence failed", "incident_id", incident.ID, "error", err)
	}

	snapshot := m.forensics.Capture(event, detection.ThreatType, detection.Severity)
	report := &models.ForensicReport{
		ID:            models.NewID(),
		IncidentID:    incident.ID,
		Snapshot:      snapshot,
		GeminiSummary: m.forensics.Narrative(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.InsertReport(ctx, report); err != nil {
		m.logger.Error("forensic report persistence failed", "incident_id", incident.ID, "error", err)
	}

	if incident.Severity == models.SeverityCritical {
		m.hub.Broadcast(models.WSCriticalAlert, incident)
	} else {
		m.hub.Broadcast(models.WSNewIncident, incident)
	}

	if incident.Severity == models.SeverityCritical && m.responder != nil {
		actions := m.responder.ExecuteResponse(ctx, incident, event)
		m.logger.Info("automated response executed",
			"incident_id", incident.ID, "actions", len(actions))
	}

	monitoring.IncidentsOpenedTotal.WithLabelValues(string(incident.ThreatType), string(incident.Severity)).Inc()
	m.logger.Info("incident materialized",
		"incident_id", incident.ID,
		"threat_type", incident.ThreatType,
		"severity", incident.Severity,
		"source_ip", incident.SourceIP)
	return incident
}
