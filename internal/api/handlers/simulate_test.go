package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

type fakeChainSource struct {
	lastChain  string
	lastTarget string
	events     []*models.Event
}

func (s *fakeChainSource) Generate(chain, target string) []*models.Event {
	s.lastChain = chain
	s.lastTarget = target
	return s.events
}

type fakeInjector struct {
	injected  int
	incidents []*models.Incident
	err       error
}

func (i *fakeInjector) InjectChain(_ context.Context, events []*models.Event) ([]*models.Incident, error) {
	i.injected = len(events)
	return i.incidents, i.err
}

func simulationRouter(chains *fakeChainSource, injector *fakeInjector) *gin.Engine {
	h := NewSimulationHandler(chains, injector, testLog())
	r := gin.New()
	r.POST("/api/simulate/attack", h.Attack)
	return r
}

func TestSimulateAttack(t *testing.T) {
	chains := &fakeChainSource{events: []*models.Event{{ID: "e1"}, {ID: "e2"}, {ID: "e3"}}}
	injector := &fakeInjector{incidents: []*models.Incident{{ID: "inc-1"}}}

	w := perform(simulationRouter(chains, injector), http.MethodPost, "/api/simulate/attack",
		`{"attack_type":"bruteforce","target":"10.1.2.3"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "bruteforce", chains.lastChain)
	assert.Equal(t, "10.1.2.3", chains.lastTarget)
	assert.Equal(t, 3, injector.injected)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "attack_simulation_completed", body["status"])
	assert.Equal(t, "bruteforce", body["attack_type"])
	assert.Equal(t, float64(3), body["chain_length"])
	assert.Equal(t, true, body["incident_created"])
}

func TestSimulateAttackLegacyTypeKey(t *testing.T) {
	chains := &fakeChainSource{events: []*models.Event{{ID: "e1"}}}

	w := perform(simulationRouter(chains, &fakeInjector{}), http.MethodPost, "/api/simulate/attack",
		`{"type":"malware"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "malware", chains.lastChain)
	assert.Equal(t, defaultSimulationTarget, chains.lastTarget)
}

func TestSimulateAttackMissingType(t *testing.T) {
	w := perform(simulationRouter(&fakeChainSource{}, &fakeInjector{}), http.MethodPost, "/api/simulate/attack", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimulateAttackNoIncident(t *testing.T) {
	chains := &fakeChainSource{events: []*models.Event{{ID: "e1"}}}

	w := perform(simulationRouter(chains, &fakeInjector{}), http.MethodPost, "/api/simulate/attack",
		`{"attack_type":"port_scan"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["incident_created"])
}

func TestSimulateAttackInjectionError(t *testing.T) {
	chains := &fakeChainSource{events: []*models.Event{{ID: "e1"}}}
	injector := &fakeInjector{err: context.Canceled}

	w := perform(simulationRouter(chains, injector), http.MethodPost, "/api/simulate/attack",
		`{"attack_type":"ddos"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
