package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const defaultSimulationTarget = "192.168.1.100"

// ChainSource produces a scripted event chain for a named attack.
type ChainSource interface {
	Generate(chain, target string) []*models.Event
}

// ChainInjector feeds a chain through the live processing pipeline.
type ChainInjector interface {
	InjectChain(ctx context.Context, events []*models.Event) ([]*models.Incident, error)
}

type SimulationHandler struct {
	chains   ChainSource
	injector ChainInjector
	logger   logger.Logger
}

func NewSimulationHandler(chains ChainSource, injector ChainInjector, log logger.Logger) *SimulationHandler {
	return &SimulationHandler{chains: chains, injector: injector, logger: log}
}

// POST /api/simulate/attack
func (h *SimulationHandler) Attack(c *gin.Context) {
	var req models.AttackSimulationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	chain := req.Chain()
	if chain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attack_type is required"})
		return
	}
	target := req.Target
	if target == "" {
		target = defaultSimulationTarget
	}

	events := h.chains.Generate(chain, target)
	h.logger.Info("attack simulation started", "attack_type", chain, "target", target, "chain_length", len(events))

	incidents, err := h.injector.InjectChain(c.Request.Context(), events)
	if err != nil {
		h.logger.Warn("attack simulation interrupted", "attack_type", chain, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attack simulation interrupted"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "attack_simulation_completed",
		"attack_type":      chain,
		"chain_length":     len(events),
		"incident_created": len(incidents) > 0,
		"message":          fmt.Sprintf("Simulated %s attack with %d events", chain, len(events)),
	})
}
