package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/ml"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const trainingSampleLimit = 500

// AnomalyModel is the trainable detector surface.
type AnomalyModel interface {
	Train(ctx context.Context, events []models.Event) (*ml.TrainResult, error)
	Status() ml.Status
	Serialize() ([]byte, error)
}

// ModelStore persists the serialized model between restarts.
type ModelStore interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	SaveModelBlob(ctx context.Context, blob []byte) error
}

type MLHandler struct {
	model  AnomalyModel
	store  ModelStore
	logger logger.Logger
}

func NewMLHandler(model AnomalyModel, store ModelStore, log logger.Logger) *MLHandler {
	return &MLHandler{model: model, store: store, logger: log}
}

// POST /api/ml/train
func (h *MLHandler) Train(c *gin.Context) {
	ctx := c.Request.Context()

	events, err := h.store.ListEvents(ctx, models.EventFilter{Limit: trainingSampleLimit})
	if err != nil {
		h.logger.Error("training data fetch failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "training data fetch failed"})
		return
	}

	result, err := h.model.Train(ctx, events)
	if err != nil {
		var insufficient *ml.InsufficientSamplesError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusOK, gin.H{
				"status":        "error",
				"error":         "Not enough data to train model",
				"min_required":  insufficient.MinRequired,
				"current_count": insufficient.CurrentCount,
			})
			return
		}
		h.logger.Error("model training failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model training failed"})
		return
	}

	if blob, err := h.model.Serialize(); err != nil {
		h.logger.Warn("model serialization failed", "error", err)
	} else if err := h.store.SaveModelBlob(ctx, blob); err != nil {
		h.logger.Warn("model persistence failed", "error", err)
	}

	h.logger.Info("model trained", "samples", result.Samples, "threshold", result.Threshold)
	c.JSON(http.StatusOK, gin.H{
		"status":              "trained",
		"samples":             result.Samples,
		"features_per_sample": result.FeaturesPerSample,
		"feature_names":       result.FeatureNames,
		"contamination":       result.Contamination,
		"threshold":           result.Threshold,
	})
}

// GET /api/ml/status
func (h *MLHandler) Status(c *gin.Context) {
	status := h.model.Status()
	c.JSON(http.StatusOK, gin.H{
		"is_trained":       status.Trained,
		"training_samples": status.Samples,
		"threshold":        status.Threshold,
		"contamination":    status.Contamination,
		"feature_names":    status.FeatureNames,
	})
}
