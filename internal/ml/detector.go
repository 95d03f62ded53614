package ml

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// MinTrainingSamples is the floor below which training is refused.
const MinTrainingSamples = 10

// InsufficientSamplesError reports a refused training run with the counts
// the API surfaces to the caller.
type InsufficientSamplesError struct {
	MinRequired  int `json:"min_required"`
	CurrentCount int `json:"current_count"`
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("not enough data to train model: have %d, need %d", e.CurrentCount, e.MinRequired)
}

// fitted is the immutable trained state. Predict reads it through an atomic
// pointer; Train swaps in a replacement wholesale.
type fitted struct {
	Forest  *IsolationForest
	Scaler  *StandardScaler
	Samples int
	Schema  []string
}

// TrainResult summarizes a successful training run.
type TrainResult struct {
	Samples           int      `json:"samples"`
	FeaturesPerSample int      `json:"features_per_sample"`
	FeatureNames      []string `json:"feature_names"`
	Contamination     float64  `json:"contamination"`
	Threshold         float64  `json:"threshold"`
}

// Status reports the detector's current state for the status endpoint.
type Status struct {
	Trained       bool     `json:"trained"`
	Samples       int      `json:"training_samples"`
	Threshold     float64  `json:"threshold"`
	Contamination float64  `json:"contamination"`
	FeatureNames  []string `json:"feature_names"`
}

// Detector is the anomaly model: a z-score scaler plus an isolation forest,
// trained on baseline telemetry.
type Detector struct {
	deriver       *Deriver
	threshold     float64
	contamination float64
	state         atomic.Pointer[fitted]
	logger        logger.Logger
}

func NewDetector(deriver *Deriver, threshold, contamination float64, log logger.Logger) *Detector {
	return &Detector{
		deriver:       deriver,
		threshold:     threshold,
		contamination: contamination,
		logger:        log,
	}
}

// Train fits scaler and forest on the given baseline events and swaps the
// model in atomically. Fewer than 10 usable vectors is an error.
func (d *Detector) Train(ctx context.Context, events []models.Event) (*TrainResult, error) {
	if len(events) < MinTrainingSamples {
		return nil, &InsufficientSamplesError{MinRequired: MinTrainingSamples, CurrentCount: len(events)}
	}

	var matrix [][]float64
	for i := range events {
		vector, mlCtx := d.deriver.Derive(ctx, &events[i])
		events[i].MLContext = mlCtx
		matrix = append(matrix, vector)
	}
	if len(matrix) < MinTrainingSamples {
		return nil, &InsufficientSamplesError{MinRequired: MinTrainingSamples, CurrentCount: len(matrix)}
	}

	scaler, err := fitScaler(matrix)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	forest, err := fitForest(scaler.TransformAll(matrix), d.contamination)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	d.state.Store(&fitted{
		Forest:  forest,
		Scaler:  scaler,
		Samples: len(matrix),
		Schema:  FeatureNames,
	})
	d.logger.Info("anomaly model trained", "samples", len(matrix), "contamination", d.contamination)

	return &TrainResult{
		Samples:           len(matrix),
		FeaturesPerSample: len(FeatureNames),
		FeatureNames:      FeatureNames,
		Contamination:     d.contamination,
		Threshold:         d.threshold,
	}, nil
}

// Predict scores an event using its pre-computed context. An untrained
// detector returns (0, false); prediction never fails the pipeline.
func (d *Detector) Predict(event *models.Event) (float64, bool) {
	state := d.state.Load()
	if state == nil {
		return 0, false
	}

	vector := VectorFromContext(event, event.MLContext)
	raw := state.Forest.Score(state.Scaler.Transform(vector))

	// Sigmoid over the negated decision value: anomalies (negative raw) map
	// above 0.5, normal points below.
	score := 1.0 / (1.0 + math.Exp(raw))
	flagged := score >= d.threshold
	if flagged {
		monitoring.MLPredictionsTotal.WithLabelValues("flagged").Inc()
	} else {
		monitoring.MLPredictionsTotal.WithLabelValues("normal").Inc()
	}
	return score, flagged
}

// Trained reports whether a model is loaded.
func (d *Detector) Trained() bool {
	return d.state.Load() != nil
}

// Status returns the current model descriptor.
func (d *Detector) Status() Status {
	s := Status{
		Threshold:     d.threshold,
		Contamination: d.contamination,
		FeatureNames:  FeatureNames,
	}
	if state := d.state.Load(); state != nil {
		s.Trained = true
		s.Samples = state.Samples
	}
	return s
}

// modelBlob is the serialized form stored through the gateway.
type modelBlob struct {
	Forest  *IsolationForest
	Scaler  *StandardScaler
	Samples int
	Schema  []string
}

// Serialize encodes the current model to an opaque blob. Encoding is
// deterministic for a given model, so save/load/save round-trips are
// byte-identical.
func (d *Detector) Serialize() ([]byte, error) {
	state := d.state.Load()
	if state == nil {
		return nil, fmt.Errorf("no trained model to serialize")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(modelBlob{
		Forest:  state.Forest,
		Scaler:  state.Scaler,
		Samples: state.Samples,
		Schema:  state.Schema,
	}); err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore loads a previously serialized model and swaps it in.
func (d *Detector) Restore(blob []byte) error {
	var decoded modelBlob
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&decoded); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if decoded.Forest == nil || decoded.Scaler == nil {
		return fmt.Errorf("decode model: missing forest or scaler")
	}
	d.state.Store(&fitted{
		Forest:  decoded.Forest,
		Scaler:  decoded.Scaler,
		Samples: decoded.Samples,
		Schema:  decoded.Schema,
	})
	d.logger.Info("anomaly model restored", "samples", decoded.Samples)
	return nil
}
