package ml

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// FeatureNames is the fixed schema of the derived vector, in order.
var FeatureNames = []string{
	"event_type_rarity",
	"source_ip_rarity",
	"event_frequency",
	"payload_entropy",
	"severity_score",
	"hour_of_day",
	"ip_last_octet",
	"port_normalized",
	"bytes_normalized",
	"details_complexity",
}

const neutralFeature = 0.5

// CountProvider is the narrow slice of the store gateway the deriver needs.
type CountProvider interface {
	CountEvents(ctx context.Context) (int, error)
	CountEventsWithType(ctx context.Context, eventType string) (int, error)
	CountEventsWithSource(ctx context.Context, sourceIP string) (int, error)
	CountEventsSince(ctx context.Context, sourceIP string, since time.Time) (int, error)
}

// Deriver turns raw events into feature vectors, pulling cardinalities from
// the store through CountProvider.
type Deriver struct {
	counts CountProvider
	logger logger.Logger
}

func NewDeriver(counts CountProvider, log logger.Logger) *Deriver {
	return &Deriver{counts: counts, logger: log}
}

// Derive computes the 10-element feature vector for an event and returns it
// with the context sub-mapping so scoring never re-queries the store.
// Unavailable components degrade to the neutral value.
func (d *Deriver) Derive(ctx context.Context, event *models.Event) ([]float64, *models.MLContext) {
	typeRarity := d.rarity(ctx, func() (int, error) {
		return d.counts.CountEventsWithType(ctx, event.Type)
	})
	ipRarity := d.rarity(ctx, func() (int, error) {
		return d.counts.CountEventsWithSource(ctx, event.SourceIP)
	})

	frequency := 0
	if n, err := d.counts.CountEventsSince(ctx, event.SourceIP, time.Now().UTC().Add(-5*time.Minute)); err == nil {
		frequency = n
	} else {
		d.logger.Debug("event frequency unavailable", "error", err)
	}

	entropy := Entropy(event.Details.Flatten())
	mlCtx := &models.MLContext{
		EventFrequency: frequency,
		TypeRarity:     typeRarity,
		IPRarity:       ipRarity,
		PayloadEntropy: entropy,
	}

	return VectorFromContext(event, mlCtx), mlCtx
}

// VectorFromContext assembles the feature vector from an event plus its
// pre-computed context. Used both by Derive and by prediction on events
// that already carry a context.
func VectorFromContext(event *models.Event, mlCtx *models.MLContext) []float64 {
	typeRarity, ipRarity := neutralFeature, neutralFeature
	frequency, entropy := 0, neutralFeature
	if mlCtx != nil {
		typeRarity = mlCtx.TypeRarity
		ipRarity = mlCtx.IPRarity
		frequency = mlCtx.EventFrequency
		entropy = mlCtx.PayloadEntropy
	}

	return []float64{
		typeRarity,
		ipRarity,
		math.Min(float64(frequency)/100.0, 1.0),
		entropy,
		event.Severity.Score(),
		hourNorm(event.Timestamp),
		lastOctetNorm(event.SourceIP),
		math.Min(float64(event.Details.Int("port"))/65535.0, 1.0),
		math.Min(float64(event.Details.Int("bytes"))/100000.0, 1.0),
		math.Min(float64(len(event.Details.Flatten()))/1000.0, 1.0),
	}
}

// rarity is 1 - count/total; on any store error it degrades to neutral.
func (d *Deriver) rarity(ctx context.Context, count func() (int, error)) float64 {
	total, err := d.counts.CountEvents(ctx)
	if err != nil || total == 0 {
		return neutralFeature
	}
	n, err := count()
	if err != nil {
		return neutralFeature
	}
	r := 1.0 - float64(n)/float64(total)
	if r < 0 {
		return 0
	}
	return r
}

func hourNorm(t time.Time) float64 {
	if t.IsZero() {
		return neutralFeature
	}
	return float64(t.UTC().Hour()) / 24.0
}

func lastOctetNorm(ip string) float64 {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return neutralFeature
	}
	octet, err := strconv.Atoi(parts[3])
	if err != nil || octet < 0 || octet > 255 {
		return neutralFeature
	}
	return float64(octet) / 255.0
}

// Entropy returns the Shannon entropy of a string normalized by the log2 of
// its effective alphabet size, clamped to [0, 1]. High values suggest
// encrypted or encoded payloads.
func Entropy(data string) float64 {
	if data == "" {
		return 0
	}

	freq := make(map[rune]int)
	total := 0
	for _, r := range data {
		freq[r]++
		total++
	}

	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}

	alphabet := len(freq)
	if alphabet > 256 {
		alphabet = 256
	}
	maxEntropy := math.Log2(float64(alphabet))
	if maxEntropy <= 0 {
		return 0
	}
	return math.Min(entropy/maxEntropy, 1.0)
}
