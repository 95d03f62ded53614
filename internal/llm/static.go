package llm

import (
	"context"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

// StaticSummarizer answers every summary request with a fixed narrative.
// Used in demo mode so presentations do not depend on an external API.
type StaticSummarizer struct {
	narrative string
}

func NewStaticSummarizer(narrative string) *StaticSummarizer {
	return &StaticSummarizer{narrative: narrative}
}

func (s *StaticSummarizer) SummarizeIncident(ctx context.Context, incident *models.Incident, snapshot *models.Snapshot) (string, error) {
	return s.narrative, nil
}
