package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, 0, Severity("bogus").Rank())
	assert.False(t, Severity("bogus").Valid())
}

func TestDetailsTypedAccessors(t *testing.T) {
	d := Details{
		"process":  "nc",
		"attempts": float64(6), // JSON decoding widens to float64
		"bytes":    int64(50001),
		"ratio":    0.25,
		"enabled":  true,
	}

	assert.Equal(t, "nc", d.String("process"))
	assert.Equal(t, 6, d.Int("attempts"))
	assert.Equal(t, 50001, d.Int("bytes"))
	assert.InDelta(t, 0.25, d.Float("ratio"), 1e-12)
	assert.True(t, d.Bool("enabled"))

	assert.Equal(t, "", d.String("missing"))
	assert.Equal(t, 0, d.Int("missing"))
	assert.False(t, d.Bool("missing"))
	assert.True(t, d.Has("process"))
	assert.False(t, d.Has("missing"))
}

func TestDetailsSurviveJSONRoundTrip(t *testing.T) {
	d := Details{"port": 22, "success": false}
	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var back Details
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 22, back.Int("port"))
	assert.False(t, back.Bool("success"))
}

func TestNewIDShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		require.Len(t, id, 16)
		for _, c := range id {
			require.Contains(t, "0123456789abcdef", string(c))
		}
		require.False(t, seen[id], "duplicate id generated")
		seen[id] = true
	}
}
