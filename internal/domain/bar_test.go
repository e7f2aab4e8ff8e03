package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	for _, tf := range []Timeframe{M1, M5, M15, M30, H1, H4, D1, W1, MN1} {
		got, ok := ParseTimeframe(string(tf))
		assert.True(t, ok, "timeframe %s must parse", tf)
		assert.Equal(t, tf, got)
	}

	// Unrecognized input falls back to M1; ok=false tells the caller to log
	// the documented warning.
	got, ok := ParseTimeframe("H2")
	assert.False(t, ok)
	assert.Equal(t, M1, got)
}

func TestTimeframe_Duration(t *testing.T) {
	assert.Equal(t, time.Minute, M1.Duration())
	assert.Equal(t, 4*time.Hour, H4.Duration())
	assert.Equal(t, 7*24*time.Hour, W1.Duration())
}

func TestNormalizeBars_SortsAndDedupes(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bars := []Bar{
		{OpenTime: t0.Add(2 * time.Minute), Open: 1.2, High: 1.3, Low: 1.1, Close: 1.25},
		{OpenTime: t0, Open: 1.0, High: 1.1, Low: 0.9, Close: 1.05},
		{OpenTime: t0, Open: 9.9, High: 9.9, Low: 9.9, Close: 9.9}, // duplicate timestamp, dropped
		{OpenTime: t0.Add(time.Minute), Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15},
	}

	got := NormalizeBars(bars)
	require.Len(t, got, 3)
	assert.Equal(t, t0, got[0].OpenTime)
	assert.Equal(t, t0.Add(time.Minute), got[1].OpenTime)
	assert.Equal(t, t0.Add(2*time.Minute), got[2].OpenTime)
	assert.Equal(t, 1.0, got[0].Open, "first occurrence wins on duplicate timestamps")

	// Input slice is not mutated.
	assert.Equal(t, t0.Add(2*time.Minute), bars[0].OpenTime)
}

func TestNormalizeBars_CoercesHighLow(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	got := NormalizeBars([]Bar{
		{OpenTime: t0, Open: 1.20, High: 1.10, Low: 1.15, Close: 1.18},
	})
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].High, got[0].Open)
	assert.GreaterOrEqual(t, got[0].High, got[0].Close)
	assert.LessOrEqual(t, got[0].Low, got[0].Open)
	assert.LessOrEqual(t, got[0].Low, got[0].Close)
}

func TestNormalizeBars_Empty(t *testing.T) {
	assert.Empty(t, NormalizeBars(nil))
}
