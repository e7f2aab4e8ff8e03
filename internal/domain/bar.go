package domain

import (
	"sort"
	"time"
)

// Timeframe is the closed vocabulary of supported chart periods.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
	MN1 Timeframe = "MN1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
	W1:  7 * 24 * time.Hour,
	MN1: 30 * 24 * time.Hour,
}

// ParseTimeframe maps external input onto the timeframe vocabulary.
// ok is false for unrecognized input; the documented fallback to M1 (with a
// logged warning) is the caller's responsibility since the domain has no
// logging sink.
func ParseTimeframe(s string) (Timeframe, bool) {
	tf := Timeframe(s)
	if _, known := timeframeDurations[tf]; known {
		return tf, true
	}
	return M1, false
}

// Duration returns the wall-clock length of one bar of this timeframe.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := timeframeDurations[tf]; ok {
		return d
	}
	return time.Minute
}

// Bar is a single OHLCV candlestick.
type Bar struct {
	OpenTime  time.Time
	Symbol    string
	Timeframe Timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// NormalizeBars returns the series sorted ascending by open time with
// duplicate timestamps dropped (first occurrence wins) and high/low coerced to
// bound open and close. Venue output is not trusted to satisfy any of this.
func NormalizeBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return bars
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })

	deduped := out[:1]
	for _, b := range out[1:] {
		if b.OpenTime.Equal(deduped[len(deduped)-1].OpenTime) {
			continue
		}
		deduped = append(deduped, b)
	}

	for i := range deduped {
		b := &deduped[i]
		if b.Open > b.High {
			b.High = b.Open
		}
		if b.Close > b.High {
			b.High = b.Close
		}
		if b.Open < b.Low || b.Low == 0 {
			b.Low = b.Open
		}
		if b.Close < b.Low {
			b.Low = b.Close
		}
	}
	return deduped
}
