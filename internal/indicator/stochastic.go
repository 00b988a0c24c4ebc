package indicator

import (
	"encoding/json"
	"math"

	"autotrader/internal/model"
)

// Slow stochastic parameters.
const (
	StochN = 12 // %K_raw look-back
	StochM = 5  // %K smoothing
	StochT = 3  // %D smoothing
	// StochMinBars is the history required for a defined %D and its predecessor.
	StochMinBars = 20
)

// StochasticPoint is one slow-stochastic observation. NaN marks an undefined
// value (flat high/low range or warm-up).
type StochasticPoint struct {
	Date string
	KRaw float64
	K    float64
	D    float64
}

// MarshalJSON writes undefined values as null.
func (p StochasticPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"date":      p.Date,
		"k_raw":     nullable(p.KRaw),
		"percent_k": nullable(p.K),
		"percent_d": nullable(p.D),
	})
}

// Defined reports whether both %K and %D are defined.
func (p StochasticPoint) Defined() bool {
	return !math.IsNaN(p.K) && !math.IsNaN(p.D)
}

// StochasticValue holds the latest and previous points plus the series.
type StochasticValue struct {
	Latest   StochasticPoint   `json:"latest"`
	Previous StochasticPoint   `json:"previous"`
	Series   []StochasticPoint `json:"series"`
}

// SlowStochastic computes the 12/5/3 slow stochastic. Bars are sorted by date
// before computation.
func SlowStochastic(bars []model.PriceBar) (StochasticValue, error) {
	if len(bars) < StochMinBars {
		return StochasticValue{}, insufficient("stochastic", StochMinBars, len(bars))
	}
	bars = model.SortBars(bars)

	raw := make([]float64, len(bars))
	for i := range bars {
		raw[i] = math.NaN()
		if i+1 < StochN {
			continue
		}
		hh, ll := math.Inf(-1), math.Inf(1)
		for _, b := range bars[i+1-StochN : i+1] {
			hh = math.Max(hh, float64(b.High))
			ll = math.Min(ll, float64(b.Low))
		}
		if hh == ll {
			continue
		}
		raw[i] = (float64(bars[i].Close) - ll) / (hh - ll) * 100
	}
	k := rollingMean(raw, StochM)
	d := rollingMean(k, StochT)

	series := make([]StochasticPoint, len(bars))
	for i, b := range bars {
		series[i] = StochasticPoint{Date: b.Date, KRaw: raw[i], K: k[i], D: d[i]}
	}
	n := len(series)
	return StochasticValue{Latest: series[n-1], Previous: series[n-2], Series: series}, nil
}
