package indicator

// MACD spans.
const (
	MACDShort  = 12
	MACDLong   = 26
	MACDSignal = 9
	// MACDMinBars is the history needed before the signal line settles.
	MACDMinBars = 35
)

// MACDPoint is one MACD observation.
type MACDPoint struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACDValue holds the latest and previous points plus the full series.
type MACDValue struct {
	Latest   MACDPoint   `json:"latest"`
	Previous MACDPoint   `json:"previous"`
	Series   []MACDPoint `json:"series"`
}

// MACD computes the 12/26/9 MACD over oldest-first closes.
func MACD(closes []float64) (MACDValue, error) {
	if len(closes) < MACDMinBars {
		return MACDValue{}, insufficient("macd", MACDMinBars, len(closes))
	}
	short, long, signal := NewEMA(MACDShort), NewEMA(MACDLong), NewEMA(MACDSignal)
	series := make([]MACDPoint, len(closes))
	for i, c := range closes {
		short.Update(c)
		long.Update(c)
		m := short.Value() - long.Value()
		signal.Update(m)
		s := signal.Value()
		series[i] = MACDPoint{MACD: m, Signal: s, Histogram: m - s}
	}
	n := len(series)
	return MACDValue{Latest: series[n-1], Previous: series[n-2], Series: series}, nil
}
