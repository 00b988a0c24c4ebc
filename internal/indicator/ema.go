package indicator

// EMA calculates an Exponential Moving Average seeded from the first value.
// O(1) per update.
type EMA struct {
	alpha      float64
	minPeriods int
	current    float64
	count      int
}

// NewEMA creates an EMA over the given span, weight 2/(span+1). A value is
// available from the first observation.
func NewEMA(span int) *EMA {
	return &EMA{alpha: 2.0 / float64(span+1), minPeriods: 1}
}

// NewEMAAlpha creates an EMA with an explicit smoothing factor that reports
// Ready only after minPeriods observations.
func NewEMAAlpha(alpha float64, minPeriods int) *EMA {
	if minPeriods < 1 {
		minPeriods = 1
	}
	return &EMA{alpha: alpha, minPeriods: minPeriods}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	// EMA = (v * alpha) + (EMA_prev * (1 - alpha))
	e.current = (v * e.alpha) + (e.current * (1 - e.alpha))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.minPeriods }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// EMASeries returns the first-value-seeded EMA of values.
func EMASeries(values []float64, span int) Series {
	return runSeries(NewEMA(span), values)
}
