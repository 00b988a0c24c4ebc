package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMASeries returns the rolling mean of values, NaN until the window fills.
func SMASeries(values []float64, period int) Series {
	return runSeries(NewSMA(period), values)
}

// rollingMean is SMASeries for inputs that may contain NaN. A window that
// contains any NaN is itself NaN.
func rollingMean(values []float64, period int) Series {
	out := make(Series, len(values))
	for i := range values {
		if i+1 < period {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[i+1-period : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}

// runSeries feeds values through ind and records NaN until it is ready.
func runSeries(ind Indicator, values []float64) Series {
	out := make(Series, len(values))
	for i, v := range values {
		ind.Update(v)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
