// Package indicator provides technical indicator calculations over daily
// price bars.
//
// Streaming building blocks (SMA, EMA, SMMA, RSIStream) implement the
// Indicator interface and are fed one value at a time. The batch functions
// (RSI, MACD, SlowStochastic, DetectCross, VolumeSpike) take oldest-first
// series and return either a value or an *InsufficientDataError.
package indicator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Indicator is the interface for streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next observation.
	Update(v float64)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// ErrInsufficientData is matched by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports that an indicator needed more bars than it got.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data (need %d bars, have %d)", e.Indicator, e.Need, e.Have)
}

// Is lets errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

func insufficient(name string, need, have int) error {
	return &InsufficientDataError{Indicator: name, Need: need, Have: have}
}

// nullable maps NaN to nil so undefined values serialize as JSON null.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Series is a float series where NaN marks an undefined point.
type Series []float64

// MarshalJSON writes NaN entries as null.
func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = nullable(v)
	}
	return json.Marshal(out)
}

// Last returns the most recent value, NaN when empty.
func (s Series) Last() float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}
