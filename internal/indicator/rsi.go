package indicator

import (
	"fmt"
	"math"
	"strings"
)

// RSIMethod selects how average gain and loss are smoothed.
type RSIMethod string

const (
	// RSIWilder seeds with the mean of the first period deltas, then applies
	// avg = (avg*(period-1) + current) / period.
	RSIWilder RSIMethod = "wilder"
	// RSIExponential uses a first-value-seeded exponential mean with
	// smoothing factor 1/period, emitted after period deltas.
	RSIExponential RSIMethod = "ema"
	// RSISimple uses a rolling mean of the last period deltas.
	RSISimple RSIMethod = "sma"
)

// DefaultRSIPeriod is the conventional 14-day look-back.
const DefaultRSIPeriod = 14

// ParseRSIMethod accepts "wilder"/"manual", "ema"/"exponential" and "sma"/"simple".
// Empty means RSIWilder.
func ParseRSIMethod(s string) (RSIMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wilder", "manual":
		return RSIWilder, nil
	case "ema", "exponential":
		return RSIExponential, nil
	case "sma", "simple":
		return RSISimple, nil
	}
	return "", fmt.Errorf("unknown rsi method %q", s)
}

// RSIStream calculates the Relative Strength Index one close at a time.
type RSIStream struct {
	period    int
	method    RSIMethod
	count     int
	prevClose float64
	gain      Indicator
	loss      Indicator
}

// NewRSIStream creates a streaming RSI with the given period and method.
func NewRSIStream(period int, method RSIMethod) *RSIStream {
	r := &RSIStream{period: period, method: method}
	switch method {
	case RSIExponential:
		alpha := 1.0 / float64(period)
		r.gain, r.loss = NewEMAAlpha(alpha, period), NewEMAAlpha(alpha, period)
	case RSISimple:
		r.gain, r.loss = NewSMA(period), NewSMA(period)
	default:
		r.method = RSIWilder
		r.gain, r.loss = NewSMMA(period), NewSMMA(period)
	}
	return r
}

func (r *RSIStream) Name() string { return "RSI" }

func (r *RSIStream) Update(c float64) {
	r.count++
	if r.count == 1 {
		// First close: no delta yet
		r.prevClose = c
		return
	}
	delta := c - r.prevClose
	r.prevClose = c

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gain.Update(gain)
	r.loss.Update(loss)
}

// Ready reports whether period deltas (period+1 closes) have been seen.
func (r *RSIStream) Ready() bool { return r.count > r.period && r.gain.Ready() }

func (r *RSIStream) AvgGain() float64 { return r.gain.Value() }
func (r *RSIStream) AvgLoss() float64 { return r.loss.Value() }

// Value returns the RSI, forced to 100 when the average loss is zero.
func (r *RSIStream) Value() float64 {
	if !r.Ready() {
		return 0
	}
	return rsiFrom(r.AvgGain(), r.AvgLoss())
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSIValue is a computed RSI with the averages it came from.
type RSIValue struct {
	RSI     float64 `json:"rsi"`
	AvgGain float64 `json:"avg_gain"`
	AvgLoss float64 `json:"avg_loss"`
}

// RSI computes the final RSI over oldest-first closes.
func RSI(closes []float64, period int, method RSIMethod) (RSIValue, error) {
	if period < 1 {
		return RSIValue{}, fmt.Errorf("rsi: invalid period %d", period)
	}
	if len(closes) < period+1 {
		return RSIValue{}, insufficient("rsi", period+1, len(closes))
	}
	r := NewRSIStream(period, method)
	for _, c := range closes {
		r.Update(c)
	}
	return RSIValue{RSI: r.Value(), AvgGain: r.AvgGain(), AvgLoss: r.AvgLoss()}, nil
}

// RSIReport carries today's and yesterday's RSI for a day-over-day view.
// Yesterday is nil when the series only has enough bars for today.
type RSIReport struct {
	Method    RSIMethod `json:"method"`
	Period    int       `json:"period"`
	Today     RSIValue  `json:"today"`
	Yesterday *RSIValue `json:"yesterday"`
	Delta     *float64  `json:"delta"`
}

// RSIDayOverDay computes RSI on the full series and again without the most
// recent close.
func RSIDayOverDay(closes []float64, period int, method RSIMethod) (RSIReport, error) {
	today, err := RSI(closes, period, method)
	if err != nil {
		return RSIReport{}, err
	}
	rep := RSIReport{Method: method, Period: period, Today: today}
	if len(closes) > period+1 {
		y, err := RSI(closes[:len(closes)-1], period, method)
		if err == nil {
			d := round2(today.RSI - y.RSI)
			rep.Yesterday, rep.Delta = &y, &d
		}
	}
	return rep, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
