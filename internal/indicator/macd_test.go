package indicator

import (
	"errors"
	"testing"
)

func TestMACD_InsufficientData(t *testing.T) {
	_, err := MACD(make([]float64, 34))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data for 34 closes, got %v", err)
	}
}

func TestMACD_HistogramIdentity(t *testing.T) {
	closes := make([]float64, 80)
	p := 5000.0
	for i := range closes {
		if i%7 < 4 {
			p += 37
		} else {
			p -= 55
		}
		closes[i] = p
	}
	v, err := MACD(closes)
	if err != nil {
		t.Fatal(err)
	}
	for i, pt := range v.Series {
		if pt.Histogram != pt.MACD-pt.Signal {
			t.Fatalf("point %d: histogram %v != macd-signal %v", i, pt.Histogram, pt.MACD-pt.Signal)
		}
	}
	if v.Latest != v.Series[len(v.Series)-1] || v.Previous != v.Series[len(v.Series)-2] {
		t.Error("latest/previous should be the last two series points")
	}
}

func TestMACD_FlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 1000
	}
	v, err := MACD(closes)
	if err != nil {
		t.Fatal(err)
	}
	if v.Latest.MACD != 0 || v.Latest.Signal != 0 || v.Latest.Histogram != 0 {
		t.Errorf("flat series should give zero MACD, got %+v", v.Latest)
	}
}

func TestMACD_Uptrend_Positive(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 1000 + float64(i*10)
	}
	v, err := MACD(closes)
	if err != nil {
		t.Fatal(err)
	}
	if v.Latest.MACD <= 0 {
		t.Errorf("expected positive MACD in an uptrend, got %v", v.Latest.MACD)
	}
}

func TestMACD_FirstPointSeeded(t *testing.T) {
	closes := make([]float64, 35)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	v, _ := MACD(closes)
	// Both EMAs start at the first close, so the first MACD is exactly 0.
	if v.Series[0].MACD != 0 {
		t.Errorf("expected MACD 0 at first bar, got %v", v.Series[0].MACD)
	}
}
