package indicator

import (
	"fmt"
	"math"

	"autotrader/internal/model"
)

// VolumeSpikeRatio is the current/previous volume ratio that triggers confirmation.
const VolumeSpikeRatio = 2.0

// Confirmation band for %K.
const (
	spikeKLow  = 20.0
	spikeKHigh = 40.0
)

// VolumeConfirmation is the stochastic + MACD check run on a spike.
type VolumeConfirmation struct {
	K         float64 `json:"percent_k"`
	D         float64 `json:"percent_d"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	KInBand   bool    `json:"k_in_band"`
	KAboveD   bool    `json:"k_above_d"`
	MACDAbove bool    `json:"macd_above_signal"`
}

// VolumeSignal is the volume-spike classification for the latest bar.
type VolumeSignal struct {
	Date         string              `json:"date"`
	Previous     int64               `json:"previous_volume"`
	Current      int64               `json:"current_volume"`
	Ratio        float64             `json:"ratio"`
	Spike        bool                `json:"spike"`
	Signal       string              `json:"signal"` // "Y" or "N"
	Confirmation *VolumeConfirmation `json:"confirmation,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

// VolumeSpike compares the two most recent volumes. A spike (current at least
// twice previous) is confirmed by %K in [20,40), %K >= %D and MACD > signal.
// Missing stochastic or MACD history inside the confirmation yields "N".
func VolumeSpike(bars []model.PriceBar) (VolumeSignal, error) {
	if len(bars) < 2 {
		return VolumeSignal{}, insufficient("volume", 2, len(bars))
	}
	bars = model.SortBars(bars)
	prev, curr := bars[len(bars)-2], bars[len(bars)-1]
	sig := VolumeSignal{Date: curr.Date, Previous: prev.Volume, Current: curr.Volume, Signal: "N"}
	if prev.Volume > 0 {
		sig.Ratio = round2(float64(curr.Volume) / float64(prev.Volume))
	}
	sig.Spike = float64(curr.Volume) >= VolumeSpikeRatio*float64(prev.Volume) && curr.Volume > 0
	if !sig.Spike {
		sig.Reason = "no volume spike"
		return sig, nil
	}

	st, err := SlowStochastic(bars)
	if err != nil {
		sig.Reason = fmt.Sprintf("confirmation unavailable: %v", err)
		return sig, nil
	}
	m, err := MACD(model.Closes(bars))
	if err != nil {
		sig.Reason = fmt.Sprintf("confirmation unavailable: %v", err)
		return sig, nil
	}

	k, d := st.Latest.K, st.Latest.D
	conf := &VolumeConfirmation{
		K: k, D: d, MACD: m.Latest.MACD, Signal: m.Latest.Signal,
		KInBand:   !math.IsNaN(k) && k >= spikeKLow && k < spikeKHigh,
		KAboveD:   !math.IsNaN(k) && !math.IsNaN(d) && k >= d,
		MACDAbove: m.Latest.MACD > m.Latest.Signal,
	}
	if math.IsNaN(k) || math.IsNaN(d) {
		// NaN cannot be encoded; report zero alongside the failed check.
		conf.K, conf.D = zeroNaN(k), zeroNaN(d)
	}
	sig.Confirmation = conf
	if conf.KInBand && conf.KAboveD && conf.MACDAbove {
		sig.Signal = "Y"
	} else {
		sig.Reason = "spike not confirmed by stochastic/macd"
	}
	return sig, nil
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
