package model

import (
	"sort"
	"strings"
	"time"
)

// DateLayout is the broker's trading-day format (e.g. "20250304").
const DateLayout = "20060102"

// PriceBar is one trading-day OHLCV record. Prices are whole KRW.
type PriceBar struct {
	Date   string `json:"date"` // YYYYMMDD
	Close  int64  `json:"close"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Volume int64  `json:"volume"`
}

// Time parses Date in KST. Returns the zero time when Date is malformed.
func (b PriceBar) Time() time.Time {
	t, err := time.ParseInLocation(DateLayout, b.Date, KST)
	if err != nil {
		return time.Time{}
	}
	return t
}

// KST is Korea Standard Time (UTC+9).
var KST = time.FixedZone("KST", 9*3600)

// SortBars returns a copy of bars ordered oldest-first by Date.
// The broker returns newest-first; every calculation needs chronological order.
func SortBars(bars []PriceBar) []PriceBar {
	out := make([]PriceBar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Reverse returns a reversed copy of bars.
func Reverse(bars []PriceBar) []PriceBar {
	out := make([]PriceBar, len(bars))
	for i, b := range bars {
		out[len(bars)-1-i] = b
	}
	return out
}

// Closes extracts close prices as float64, preserving order.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Close)
	}
	return out
}

// Highs extracts high prices as float64, preserving order.
func Highs(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.High)
	}
	return out
}

// Lows extracts low prices as float64, preserving order.
func Lows(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Low)
	}
	return out
}

// Daily bar field names in an opt10081 row.
const (
	FieldDate   = "일자"
	FieldClose  = "현재가"
	FieldHigh   = "고가"
	FieldLow    = "저가"
	FieldVolume = "거래량"
)

// ParseDailyBars reads opt10081 rows in the order the broker returned them
// (newest-first). Rows with an empty date are skipped. Callers sort before
// computing.
func ParseDailyBars(rows []map[string]string) []PriceBar {
	bars := make([]PriceBar, 0, len(rows))
	for _, r := range rows {
		date := strings.TrimSpace(r[FieldDate])
		if date == "" {
			continue
		}
		bars = append(bars, PriceBar{
			Date:   date,
			Close:  ParseAbs(r[FieldClose]),
			High:   ParseAbs(r[FieldHigh]),
			Low:    ParseAbs(r[FieldLow]),
			Volume: ParseAbs(r[FieldVolume]),
		})
	}
	return bars
}
