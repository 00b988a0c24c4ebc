package indicator

import (
	"strings"

	"autotrader/internal/model"
)

// MovingAverageChart is the date-aligned chart payload for one instrument.
type MovingAverageChart struct {
	Dates   []string      `json:"dates"`
	Close   []int64       `json:"close"`
	MA5     Series        `json:"ma5"`
	MA20    Series        `json:"ma20"`
	MA60    Series        `json:"ma60"`
	MA120   Series        `json:"ma120"`
	Markers []TradeMarker `json:"markers"`
}

// MovingAverages returns MA5/20/60/120 aligned with the sorted bar dates.
// Warm-up points are NaN (null in JSON).
func MovingAverages(bars []model.PriceBar) MovingAverageChart {
	bars = model.SortBars(bars)
	closes := model.Closes(bars)
	chart := MovingAverageChart{
		Dates: make([]string, len(bars)),
		Close: make([]int64, len(bars)),
		MA5:   SMASeries(closes, 5),
		MA20:  SMASeries(closes, 20),
		MA60:  SMASeries(closes, 60),
		MA120: SMASeries(closes, 120),
	}
	for i, b := range bars {
		chart.Dates[i] = b.Date
		chart.Close[i] = b.Close
	}
	return chart
}

// TradeMarker is one past buy/sell overlaid on the chart.
type TradeMarker struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
	Flag  string `json:"flag"` // "buy" or "sell"
}

// ParseTradeMarkers zips comma-joined parallel history arrays into markers and
// keeps only those for code. Arrays of unequal length are cut to the shortest.
func ParseTradeMarkers(code, dates, codes, prices, flags string) []TradeMarker {
	ds, cs, ps, fs := splitList(dates), splitList(codes), splitList(prices), splitList(flags)
	n := min(len(ds), len(cs), len(ps), len(fs))
	var out []TradeMarker
	for i := 0; i < n; i++ {
		if cs[i] != code {
			continue
		}
		out = append(out, TradeMarker{
			Date:  strings.ReplaceAll(ds[i], "-", ""),
			Price: model.ParseAbs(ps[i]),
			Flag:  strings.ToLower(fs[i]),
		})
	}
	return out
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
