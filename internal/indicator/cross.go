package indicator

import (
	"fmt"
	"math"
	"strings"

	"autotrader/internal/model"
)

// CrossKind selects golden (MA5 crossing up) or dead (crossing down) detection.
type CrossKind string

const (
	CrossGolden CrossKind = "golden"
	CrossDead   CrossKind = "dead"
)

// CrossWindow is the number of most recent rows the conditions look at.
type CrossWindow int

const (
	CrossWindow5 CrossWindow = 5
	CrossWindow3 CrossWindow = 3
)

// CrossMinBars seeds the 120-day average.
const CrossMinBars = 120

// crossBand is the |MA5 - ref| / ref limit for condition (a).
const crossBand = 0.03

var referencePeriods = []int{20, 60, 120}

// CrossRow is one row of the averages table after warm-up.
type CrossRow struct {
	Date  string  `json:"date"`
	Close int64   `json:"close"`
	MA5   float64 `json:"ma5"`
	MA20  float64 `json:"ma20"`
	MA60  float64 `json:"ma60"`
	MA120 float64 `json:"ma120"`
}

func (r CrossRow) ma(period int) float64 {
	switch period {
	case 20:
		return r.MA20
	case 60:
		return r.MA60
	case 120:
		return r.MA120
	}
	return r.MA5
}

// CrossConditions are the five checks over the window.
type CrossConditions struct {
	NearReference bool `json:"near_reference"` // (a)
	EarlyExtreme  bool `json:"early_extreme"`  // (b)
	LastStep      bool `json:"last_step"`      // (c)
	LatestExtreme bool `json:"latest_extreme"` // (d)
	Crossing      bool `json:"crossing"`       // (e)
}

// CrossResult is the classification of one cross check.
type CrossResult struct {
	Kind          CrossKind       `json:"kind"`
	Signal        string          `json:"signal"` // "Y" or "N"
	Date          string          `json:"date"`
	Window        CrossWindow     `json:"window"`
	Reference     string          `json:"reference"` // "MA20", "MA60" or "MA120"
	MA5           float64         `json:"ma5"`
	ReferenceMA   float64         `json:"reference_ma"`
	DistancePct   float64         `json:"distance_pct"`
	Checks        CrossConditions `json:"checks"`
	AllConditions bool            `json:"all_conditions"`
	Conditions    bool            `json:"conditions"` // all but EarlyExtreme
	Comment       string          `json:"comment"`
	Reason        string          `json:"reason,omitempty"`
	Rows          []CrossRow      `json:"rows"`
}

// DetectCross classifies the latest window of bars as a golden or dead cross.
// Bars may arrive in any order; they are sorted by date first.
func DetectCross(bars []model.PriceBar, kind CrossKind, window CrossWindow) (CrossResult, error) {
	if kind != CrossGolden && kind != CrossDead {
		return CrossResult{}, fmt.Errorf("cross: unknown kind %q", kind)
	}
	if window != CrossWindow3 {
		window = CrossWindow5
	}
	name := string(kind) + "_cross"
	if len(bars) < CrossMinBars {
		return CrossResult{}, insufficient(name, CrossMinBars, len(bars))
	}
	rows := crossRows(model.SortBars(bars))
	w := int(window)
	if len(rows) < w {
		return CrossResult{}, insufficient(name, CrossMinBars-1+w, len(bars))
	}
	win := rows[len(rows)-w:]
	latest, oldest := win[w-1], win[0]

	refPeriod := closestReference(latest)
	ma5L, refL := latest.MA5, latest.ma(refPeriod)
	ma5O, refO := oldest.MA5, oldest.ma(refPeriod)

	res := CrossResult{
		Kind:        kind,
		Signal:      "N",
		Date:        latest.Date,
		Window:      window,
		Reference:   fmt.Sprintf("MA%d", refPeriod),
		MA5:         ma5L,
		ReferenceMA: refL,
		Rows:        win,
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range win {
		lo = math.Min(lo, r.MA5)
		hi = math.Max(hi, r.MA5)
	}

	c := &res.Checks
	if refL != 0 {
		c.NearReference = math.Abs(ma5L-refL)/refL <= crossBand
		res.DistancePct = (ma5L - refL) / refL * 100
	}
	if kind == CrossGolden {
		c.EarlyExtreme = win[0].MA5 == lo || win[1].MA5 == lo
		c.LastStep = win[w-2].MA5 < ma5L
		c.LatestExtreme = ma5L == hi
		if ma5L > refL {
			c.Crossing = ma5O <= refO
		} else {
			c.Crossing = ma5O < refO
		}
	} else {
		c.EarlyExtreme = win[0].MA5 == hi || win[1].MA5 == hi
		c.LastStep = win[w-2].MA5 > ma5L
		c.LatestExtreme = ma5L == lo
		if ma5L < refL {
			c.Crossing = ma5O >= refO
		} else {
			c.Crossing = ma5O > refO
		}
	}
	res.Conditions = c.NearReference && c.LastStep && c.LatestExtreme && c.Crossing
	res.AllConditions = res.Conditions && c.EarlyExtreme
	if res.AllConditions {
		res.Signal = "Y"
	}
	res.Comment = crossComment(kind, res.Reference, refL, res.DistancePct)

	switch {
	case lo == hi:
		res.Reason = "insufficient variance"
	case !res.AllConditions:
		res.Reason = "failed: " + strings.Join(failedChecks(*c), ", ")
	}
	return res, nil
}

// crossRows computes MA5/20/60/120 over sorted bars and drops the warm-up rows.
func crossRows(bars []model.PriceBar) []CrossRow {
	closes := model.Closes(bars)
	ma5 := SMASeries(closes, 5)
	ma20 := SMASeries(closes, 20)
	ma60 := SMASeries(closes, 60)
	ma120 := SMASeries(closes, 120)
	var rows []CrossRow
	for i, b := range bars {
		if math.IsNaN(ma120[i]) {
			continue
		}
		rows = append(rows, CrossRow{
			Date: b.Date, Close: b.Close,
			MA5: ma5[i], MA20: ma20[i], MA60: ma60[i], MA120: ma120[i],
		})
	}
	return rows
}

// closestReference picks the long average nearest MA5; ties go to the shorter period.
func closestReference(r CrossRow) int {
	best, bestDist := referencePeriods[0], math.Inf(1)
	for _, p := range referencePeriods {
		if d := math.Abs(r.ma(p) - r.MA5); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// crossComment walks the 1%, 2%, 3% bands in order; the first match wins.
func crossComment(kind CrossKind, ref string, refL, pct float64) string {
	if refL == 0 {
		return "reference average is zero"
	}
	for _, band := range []float64{1, 2, 3} {
		above := pct >= 0 && pct <= band
		below := pct < 0 && -pct <= band
		if !above && !below {
			continue
		}
		dist := math.Abs(pct)
		switch {
		case kind == CrossGolden && above:
			return fmt.Sprintf("MA5 %.2f%% above %s: golden cross breakout continuing (within %.0f%%)", dist, ref, band)
		case kind == CrossGolden:
			return fmt.Sprintf("MA5 %.2f%% below %s: approaching golden cross (within %.0f%%)", dist, ref, band)
		case below:
			return fmt.Sprintf("MA5 %.2f%% below %s: dead cross breakdown continuing (within %.0f%%)", dist, ref, band)
		default:
			return fmt.Sprintf("MA5 %.2f%% above %s: approaching dead cross (within %.0f%%)", dist, ref, band)
		}
	}
	return fmt.Sprintf("no %s cross signal: MA5 %.2f%% from %s", kind, math.Abs(pct), ref)
}

func failedChecks(c CrossConditions) []string {
	var out []string
	if !c.NearReference {
		out = append(out, "near_reference")
	}
	if !c.EarlyExtreme {
		out = append(out, "early_extreme")
	}
	if !c.LastStep {
		out = append(out, "last_step")
	}
	if !c.LatestExtreme {
		out = append(out, "latest_extreme")
	}
	if !c.Crossing {
		out = append(out, "crossing")
	}
	return out
}
