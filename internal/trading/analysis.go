package trading

import (
	"context"
	"fmt"
	"sort"

	"autotrader/internal/command"
	"autotrader/internal/indicator"
	"autotrader/internal/logger"
	"autotrader/internal/model"
)

// RSIView is the RSI answer with today's and yesterday's values.
type RSIView struct {
	Code string `json:"code"`
	Date string `json:"date"`
	indicator.RSIReport
}

// MACDView is the MACD answer for the latest bar.
type MACDView struct {
	Code string `json:"code"`
	Date string `json:"date"`
	indicator.MACDValue
}

// StochasticView is the slow stochastic answer.
type StochasticView struct {
	Code string `json:"code"`
	Date string `json:"date"`
	indicator.StochasticValue
}

// ExtendedStochasticView adds flags read from persisted MACD and RSI rows.
type ExtendedStochasticView struct {
	StochasticView
	MACDBreak bool               `json:"macd_break"` // latest stored MACD > signal
	RSIUp     bool               `json:"rsi_up"`     // latest stored RSI >= 50
	MACDRows  []model.MACDRecord `json:"macd_history"`
	RSIRows   []model.RSIRecord  `json:"rsi_history"`
	Note      string             `json:"note,omitempty"`
}

// CrossView is a cross classification for one code.
type CrossView struct {
	Code string `json:"code"`
	indicator.CrossResult
}

// VolumeView is the volume-spike answer.
type VolumeView struct {
	Code string `json:"code"`
	indicator.VolumeSignal
}

// SavedVolume reports the row written by save_volume.
type SavedVolume struct {
	Code   string `json:"code"`
	Date   string `json:"date"`
	Volume int64  `json:"volume"`
	Close  int64  `json:"close"`
	Saved  bool   `json:"saved"`
}

func latestDate(bars []model.PriceBar) string {
	if len(bars) == 0 {
		return ""
	}
	return bars[len(bars)-1].Date
}

// persist logs store failures; an indicator answer is still returned.
func (s *Service) persist(ctx context.Context, metric, code string, err error) {
	if err != nil {
		s.log.Error("indicator upsert failed", append([]any{"metric", metric, "code", code, "error", err}, logger.LogWithTrace(ctx)...)...)
	}
}

func (s *Service) rsi(ctx context.Context, cmd command.Command) (any, error) {
	q := cmd.Payload.(command.RSIQuery)
	method, err := indicator.ParseRSIMethod(q.Method)
	if err != nil {
		return nil, err
	}
	period := int(q.Period)
	if period == 0 {
		period = indicator.DefaultRSIPeriod
	}
	bars, err := s.dailyBars(ctx, q.Code)
	if err != nil {
		return nil, err
	}
	rep, err := indicator.RSIDayOverDay(model.Closes(bars), period, method)
	if err != nil {
		return nil, command.WithCode(q.Code, err)
	}
	date := latestDate(bars)
	s.persist(ctx, "rsi", q.Code, s.store.UpsertRSI(ctx, q.Code, date, rep.Today.RSI, rep.Today.AvgGain, rep.Today.AvgLoss))
	return RSIView{Code: q.Code, Date: date, RSIReport: rep}, nil
}

func (s *Service) macd(ctx context.Context, cmd command.Command) (any, error) {
	code := cmd.Payload.(command.Code).Code
	bars, err := s.dailyBars(ctx, code)
	if err != nil {
		return nil, err
	}
	v, err := indicator.MACD(model.Closes(bars))
	if err != nil {
		return nil, command.WithCode(code, err)
	}
	date := latestDate(bars)
	s.persist(ctx, "macd", code, s.store.UpsertMACD(ctx, code, date, v.Latest.MACD, v.Latest.Signal, v.Latest.Histogram))
	return MACDView{Code: code, Date: date, MACDValue: v}, nil
}

func (s *Service) stochasticFor(ctx context.Context, code string) (StochasticView, error) {
	bars, err := s.dailyBars(ctx, code)
	if err != nil {
		return StochasticView{}, err
	}
	v, err := indicator.SlowStochastic(bars)
	if err != nil {
		return StochasticView{}, command.WithCode(code, err)
	}
	date := latestDate(bars)
	s.persist(ctx, "stochastic", code, s.store.UpsertStochastic(ctx, code, date, v.Latest.K, v.Latest.D))
	return StochasticView{Code: code, Date: date, StochasticValue: v}, nil
}

func (s *Service) stochastic(ctx context.Context, cmd command.Command) (any, error) {
	return s.stochasticFor(ctx, cmd.Payload.(command.Code).Code)
}

// stochasticExtended reads the two most recent stored MACD and RSI rows,
// puts them oldest-first and flags the latest of each.
func (s *Service) stochasticExtended(ctx context.Context, cmd command.Command) (any, error) {
	code := cmd.Payload.(command.Code).Code
	base, err := s.stochasticFor(ctx, code)
	if err != nil {
		return nil, err
	}
	v := ExtendedStochasticView{StochasticView: base}

	macdRows, err := s.store.RecentMACD(ctx, code, 2)
	if err != nil {
		return nil, err
	}
	rsiRows, err := s.store.RecentRSI(ctx, code, 2)
	if err != nil {
		return nil, err
	}
	sort.Slice(macdRows, func(i, j int) bool { return macdRows[i].Date < macdRows[j].Date })
	sort.Slice(rsiRows, func(i, j int) bool { return rsiRows[i].Date < rsiRows[j].Date })
	v.MACDRows, v.RSIRows = macdRows, rsiRows

	if n := len(macdRows); n > 0 {
		v.MACDBreak = macdRows[n-1].MACD > macdRows[n-1].Signal
	}
	if n := len(rsiRows); n > 0 {
		v.RSIUp = rsiRows[n-1].RSI >= 50
	}
	if len(macdRows) == 0 || len(rsiRows) == 0 {
		v.Note = "no stored macd/rsi history; run get_macd and get_rsi first"
	}
	return v, nil
}

func (s *Service) movingAverage(ctx context.Context, cmd command.Command) (any, error) {
	q := cmd.Payload.(command.MovingAverageQuery)
	bars, err := s.dailyBars(ctx, q.Code)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, command.WithCode(q.Code, &indicator.InsufficientDataError{Indicator: "moving_average", Need: 1, Have: 0})
	}
	chart := indicator.MovingAverages(bars)
	chart.Markers = indicator.ParseTradeMarkers(q.Code, q.HistoryDate, q.HistoryCode, q.HistoryPrice, q.HistoryFlag)
	return struct {
		Code string `json:"code"`
		indicator.MovingAverageChart
	}{q.Code, chart}, nil
}

func (s *Service) goldenCross(ctx context.Context, cmd command.Command) (any, error) {
	return s.cross(ctx, cmd.Payload.(command.CrossQuery), indicator.CrossGolden)
}

func (s *Service) deadCross(ctx context.Context, cmd command.Command) (any, error) {
	return s.cross(ctx, cmd.Payload.(command.CrossQuery), indicator.CrossDead)
}

func (s *Service) cross(ctx context.Context, q command.CrossQuery, kind indicator.CrossKind) (any, error) {
	bars, err := s.dailyBars(ctx, q.Code)
	if err != nil {
		return nil, err
	}
	res, err := indicator.DetectCross(bars, kind, indicator.CrossWindow(q.Window))
	if err != nil {
		return nil, command.WithCode(q.Code, err)
	}
	v := CrossView{Code: q.Code, CrossResult: res}
	s.signal(ctx, string(kind)+"_cross", q.Code, res.Signal, res.Comment, v)
	return v, nil
}

func (s *Service) volumeSearch(ctx context.Context, cmd command.Command) (any, error) {
	code := cmd.Payload.(command.Code).Code
	bars, err := s.dailyBars(ctx, code)
	if err != nil {
		return nil, err
	}
	sig, err := indicator.VolumeSpike(bars)
	if err != nil {
		return nil, command.WithCode(code, err)
	}
	v := VolumeView{Code: code, VolumeSignal: sig}
	msg := fmt.Sprintf("volume %s -> %s (x%.2f)", model.FormatKRW(sig.Previous), model.FormatKRW(sig.Current), sig.Ratio)
	s.signal(ctx, "volume_spike", code, sig.Signal, msg, v)
	return v, nil
}

func (s *Service) saveVolume(ctx context.Context, cmd command.Command) (any, error) {
	code := cmd.Payload.(command.Code).Code
	bars, err := s.dailyBars(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, command.WithCode(code, &indicator.InsufficientDataError{Indicator: "volume", Need: 1, Have: 0})
	}
	last := bars[len(bars)-1]
	if err := s.store.UpsertVolume(ctx, code, last.Date, last.Volume, last.Close); err != nil {
		return nil, err
	}
	return SavedVolume{Code: code, Date: last.Date, Volume: last.Volume, Close: last.Close, Saved: true}, nil
}

