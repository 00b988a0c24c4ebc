// Package scheduler runs the periodic basket volume scan during KRX hours.
// Every scan goes through the bridge like any HTTP caller, so it never
// bypasses the command queue.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"autotrader/internal/bridge"
	"autotrader/internal/command"
	"autotrader/internal/logger"
	"autotrader/internal/markethours"
	"autotrader/internal/store/sqlite"
)

// Heartbeat job names.
const (
	JobVolumeScan = "volume_scan"
	JobScheduler  = "scheduler"
)

// Scan statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
	StatusClosed  = "market_closed"
	StatusEmpty   = "empty_basket"
)

// Caller runs one Command and waits for its Result.
type Caller interface {
	Call(ctx context.Context, cmd command.Command, timeout time.Duration) command.Result
}

// Store is the watch list plus heartbeat table.
type Store interface {
	Basket(ctx context.Context) ([]sqlite.BasketItem, error)
	Beat(ctx context.Context, job, status string) error
}

// Report summarizes one scan.
type Report struct {
	At      time.Time `json:"at"`
	Codes   int       `json:"codes"`
	Signals []string  `json:"signals"` // codes with a Y volume signal
	Failed  []string  `json:"failed"`
	Status  string    `json:"status"`
}

// Scheduler scans the basket every interval while the market is open.
type Scheduler struct {
	calls    Caller
	store    Store
	interval time.Duration
	timeouts bridge.Timeouts
	log      *slog.Logger
	now      func() time.Time

	// OnScan and OnMarketState are optional metric hooks.
	OnScan        func(r Report)
	OnMarketState func(open bool)
}

// New creates a scheduler.
func New(calls Caller, store Store, interval time.Duration, timeouts bridge.Timeouts, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		calls:    calls,
		store:    store,
		interval: interval,
		timeouts: timeouts,
		log:      logger.OrDefault(log).With("component", "scheduler"),
		now:      time.Now,
	}
}

// SetClock replaces the wall clock (tests).
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run blocks until ctx is done, scanning on every tick during market hours.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "interval", s.interval.String(), "market", markethours.StatusString(s.now()))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling step: a scan when the market is open, otherwise
// only the heartbeat.
func (s *Scheduler) Tick(ctx context.Context) Report {
	now := s.now()
	open := markethours.IsMarketOpen(now)
	if s.OnMarketState != nil {
		s.OnMarketState(open)
	}
	if err := s.store.Beat(ctx, JobScheduler, "alive"); err != nil {
		s.log.Warn("heartbeat failed", "error", err)
	}
	if !open {
		s.log.Debug("market closed, scan skipped", "status", markethours.StatusString(now))
		return Report{At: now, Status: StatusClosed}
	}
	return s.ScanOnce(ctx)
}

// ScanOnce runs volume_search then save_volume for every basket code,
// regardless of market hours.
func (s *Scheduler) ScanOnce(ctx context.Context) Report {
	rep := Report{At: s.now(), Signals: []string{}, Failed: []string{}}
	items, err := s.store.Basket(ctx)
	if err != nil {
		s.log.Error("basket read failed", "error", err)
		rep.Status = StatusError
		s.finish(ctx, rep)
		return rep
	}
	rep.Codes = len(items)
	if len(items) == 0 {
		rep.Status = StatusEmpty
		s.finish(ctx, rep)
		return rep
	}

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		spike, err := s.scanCode(ctx, it.Code)
		if err != nil {
			s.log.Warn("scan failed", "code", it.Code, "error", err)
			rep.Failed = append(rep.Failed, it.Code)
			continue
		}
		if spike {
			rep.Signals = append(rep.Signals, it.Code)
		}
	}

	switch {
	case len(rep.Failed) == 0:
		rep.Status = StatusOK
	case len(rep.Failed) < rep.Codes:
		rep.Status = StatusPartial
	default:
		rep.Status = StatusError
	}
	s.log.Info("volume scan done", "codes", rep.Codes, "signals", len(rep.Signals), "failed", len(rep.Failed))
	s.finish(ctx, rep)
	return rep
}

func (s *Scheduler) scanCode(ctx context.Context, code string) (bool, error) {
	search, err := command.New(command.VolumeSearch, command.Code{Code: code})
	if err != nil {
		return false, err
	}
	res := s.calls.Call(ctx, search, s.timeouts.For(command.VolumeSearch))
	if res.IsError() {
		return false, fmt.Errorf("volume_search: %s", res.Err)
	}
	var v struct {
		Signal string `json:"signal"`
	}
	if raw, err := json.Marshal(res); err == nil {
		_ = json.Unmarshal(raw, &v)
	}

	save, _ := command.New(command.SaveVolume, command.Code{Code: code})
	if res := s.calls.Call(ctx, save, s.timeouts.For(command.SaveVolume)); res.IsError() {
		return false, fmt.Errorf("save_volume: %s", res.Err)
	}
	return v.Signal == "Y", nil
}

func (s *Scheduler) finish(ctx context.Context, rep Report) {
	if err := s.store.Beat(ctx, JobVolumeScan, rep.Status); err != nil {
		s.log.Warn("heartbeat failed", "job", JobVolumeScan, "error", err)
	}
	if s.OnScan != nil {
		s.OnScan(rep)
	}
}
