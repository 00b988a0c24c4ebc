// Package trading implements every Command kind on top of the broker
// session, the indicator engine and the sqlite store. Handlers run on the
// event loop, one at a time.
package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/command"
	"autotrader/internal/logger"
	"autotrader/internal/model"
	"autotrader/internal/notification"
	"autotrader/internal/portfolio"
	"autotrader/internal/store/sqlite"
)

// Config is the account the service operates on.
type Config struct {
	Account  string
	Password string
	Mode     string // SIMULATION or REAL, recorded in the order journal
}

// Service holds the collaborators shared by all handlers.
type Service struct {
	cfg      Config
	session  *broker.Session
	store    *sqlite.Store
	notifier notification.Notifier
	log      *slog.Logger
	now      func() time.Time
	risk     *portfolio.RiskManager // nil: no pre-trade limits

	// OnSignal, when set, observes every Y/N classification.
	OnSignal func(kind, signal string)
}

// New creates a Service. notifier may be nil.
func New(cfg Config, session *broker.Session, store *sqlite.Store, notifier notification.Notifier, log *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	return &Service{
		cfg:      cfg,
		session:  session,
		store:    store,
		notifier: notifier,
		log:      logger.OrDefault(log).With("component", "trading"),
		now:      time.Now,
	}
}

// SetRisk installs pre-trade limits for new orders. Cancels are never limited.
func (s *Service) SetRisk(rm *portfolio.RiskManager) { s.risk = rm }

// Handlers returns one handler per Command kind.
func (s *Service) Handlers() map[command.Kind]command.Handler {
	return map[command.Kind]command.Handler{
		command.AccountQuery:       s.account,
		command.CashQuery:          s.cash,
		command.Holdings:           s.holdings,
		command.VolumeLeaders:      s.volumeLeaders,
		command.UnfilledOrders:     s.unfilledOrders,
		command.PlaceOrder:         s.placeOrder,
		command.CancelOrder:        s.cancelOrder,
		command.RSI:                s.rsi,
		command.MovingAverage:      s.movingAverage,
		command.GoldenCross:        s.goldenCross,
		command.DeadCross:          s.deadCross,
		command.StochasticStandard: s.stochastic,
		command.StochasticExtended: s.stochasticExtended,
		command.SearchStock:        s.searchStock,
		command.MACDQuery:          s.macd,
		command.VolumeSearch:       s.volumeSearch,
		command.SaveVolume:         s.saveVolume,
	}
}

// dailyBars fetches opt10081 for code and returns the bars oldest-first.
func (s *Service) dailyBars(ctx context.Context, code string) ([]model.PriceBar, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	rs, err := s.session.Request(ctx, broker.TRDailyBars, []broker.Input{
		{ID: "종목코드", Value: code},
		{ID: "기준일자", Value: s.now().In(model.KST).Format(model.DateLayout)},
		{ID: "수정주가구분", Value: "1"},
	}, "")
	if err != nil {
		return nil, fmt.Errorf("daily bars %s: %w", code, err)
	}
	return model.SortBars(model.ParseDailyBars(rs.Rows)), nil
}

// signal records a classification and alerts on Y.
func (s *Service) signal(ctx context.Context, kind, code, signal, message string, data any) {
	if s.OnSignal != nil {
		s.OnSignal(kind, signal)
	}
	if signal != "Y" {
		return
	}
	alert := notification.Alert{
		Level:   notification.AlertWarning,
		Title:   fmt.Sprintf("%s %s", kind, code),
		Message: message,
		Kind:    kind,
		Code:    code,
		Signal:  signal,
		Data:    data,
	}
	if err := s.notifier.Send(ctx, alert); err != nil {
		s.log.Warn("signal notification failed", append([]any{"kind", kind, "code", code, "error", err}, logger.LogWithTrace(ctx)...)...)
	}
}
