package main

import (
	"context"
	"log/slog"

	"autotrader/config"
	"autotrader/internal/bridge"
	"autotrader/internal/broker"
	"autotrader/internal/broker/remote"
	"autotrader/internal/dispatcher"
	"autotrader/internal/eventloop"
	"autotrader/internal/notification"
	"autotrader/internal/store/sqlite"
	"autotrader/internal/trading"
)

// stack is the loop-owned core shared by serve and calc: session, trading
// handlers, dispatcher and the bridge in front of it.
type stack struct {
	loop    *eventloop.Loop
	session *broker.Session
	service *trading.Service
	queues  dispatcher.Queues
	disp    *dispatcher.Dispatcher
	bridge  *bridge.Bridge
}

func newStack(cfg *config.Config, ctrl broker.Control, store *sqlite.Store, notifier notification.Notifier, lg *slog.Logger) (*stack, error) {
	loop := eventloop.New()
	session := broker.NewSession(ctrl, loop, lg)
	svc := trading.New(trading.Config{
		Account:  cfg.Account,
		Password: cfg.AccountPasswd,
		Mode:     cfg.TradeMode,
	}, session, store, notifier, lg)

	q := dispatcher.NewQueues(cfg.QueueCapacity)
	d, err := dispatcher.New(loop, q, svc.Handlers(), cfg.TickInterval, lg)
	if err != nil {
		return nil, err
	}
	return &stack{
		loop:    loop,
		session: session,
		service: svc,
		queues:  q,
		disp:    d,
		bridge:  bridge.New(q, cfg.PollInterval, lg),
	}, nil
}

// start runs the loop on its own goroutine and begins dispatching. The
// returned channel yields the loop's exit error.
func (s *stack) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.loop.Run(ctx) }()
	s.disp.Start(ctx)
	return done
}

func timeoutsFrom(cfg *config.Config) bridge.Timeouts {
	return bridge.Timeouts{Order: cfg.OrderTimeout, Cross: cfg.CrossTimeout, Slow: cfg.SlowTimeout}
}

// newControl picks the paper broker or the remote OCX agent by trade mode.
func newControl(cfg *config.Config) broker.Control {
	if cfg.IsReal() {
		return remote.New(remote.Config{
			BaseURL:    cfg.AgentURL,
			UserID:     cfg.UserID,
			Password:   cfg.UserPassword,
			TOTPSecret: cfg.TOTPSecret,
			Timeout:    cfg.OrderTimeout,
		})
	}
	return broker.NewPaperControl(cfg.PaperCash)
}
