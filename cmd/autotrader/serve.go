package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"autotrader/config"
	"autotrader/internal/api"
	"autotrader/internal/broker"
	"autotrader/internal/command"
	"autotrader/internal/logger"
	"autotrader/internal/metrics"
	"autotrader/internal/news"
	"autotrader/internal/notification"
	"autotrader/internal/portfolio"
	"autotrader/internal/scheduler"
	"autotrader/internal/store/redis"
	"autotrader/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the broker and serve the HTTP API, scheduler and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lg := logger.Init("autotrader", cfg.LogLevel)
	log.Printf("[autotrader] mode=%s http=%s metrics=%s", cfg.TradeMode, cfg.HTTPAddr, cfg.MetricsAddr)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.TradeMode)

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("indicator store: %w", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// Notification fan-out
	hub := api.NewSignalHub(200)
	backends := []notification.Named{
		{Name: "log", Notifier: notification.NewLogNotifier()},
		{Name: "ws", Notifier: hub},
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.Named{Name: "webhook", Notifier: notification.NewWebhookNotifier(cfg.WebhookURL)})
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.Named{Name: "telegram", Notifier: notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)})
	}

	var pinger metrics.Pinger
	if cfg.RedisAddr != "" {
		pub, err := redis.Dial(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Channel: cfg.SignalChannel})
		if err != nil {
			log.Printf("[autotrader] WARNING: redis unavailable, signals not published: %v", err)
		} else {
			defer pub.Close()
			backends = append(backends, notification.Named{Name: "redis", Notifier: pub})
			pinger = pub
			health.SetRedisEnabled(true)
			go watchBreaker(ctx, pub, m)
		}
	}
	notifier := notification.NewMulti(backends...)
	notifier.OnFailure = func(backend string) { m.NotifyFailures.WithLabelValues(backend).Inc() }
	log.Printf("[autotrader] %d notification backends", notifier.Len())

	// Broker + loop-owned core
	ctrl := newControl(cfg)
	if c, ok := ctrl.(io.Closer); ok {
		defer c.Close()
	}
	st, err := newStack(cfg, ctrl, store, notifier, lg)
	if err != nil {
		return err
	}
	limits := portfolio.RiskLimits{
		MaxOrderQty:    int64(cfg.RiskMaxOrderQty),
		MaxOrderValue:  int64(cfg.RiskMaxOrderValue),
		MaxDailyOrders: cfg.RiskMaxDailyOrders,
	}
	if limits.Enabled() {
		st.service.SetRisk(portfolio.NewRiskManager(limits))
		log.Printf("[autotrader] risk limits: qty=%d value=%d daily=%d",
			limits.MaxOrderQty, limits.MaxOrderValue, limits.MaxDailyOrders)
	}
	st.session.OnStateChange = func(s broker.State) { m.BrokerState.Set(float64(s)) }
	st.session.OnRequest = m.ObserveBrokerRequest
	st.service.OnSignal = func(kind, signal string) { m.SignalsTotal.WithLabelValues(kind, signal).Inc() }
	st.disp.OnTick = func(depth int) {
		m.QueueDepth.WithLabelValues("in").Set(float64(depth))
		m.QueueDepth.WithLabelValues("out").Set(float64(st.queues.Out.Len()))
		health.SetLastTickTime(time.Now())
	}
	st.disp.OnResult = func(kind command.Kind, status string, d time.Duration) {
		m.ObserveCommand(kind.String(), status, d)
	}
	st.bridge.OnTimeout = func(kind command.Kind) { m.BridgeTimeouts.WithLabelValues(kind.String()).Inc() }
	st.bridge.OnDrained = func(n int) { m.StaleDrained.Add(float64(n)) }

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = st.session.Connect(connectCtx)
	connectCancel()
	if err != nil {
		return err
	}
	health.SetBrokerConnected(st.session.Connected())

	loopDone := st.start(ctx)

	// HTTP API
	timeouts := timeoutsFrom(cfg)
	srv := api.NewServer(st.bridge, timeouts, store, lg)
	srv.Signals = hub
	srv.Health = health
	srv.Risk = st.service
	if cfg.OpenAIKey != "" {
		srv.News = &news.Service{
			Scraper: news.NewScraper(cfg.NewsBaseURL),
			Analyst: news.NewAnalyst(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel),
		}
	} else {
		log.Printf("[autotrader] OPENAI_API_KEY not set, /api/news-sentiment disabled")
	}
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler()}
	go func() {
		log.Printf("[autotrader] HTTP API listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[autotrader] http server error: %v", err)
			cancel()
		}
	}()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer)
	metricsSrv.Start()
	health.StartLivenessChecker(ctx, pinger, store.DB(), 15*time.Second)

	// Basket volume scan
	sch := scheduler.New(st.bridge, store, cfg.ScanInterval, timeouts, lg)
	sch.OnScan = func(r scheduler.Report) {
		m.ScansTotal.WithLabelValues(r.Status).Inc()
		health.SetLastScanTime(r.At)
	}
	sch.OnMarketState = func(open bool) {
		if open {
			m.MarketState.Set(1)
		} else {
			m.MarketState.Set(0)
		}
		health.SetBrokerConnected(st.session.Connected())
	}
	go sch.Run(ctx)

	<-ctx.Done()
	log.Printf("[autotrader] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchBreaker mirrors the redis breaker state into its gauge.
func watchBreaker(ctx context.Context, pub *redis.Publisher, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RedisCircuitBreakerState.Set(float64(pub.Breaker().CurrentState()))
		}
	}
}
