// Package api is the HTTP surface used by the web front end. Broker backed
// routes go through the bridge, so each request becomes exactly one queued
// Command and its one Result.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autotrader/internal/bridge"
	"autotrader/internal/command"
	"autotrader/internal/logger"
	"autotrader/internal/model"
	"autotrader/internal/news"
	"autotrader/internal/portfolio"
	"autotrader/internal/store/sqlite"
)

// Caller runs one Command and waits for its Result.
type Caller interface {
	Call(ctx context.Context, cmd command.Command, timeout time.Duration) command.Result
}

// Store is the persistence the API reads directly. Watch-list and journal
// reads never touch the broker.
type Store interface {
	AddToBasket(ctx context.Context, code, name string) error
	RemoveFromBasket(ctx context.Context, code string) (bool, error)
	Basket(ctx context.Context) ([]sqlite.BasketItem, error)
	RecentOrders(ctx context.Context, limit int) ([]model.JournalEntry, error)
}

// Sentiment produces the news mood report.
type Sentiment interface {
	Sentiment(ctx context.Context, query string, count int) (news.Report, error)
}

// RiskReporter exposes pre-trade limit usage. A nil status means no limits.
type RiskReporter interface {
	RiskStatus() *portfolio.RiskStatus
}

// Server wires the routes. News, Signals, Health and Risk are optional.
type Server struct {
	Calls    Caller
	Timeouts bridge.Timeouts
	Store    Store
	News     Sentiment
	Signals  *SignalHub
	Health   http.Handler
	Risk     RiskReporter

	log *slog.Logger
}

// NewServer creates a server. Zero timeouts fall back to 10s/30s/60s.
func NewServer(calls Caller, timeouts bridge.Timeouts, store Store, log *slog.Logger) *Server {
	if timeouts.Order <= 0 {
		timeouts.Order = 10 * time.Second
	}
	if timeouts.Cross <= 0 {
		timeouts.Cross = 30 * time.Second
	}
	if timeouts.Slow <= 0 {
		timeouts.Slow = 60 * time.Second
	}
	return &Server{
		Calls:    calls,
		Timeouts: timeouts,
		Store:    store,
		log:      logger.OrDefault(log).With("component", "api"),
	}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

type route struct {
	path   string
	method string
	tag    string // command wire tag
}

var commandRoutes = []route{
	{"/api/account", http.MethodGet, "get_account"},
	{"/api/available_cash", http.MethodGet, "get_available_cash"},
	{"/api/holdings", http.MethodGet, "get_holdings"},
	{"/api/volume-leaders", http.MethodGet, "volume_leaders"},
	{"/api/unfilled-orders", http.MethodGet, "get_unfilled_orders"},
	{"/api/buy", http.MethodPost, command.SideBuy},
	{"/api/sell", http.MethodPost, command.SideSell},
	{"/api/cancel", http.MethodPost, "cancel_order"},
	{"/api/rsi", http.MethodGet, "get_rsi"},
	{"/api/moving-average", http.MethodGet, "get_moving_average"},
	{"/api/golden-cross", http.MethodGet, "detect_golden_cross"},
	{"/api/dead-cross", http.MethodGet, "detect_dead_cross"},
	{"/api/stochastic", http.MethodGet, "get_stochastic"},
	{"/api/stochastic-extended", http.MethodGet, "get_stochastic_extended"},
	{"/api/search-stock", http.MethodGet, "search_stock"},
	{"/api/macd", http.MethodGet, "get_macd"},
	{"/api/volume-search", http.MethodGet, "volume_search"},
	{"/api/save-volume", http.MethodPost, "save_volume"},
}

// Handler returns the complete mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register adds all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	for _, rt := range commandRoutes {
		mux.HandleFunc(rt.path, s.commandHandler(rt))
	}
	mux.HandleFunc("/api/basket", s.basket)
	mux.HandleFunc("/api/orders/journal", s.journal)
	mux.HandleFunc("/api/news-sentiment", s.newsSentiment)
	mux.HandleFunc("/api/health", s.health)
	mux.HandleFunc("/api/risk", s.risk)
	if s.Signals != nil {
		mux.HandleFunc("/ws/signals", s.Signals.ServeWS)
	}
}

// commandHandler turns query parameters (and a JSON body on POST) into a
// tagged Command. Numeric fields may arrive as strings.
func (s *Server) commandHandler(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != rt.method {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		fields := make(map[string]any)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		if r.Method == http.MethodPost {
			if err := decodeBody(r, &fields); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON")
				return
			}
		}
		fields["type"] = rt.tag

		raw, _ := json.Marshal(fields)
		cmd, err := command.Decode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		res := s.Calls.Call(r.Context(), cmd, s.Timeouts.For(cmd.Kind))
		s.log.Debug("command served", "kind", cmd.Kind.String(), "path", rt.path,
			"dur_ms", time.Since(start).Milliseconds(), "error", res.Err)

		status := http.StatusOK
		if res.IsTimeout() {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, res)
	}
}

func (s *Server) basket(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	ctx := r.Context()
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		items, err := s.Store.Basket(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if items == nil {
			items = []sqlite.BasketItem{}
		}
		writeJSON(w, http.StatusOK, items)

	case http.MethodPost:
		var req struct {
			Code string `json:"code"`
			Name string `json:"name"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		req.Code = strings.TrimSpace(req.Code)
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}
		if req.Name == "" {
			req.Name = s.lookupName(ctx, req.Code)
		}
		if err := s.Store.AddToBasket(ctx, req.Code, req.Name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.log.Info("basket add", "code", req.Code, "name", req.Name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "code": req.Code, "name": req.Name})

	case http.MethodDelete:
		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}
		removed, err := s.Store.RemoveFromBasket(ctx, code)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "not in basket: "+code)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "code": code})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// lookupName resolves a display name through search_stock. Failures leave
// the name empty.
func (s *Server) lookupName(ctx context.Context, code string) string {
	cmd, err := command.New(command.SearchStock, command.Code{Code: code})
	if err != nil {
		return ""
	}
	res := s.Calls.Call(ctx, cmd, s.Timeouts.Order)
	if res.IsError() {
		return ""
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return ""
	}
	var info struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &info)
	return info.Name
}

func (s *Server) journal(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	entries, err := s.Store.RecentOrders(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) newsSentiment(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.News == nil {
		writeError(w, http.StatusServiceUnavailable, "news sentiment not configured")
		return
	}
	count := 10
	if c, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && c > 0 && c <= 30 {
		count = c
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.Timeouts.Slow)
	defer cancel()
	rep, err := s.News.Sentiment(ctx, r.URL.Query().Get("q"), count)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "timeout")
			return
		}
		s.log.Warn("news sentiment failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) risk(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var st *portfolio.RiskStatus
	if s.Risk != nil {
		st = s.Risk.RiskStatus()
	}
	if st == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Enabled bool `json:"enabled"`
		portfolio.RiskStatus
	}{true, *st})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if s.Health != nil {
		s.Health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// decodeBody reads a JSON object into v. An empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
