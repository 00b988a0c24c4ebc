package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"autotrader/internal/bridge"
	"autotrader/internal/command"
	"autotrader/internal/model"
	"autotrader/internal/news"
	"autotrader/internal/portfolio"
	"autotrader/internal/store/sqlite"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type fakeCaller struct {
	mu       sync.Mutex
	cmds     []command.Command
	timeouts []time.Duration
	reply    func(command.Command) command.Result
}

func (f *fakeCaller) Call(ctx context.Context, cmd command.Command, timeout time.Duration) command.Result {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.timeouts = append(f.timeouts, timeout)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(cmd)
	}
	return command.OK(map[string]string{"kind": cmd.Kind.String()})
}

func (f *fakeCaller) last(t *testing.T) (command.Command, time.Duration) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cmds) == 0 {
		t.Fatal("expected a command to be called")
	}
	return f.cmds[len(f.cmds)-1], f.timeouts[len(f.timeouts)-1]
}

type fakeNews struct {
	rep   news.Report
	err   error
	query string
	count int
}

func (f *fakeNews) Sentiment(ctx context.Context, query string, count int) (news.Report, error) {
	f.query, f.count = query, count
	return f.rep, f.err
}

var testTimeouts = bridge.Timeouts{Order: time.Second, Cross: 3 * time.Second, Slow: 5 * time.Second}

func newTestServer(t *testing.T, calls *fakeCaller) (*Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewServer(calls, testTimeouts, store, nil), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// ────────────────────────────────────────────────────────────
// Command routes
// ────────────────────────────────────────────────────────────

func TestCommandRoutes_MapToKinds(t *testing.T) {
	calls := &fakeCaller{}
	srv, _ := newTestServer(t, calls)
	h := srv.Handler()

	cases := []struct {
		method, target, body string
		want                 command.Kind
		timeout              time.Duration
	}{
		{"GET", "/api/account", "", command.AccountQuery, time.Second},
		{"GET", "/api/available_cash", "", command.CashQuery, time.Second},
		{"GET", "/api/holdings", "", command.Holdings, time.Second},
		{"GET", "/api/volume-leaders", "", command.VolumeLeaders, time.Second},
		{"GET", "/api/unfilled-orders", "", command.UnfilledOrders, time.Second},
		{"POST", "/api/buy", `{"code":"005930","price":70000,"qty":1}`, command.PlaceOrder, time.Second},
		{"POST", "/api/cancel", `{"order_no":"1","code":"005930","qty":0,"order_type":"buy"}`, command.CancelOrder, time.Second},
		{"GET", "/api/rsi?code=005930", "", command.RSI, time.Second},
		{"GET", "/api/moving-average?code=005930", "", command.MovingAverage, time.Second},
		{"GET", "/api/golden-cross?code=005930", "", command.GoldenCross, 3 * time.Second},
		{"GET", "/api/dead-cross?code=005930", "", command.DeadCross, 3 * time.Second},
		{"GET", "/api/stochastic?code=005930", "", command.StochasticStandard, time.Second},
		{"GET", "/api/stochastic-extended?code=005930", "", command.StochasticExtended, 3 * time.Second},
		{"GET", "/api/search-stock?code=005930", "", command.SearchStock, time.Second},
		{"GET", "/api/macd?code=005930", "", command.MACDQuery, time.Second},
		{"GET", "/api/volume-search?code=005930", "", command.VolumeSearch, 3 * time.Second},
		{"POST", "/api/save-volume", `{"code":"005930"}`, command.SaveVolume, time.Second},
	}
	for _, tc := range cases {
		rec := do(t, h, tc.method, tc.target, tc.body)
		if rec.Code != http.StatusOK {
			t.Errorf("%s %s: status %d body %s", tc.method, tc.target, rec.Code, rec.Body.String())
			continue
		}
		cmd, timeout := calls.last(t)
		if cmd.Kind != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.target, tc.want, cmd.Kind)
		}
		if timeout != tc.timeout {
			t.Errorf("%s: expected timeout %v, got %v", tc.target, tc.timeout, timeout)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("%s: missing CORS header", tc.target)
		}
	}
}

func TestSell_StringNumbersAccepted(t *testing.T) {
	calls := &fakeCaller{}
	srv, _ := newTestServer(t, calls)

	rec := do(t, srv.Handler(), "POST", "/api/sell", `{"code":"000660","price":"120,000","qty":"3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	cmd, _ := calls.last(t)
	o := cmd.Payload.(command.Order)
	if o.Side != command.SideSell || o.Code != "000660" || o.Price != 120000 || o.Qty != 3 {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestRSI_QueryParams(t *testing.T) {
	calls := &fakeCaller{}
	srv, _ := newTestServer(t, calls)

	do(t, srv.Handler(), "GET", "/api/rsi?code=035420&method=ema&period=9", "")
	cmd, _ := calls.last(t)
	q := cmd.Payload.(command.RSIQuery)
	if q.Code != "035420" || q.Method != "ema" || q.Period != 9 {
		t.Errorf("unexpected query %+v", q)
	}
}

func TestCommandRoute_WrongMethodAndBadBody(t *testing.T) {
	calls := &fakeCaller{}
	srv, _ := newTestServer(t, calls)
	h := srv.Handler()

	if rec := do(t, h, "GET", "/api/buy", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /api/buy, got %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/buy", "{not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", rec.Code)
	}
	if rec := do(t, h, "OPTIONS", "/api/buy", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if len(calls.cmds) != 0 {
		t.Errorf("expected no commands, got %d", len(calls.cmds))
	}
}

func TestCommandRoute_TimeoutIs504(t *testing.T) {
	calls := &fakeCaller{reply: func(command.Command) command.Result { return command.Timeout }}
	srv, _ := newTestServer(t, calls)

	rec := do(t, srv.Handler(), "GET", "/api/account", "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["error"] != "timeout" {
		t.Errorf("expected timeout body, got %v", body)
	}
}

func TestCommandRoute_ErrorResultIs200(t *testing.T) {
	calls := &fakeCaller{reply: func(command.Command) command.Result {
		return command.Fail(errors.New("broker: not connected"))
	}}
	srv, _ := newTestServer(t, calls)

	rec := do(t, srv.Handler(), "GET", "/api/holdings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "broker: not connected" {
		t.Errorf("unexpected body %v", body)
	}
}

// ────────────────────────────────────────────────────────────
// Basket, journal
// ────────────────────────────────────────────────────────────

func TestBasket_CRUD(t *testing.T) {
	calls := &fakeCaller{reply: func(cmd command.Command) command.Result {
		if cmd.Kind == command.SearchStock {
			return command.OK(map[string]any{"code": "005930", "name": "삼성전자"})
		}
		return command.Fail(errors.New("unexpected"))
	}}
	srv, _ := newTestServer(t, calls)
	h := srv.Handler()

	if rec := do(t, h, "POST", "/api/basket", `{"code":"005930"}`); rec.Code != http.StatusOK {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, "POST", "/api/basket", `{"code":"000660","name":"SK하이닉스"}`); rec.Code != http.StatusOK {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	if len(calls.cmds) != 1 {
		t.Errorf("expected one name lookup, got %d", len(calls.cmds))
	}

	items := decode[[]sqlite.BasketItem](t, do(t, h, "GET", "/api/basket", ""))
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	names := map[string]string{}
	for _, it := range items {
		names[it.Code] = it.Name
	}
	if names["005930"] != "삼성전자" || names["000660"] != "SK하이닉스" {
		t.Errorf("unexpected names %v", names)
	}

	if rec := do(t, h, "DELETE", "/api/basket?code=005930", ""); rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := do(t, h, "DELETE", "/api/basket?code=005930", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/basket", `{"code":" "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank code: expected 400, got %d", rec.Code)
	}
}

func TestBasket_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCaller{})
	rec := do(t, srv.Handler(), "GET", "/api/basket", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected [], got %q", rec.Body.String())
	}
}

func TestJournal_NewestFirst(t *testing.T) {
	srv, store := newTestServer(t, &fakeCaller{})
	ctx := context.Background()
	for i, code := range []string{"005930", "000660", "035720"} {
		_, err := store.RecordOrder(ctx, model.JournalEntry{
			Side: "buy", Code: code, Qty: int64(i + 1), Status: "SUBMITTED", Mode: "SIMULATION",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got := decode[[]model.JournalEntry](t, do(t, srv.Handler(), "GET", "/api/orders/journal?limit=2", ""))
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Code != "035720" {
		t.Errorf("expected newest first, got %s", got[0].Code)
	}
}

// ────────────────────────────────────────────────────────────
// News, health
// ────────────────────────────────────────────────────────────

func TestNewsSentiment(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCaller{})
	fn := &fakeNews{rep: news.Report{Query: "코스피", Sentiment: news.Sentiment{Answer: "맑음", Direction: news.Positive}}}
	srv.News = fn

	rec := do(t, srv.Handler(), "GET", "/api/news-sentiment?q=%EC%BD%94%EC%8A%A4%ED%94%BC&count=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if fn.query != "코스피" || fn.count != 5 {
		t.Errorf("unexpected args %q %d", fn.query, fn.count)
	}
	if body := decode[map[string]any](t, rec); body["direction"] != "positive" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestNewsSentiment_Errors(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCaller{})
	h := srv.Handler()
	if rec := do(t, h, "GET", "/api/news-sentiment", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured: expected 503, got %d", rec.Code)
	}

	srv.News = &fakeNews{err: context.DeadlineExceeded}
	if rec := do(t, h, "GET", "/api/news-sentiment", ""); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("deadline: expected 504, got %d", rec.Code)
	}
	srv.News = &fakeNews{err: errors.New("llm status 429")}
	if rec := do(t, h, "GET", "/api/news-sentiment", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("upstream: expected 502, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCaller{})
	rec := do(t, srv.Handler(), "GET", "/api/health", "")
	if body := decode[map[string]any](t, rec); body["status"] != "ok" {
		t.Errorf("unexpected health %v", body)
	}

	srv.Health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if rec := do(t, srv.Handler(), "GET", "/api/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected delegated status, got %d", rec.Code)
	}
}

type fixedRisk struct{ st *portfolio.RiskStatus }

func (f fixedRisk) RiskStatus() *portfolio.RiskStatus { return f.st }

func TestRisk(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCaller{})
	if body := decode[map[string]any](t, do(t, srv.Handler(), "GET", "/api/risk", "")); body["enabled"] != false {
		t.Errorf("expected disabled without reporter, got %v", body)
	}

	srv.Risk = fixedRisk{&portfolio.RiskStatus{Day: "20250314", Orders: 3, Rejected: 1}}
	body := decode[map[string]any](t, do(t, srv.Handler(), "GET", "/api/risk", ""))
	if body["enabled"] != true || body["orders_today"] != float64(3) || body["rejected_today"] != float64(1) {
		t.Errorf("unexpected risk body %v", body)
	}
}
