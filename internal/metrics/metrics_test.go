package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

// counterValue reads one counter sample from reg. Missing samples are 0.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	// Two registries must not collide.
	r1, r2 := prometheus.NewRegistry(), prometheus.NewRegistry()
	m1 := NewMetrics(r1)
	m2 := NewMetrics(r2)

	m1.ObserveCommand("get_rsi", "ok", 20*time.Millisecond)
	m1.ObserveCommand("get_rsi", "ok", 30*time.Millisecond)
	m2.ObserveCommand("get_rsi", "error", time.Millisecond)

	if got := counterValue(t, r1, "autotrader_commands_total", map[string]string{"kind": "get_rsi", "status": "ok"}); got != 2 {
		t.Errorf("expected 2 ok commands, got %v", got)
	}
	if got := counterValue(t, r1, "autotrader_commands_total", map[string]string{"kind": "get_rsi", "status": "error"}); got != 0 {
		t.Errorf("expected registries isolated, got %v", got)
	}
}

func TestObserveBrokerRequest_CountsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveBrokerRequest("opt10081", time.Second, nil)
	m.ObserveBrokerRequest("opt10081", time.Second, errors.New("boom"))
	if got := counterValue(t, reg, "autotrader_broker_errors_total", map[string]string{"tr": "opt10081"}); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
}

func TestHealthStatus_Degraded(t *testing.T) {
	h := NewHealthStatus("SIMULATION")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before anything is up, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
}

func TestHealthStatus_HealthyWithoutRedis(t *testing.T) {
	h := NewHealthStatus("SIMULATION")
	h.SetBrokerConnected(true)
	h.SetSQLiteOK(true)
	h.SetLastTickTime(time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Enabling redis without a successful probe degrades.
	h.SetRedisEnabled(true)
	h.CheckRedis(context.Background(), fakePinger{err: errors.New("dial tcp: refused")})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with redis down, got %d", rec.Code)
	}
}

func TestCheckSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	h := NewHealthStatus("SIMULATION")
	h.CheckSQLite(context.Background(), db)
	if !h.SQLiteOK || h.LastCheckAt.IsZero() {
		t.Errorf("expected sqlite ok after probe, got %+v", h.SQLiteOK)
	}
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SignalsTotal.WithLabelValues("golden_cross", "Y").Inc()

	s := NewServer(":0", NewHealthStatus("SIMULATION"), reg)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `autotrader_signals_total{kind="golden_cross",signal="Y"} 1`) {
		t.Errorf("metric missing from exposition:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if !strings.Contains(rec.Body.String(), `"trade_mode":"SIMULATION"`) {
		t.Errorf("unexpected health body %s", rec.Body.String())
	}
}
