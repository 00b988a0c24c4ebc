// Package sqlite is the file-backed indicator store: keyed upserts of RSI,
// MACD, stochastic and volume rows per (code, date), the watch-list basket,
// scheduler heartbeats and the order journal.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Metric tables.
const (
	MetricRSI        = "rsi"
	MetricMACD       = "macd"
	MetricStochastic = "stochastic"
	MetricVolume     = "volume"
)

// metricColumns whitelists the non-key columns of each metric table.
var metricColumns = map[string][]string{
	MetricRSI:        {"rsi", "avg_gain", "avg_loss"},
	MetricMACD:       {"macd", "signal", "histogram"},
	MetricStochastic: {"percent_k", "percent_d"},
	MetricVolume:     {"volume", "close"},
}

// Store wraps a single-writer SQLite connection.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open creates the database file (and its directory) if needed, enables WAL
// and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rsi (
			code       TEXT NOT NULL,
			date       TEXT NOT NULL,
			rsi        REAL,
			avg_gain   REAL,
			avg_loss   REAL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (code, date)
		);

		CREATE TABLE IF NOT EXISTS macd (
			code       TEXT NOT NULL,
			date       TEXT NOT NULL,
			macd       REAL,
			signal     REAL,
			histogram  REAL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (code, date)
		);

		CREATE TABLE IF NOT EXISTS stochastic (
			code       TEXT NOT NULL,
			date       TEXT NOT NULL,
			percent_k  REAL,
			percent_d  REAL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (code, date)
		);

		CREATE TABLE IF NOT EXISTS volume (
			code       TEXT NOT NULL,
			date       TEXT NOT NULL,
			volume     INTEGER,
			close      INTEGER,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (code, date)
		);

		CREATE TABLE IF NOT EXISTS basket (
			code     TEXT PRIMARY KEY,
			name     TEXT,
			added_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS heartbeat (
			job     TEXT PRIMARY KEY,
			status  TEXT NOT NULL,
			beat_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS orders (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			client_ref TEXT,
			side       TEXT    NOT NULL,
			code       TEXT    NOT NULL,
			qty        INTEGER NOT NULL,
			price      INTEGER NOT NULL,
			order_no   TEXT,
			status     TEXT    NOT NULL,
			message    TEXT,
			mode       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_code ON orders(code);
	`)
	return err
}

// UpsertMetric writes one (code, date) row of metric, overwriting every
// non-key column on conflict. Unknown tables or columns are rejected.
func (s *Store) UpsertMetric(ctx context.Context, metric, code, date string, fields map[string]any) error {
	allowed, ok := metricColumns[metric]
	if !ok {
		return fmt.Errorf("sqlite upsert: unknown metric %q", metric)
	}
	if code == "" || date == "" {
		return fmt.Errorf("sqlite upsert %s: code and date are required", metric)
	}
	if len(fields) == 0 {
		return fmt.Errorf("sqlite upsert %s: no fields", metric)
	}

	cols := make([]string, 0, len(fields))
	for k := range fields {
		if !contains(allowed, k) {
			return fmt.Errorf("sqlite upsert %s: unknown column %q", metric, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	args := []any{code, date}
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		args = append(args, bindValue(fields[c]))
		sets = append(sets, c+" = excluded."+c)
	}
	args = append(args, time.Now().Unix())
	sets = append(sets, "updated_at = excluded.updated_at")

	q := fmt.Sprintf(
		"INSERT INTO %s (code, date, %s, updated_at) VALUES (?, ?, %s?) ON CONFLICT(code, date) DO UPDATE SET %s",
		metric, strings.Join(cols, ", "), strings.Repeat("?, ", len(cols)), strings.Join(sets, ", "),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("sqlite upsert %s: %w", metric, err)
	}
	return nil
}

// UpsertRSI stores an RSI row.
func (s *Store) UpsertRSI(ctx context.Context, code, date string, rsi, avgGain, avgLoss float64) error {
	return s.UpsertMetric(ctx, MetricRSI, code, date, map[string]any{
		"rsi": rsi, "avg_gain": avgGain, "avg_loss": avgLoss,
	})
}

// UpsertMACD stores a MACD row.
func (s *Store) UpsertMACD(ctx context.Context, code, date string, macd, signal, histogram float64) error {
	return s.UpsertMetric(ctx, MetricMACD, code, date, map[string]any{
		"macd": macd, "signal": signal, "histogram": histogram,
	})
}

// UpsertStochastic stores a slow-stochastic row. NaN is stored as NULL.
func (s *Store) UpsertStochastic(ctx context.Context, code, date string, k, d float64) error {
	return s.UpsertMetric(ctx, MetricStochastic, code, date, map[string]any{
		"percent_k": k, "percent_d": d,
	})
}

// UpsertVolume stores a daily volume row.
func (s *Store) UpsertVolume(ctx context.Context, code, date string, volume, closePrice int64) error {
	return s.UpsertMetric(ctx, MetricVolume, code, date, map[string]any{
		"volume": volume, "close": closePrice,
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bindValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
