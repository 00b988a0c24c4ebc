package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"autotrader/internal/model"
)

// RecentRSI returns up to limit RSI rows for code, newest first.
func (s *Store) RecentRSI(ctx context.Context, code string, limit int) ([]model.RSIRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, date, rsi, avg_gain, avg_loss
		FROM rsi WHERE code = ?
		ORDER BY date DESC LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query rsi: %w", err)
	}
	defer rows.Close()

	var out []model.RSIRecord
	for rows.Next() {
		var r model.RSIRecord
		var v, g, l sql.NullFloat64
		if err := rows.Scan(&r.Code, &r.Date, &v, &g, &l); err != nil {
			return nil, fmt.Errorf("sqlite scan rsi: %w", err)
		}
		r.RSI, r.AvgGain, r.AvgLoss = orNaN(v), orNaN(g), orNaN(l)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentMACD returns up to limit MACD rows for code, newest first.
func (s *Store) RecentMACD(ctx context.Context, code string, limit int) ([]model.MACDRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, date, macd, signal, histogram
		FROM macd WHERE code = ?
		ORDER BY date DESC LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query macd: %w", err)
	}
	defer rows.Close()

	var out []model.MACDRecord
	for rows.Next() {
		var r model.MACDRecord
		var m, sg, h sql.NullFloat64
		if err := rows.Scan(&r.Code, &r.Date, &m, &sg, &h); err != nil {
			return nil, fmt.Errorf("sqlite scan macd: %w", err)
		}
		r.MACD, r.Signal, r.Histogram = orNaN(m), orNaN(sg), orNaN(h)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentStochastic returns up to limit stochastic rows for code, newest first.
func (s *Store) RecentStochastic(ctx context.Context, code string, limit int) ([]model.StochasticRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, date, percent_k, percent_d
		FROM stochastic WHERE code = ?
		ORDER BY date DESC LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query stochastic: %w", err)
	}
	defer rows.Close()

	var out []model.StochasticRecord
	for rows.Next() {
		var r model.StochasticRecord
		var k, d sql.NullFloat64
		if err := rows.Scan(&r.Code, &r.Date, &k, &d); err != nil {
			return nil, fmt.Errorf("sqlite scan stochastic: %w", err)
		}
		r.PercentK, r.PercentD = orNaN(k), orNaN(d)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentVolume returns up to limit volume rows for code, newest first.
func (s *Store) RecentVolume(ctx context.Context, code string, limit int) ([]model.VolumeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, date, COALESCE(volume, 0), COALESCE(close, 0)
		FROM volume WHERE code = ?
		ORDER BY date DESC LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query volume: %w", err)
	}
	defer rows.Close()

	var out []model.VolumeRecord
	for rows.Next() {
		var r model.VolumeRecord
		if err := rows.Scan(&r.Code, &r.Date, &r.Volume, &r.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan volume: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
