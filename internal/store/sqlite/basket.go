package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BasketItem is one watch-list entry.
type BasketItem struct {
	Code    string    `json:"code"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// AddToBasket inserts or renames a watch-list entry.
func (s *Store) AddToBasket(ctx context.Context, code, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO basket (code, name, added_at) VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name
	`, code, name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite basket add: %w", err)
	}
	return nil
}

// RemoveFromBasket deletes code. Reports whether a row was removed.
func (s *Store) RemoveFromBasket(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM basket WHERE code = ?`, code)
	if err != nil {
		return false, fmt.Errorf("sqlite basket remove: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Basket lists watch-list entries in insertion order.
func (s *Store) Basket(ctx context.Context) ([]BasketItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, COALESCE(name, ''), added_at FROM basket ORDER BY added_at, code`)
	if err != nil {
		return nil, fmt.Errorf("sqlite basket list: %w", err)
	}
	defer rows.Close()

	var out []BasketItem
	for rows.Next() {
		var it BasketItem
		var ts int64
		if err := rows.Scan(&it.Code, &it.Name, &ts); err != nil {
			return nil, fmt.Errorf("sqlite basket scan: %w", err)
		}
		it.AddedAt = time.Unix(ts, 0)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Beat records the latest status of a scheduled job.
func (s *Store) Beat(ctx context.Context, job, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat (job, status, beat_at) VALUES (?, ?, ?)
		ON CONFLICT(job) DO UPDATE SET status = excluded.status, beat_at = excluded.beat_at
	`, job, status, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite heartbeat: %w", err)
	}
	return nil
}

// LastBeat returns the last status and time for job. ok is false when the
// job never ran.
func (s *Store) LastBeat(ctx context.Context, job string) (status string, at time.Time, ok bool, err error) {
	var ms int64
	err = s.db.QueryRowContext(ctx, `SELECT status, beat_at FROM heartbeat WHERE job = ?`, job).Scan(&status, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("sqlite heartbeat read: %w", err)
	}
	return status, time.UnixMilli(ms), true, nil
}
