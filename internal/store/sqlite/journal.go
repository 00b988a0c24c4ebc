package sqlite

import (
	"context"
	"fmt"
	"time"

	"autotrader/internal/model"
)

// RecordOrder appends an order submission to the journal and returns its id.
func (s *Store) RecordOrder(ctx context.Context, e model.JournalEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (client_ref, side, code, qty, price, order_no, status, message, mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Ref, e.Side, e.Code, e.Qty, e.Price, e.OrderNo, e.Status, e.Message, e.Mode, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite journal insert: %w", err)
	}
	return res.LastInsertId()
}

// RecentOrders returns the last limit journal entries, newest first.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(client_ref, ''), side, code, qty, price, COALESCE(order_no, ''), status, COALESCE(message, ''), mode, created_at
		 FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal query: %w", err)
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Ref, &e.Side, &e.Code, &e.Qty, &e.Price, &e.OrderNo,
			&e.Status, &e.Message, &e.Mode, &ms); err != nil {
			return nil, fmt.Errorf("sqlite journal scan: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}
