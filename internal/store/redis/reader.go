package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"autotrader/internal/notification"

	goredis "github.com/go-redis/redis/v8"
)

// Latest returns the most recent alert published for kind and code, or nil
// when none is stored.
func (p *Publisher) Latest(ctx context.Context, kind, code string) (*notification.Alert, error) {
	data, err := p.client.Get(ctx, LatestKey(kind, code)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get latest %s:%s: %w", kind, code, err)
	}
	var a notification.Alert
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("unmarshal alert: %w", err)
	}
	return &a, nil
}

// History returns up to count alerts from the signal stream, newest first.
func (p *Publisher) History(ctx context.Context, count int64) ([]notification.Alert, error) {
	msgs, err := p.client.XRevRangeN(ctx, signalStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange: %w", err)
	}
	out := make([]notification.Alert, 0, len(msgs))
	for _, m := range msgs {
		s, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var a notification.Alert
		if json.Unmarshal([]byte(s), &a) == nil {
			out = append(out, a)
		}
	}
	return out, nil
}
