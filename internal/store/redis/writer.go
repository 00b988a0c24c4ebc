// Package redis publishes trade signals to Redis: a pub/sub channel for live
// consumers, a capped stream for history and a latest-value key per
// (kind, code). Writes go through a circuit breaker and are buffered while it
// is open.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"autotrader/internal/notification"

	goredis "github.com/go-redis/redis/v8"
)

const (
	signalStream      = "signals:stream"
	signalStreamLen   = 5000
	defaultLatestTTL  = 24 * time.Hour
	defaultMaxBuffer  = 1000
	defaultChannel    = "signals"
	breakerMaxFailure = 3
	breakerReset      = 10 * time.Second
)

// Config configures the Redis publisher.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	Channel   string // pub/sub channel for signals
	LatestTTL time.Duration
	MaxBuffer int // alerts kept while the breaker is open
}

// Publisher writes signal alerts to Redis. It satisfies notification.Notifier.
type Publisher struct {
	client  *goredis.Client
	channel string
	ttl     time.Duration
	cb      *CircuitBreaker

	mu     sync.Mutex
	buffer []notification.Alert
	maxBuf int

	// OnBuffer is called when an alert is buffered, OnFlush after a replay.
	OnBuffer func()
	OnFlush  func(count int)
}

// Dial connects to Redis, pings it and returns a Publisher.
func Dial(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewPublisher(client, cfg), nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client *goredis.Client, cfg Config) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	p := &Publisher{
		client:  client,
		channel: cfg.Channel,
		ttl:     cfg.LatestTTL,
		cb:      NewCircuitBreaker(breakerMaxFailure, breakerReset),
		maxBuf:  cfg.MaxBuffer,
	}
	p.cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] breaker %s -> %s", from, to)
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker for metrics.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// LatestKey is the key holding the most recent alert for kind and code.
func LatestKey(kind, code string) string {
	return "signal:latest:" + kind + ":" + code
}

// Send publishes alert through the breaker. While the breaker is open the
// alert is buffered and Send returns nil.
func (p *Publisher) Send(ctx context.Context, alert notification.Alert) error {
	err := p.cb.Execute(func() error { return p.publish(ctx, alert) })
	if err == ErrCircuitOpen {
		p.bufferAlert(alert)
		return nil
	}
	return err
}

// publish pipelines SET latest + XADD + PUBLISH in one round trip.
func (p *Publisher) publish(ctx context.Context, alert notification.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("redis marshal alert: %w", err)
	}
	payload := string(data)

	pipe := p.client.Pipeline()
	if alert.Kind != "" && alert.Code != "" {
		pipe.Set(ctx, LatestKey(alert.Kind, alert.Code), payload, p.ttl)
	}
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: signalStream,
		MaxLen: signalStreamLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	})
	pipe.Publish(ctx, p.channel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", alert.Kind, err)
	}
	return nil
}

func (p *Publisher) bufferAlert(alert notification.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		// Buffer full, drop oldest
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, alert)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered alerts once the breaker closes.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for _, a := range toFlush {
		if err := p.publish(ctx, a); err != nil {
			log.Printf("[redis] replay of buffered alert failed: %v", err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered alerts", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// Pending returns the number of buffered alerts.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
