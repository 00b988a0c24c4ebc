// Package bridge turns a queued Command into a blocking call for HTTP
// handlers and the scheduler.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autotrader/internal/command"
	"autotrader/internal/dispatcher"
	"autotrader/internal/logger"
)

// DefaultPollInterval is how often the outbound queue is checked.
const DefaultPollInterval = 100 * time.Millisecond

var (
	// ErrTimeout is reported through Result.Err as "timeout".
	ErrTimeout = errors.New("timeout")
	// ErrQueueFull is returned when the inbound queue rejects a Command.
	ErrQueueFull = errors.New("bridge: inbound queue full")
)

// Bridge serializes callers over the dispatcher queues. Results carry no
// correlation id, so exactly one call may be outstanding: a call slot is
// held from enqueue until the Result is taken or the wait gives up.
type Bridge struct {
	q    dispatcher.Queues
	poll time.Duration
	log  *slog.Logger

	slot chan struct{}

	// OnTimeout and OnDrained are optional metric hooks.
	OnTimeout func(kind command.Kind)
	OnDrained func(n int)
}

// New creates a bridge over q.
func New(q dispatcher.Queues, poll time.Duration, log *slog.Logger) *Bridge {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Bridge{
		q:    q,
		poll: poll,
		log:  logger.OrDefault(log).With("component", "bridge"),
		slot: make(chan struct{}, 1),
	}
}

// Call enqueues cmd and waits up to timeout for its Result. Any Result left
// behind by an earlier timed-out call is discarded first. A timeout does not
// cancel the Command; its Result is dropped by the next call.
func (b *Bridge) Call(ctx context.Context, cmd command.Command, timeout time.Duration) command.Result {
	deadline := time.Now().Add(timeout)
	wctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	select {
	case b.slot <- struct{}{}:
	case <-wctx.Done():
		return b.timedOut(cmd)
	}
	defer func() { <-b.slot }()

	if stale := b.q.Out.Drain(); len(stale) > 0 {
		b.log.Warn("discarded stale results", "count", len(stale), "kind", cmd.Kind.String())
		if b.OnDrained != nil {
			b.OnDrained(len(stale))
		}
	}
	if !b.q.In.Push(cmd) {
		return command.Fail(ErrQueueFull)
	}

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		if r, ok := b.q.Out.Pop(); ok {
			return r
		}
		select {
		case <-wctx.Done():
			// One last look so a Result that landed on the deadline is not lost.
			if r, ok := b.q.Out.Pop(); ok {
				return r
			}
			return b.timedOut(cmd)
		case <-ticker.C:
		}
	}
}

func (b *Bridge) timedOut(cmd command.Command) command.Result {
	b.log.Warn("call timed out", "kind", cmd.Kind.String())
	if b.OnTimeout != nil {
		b.OnTimeout(cmd.Kind)
	}
	return command.Timeout
}

// Timeouts per call class.
type Timeouts struct {
	Order time.Duration // orders and account queries
	Cross time.Duration // cross detection and other multi-TR analysis
	Slow  time.Duration // scraping and LLM backed calls
}

// For picks the ceiling for k.
func (t Timeouts) For(k command.Kind) time.Duration {
	switch k {
	case command.GoldenCross, command.DeadCross, command.VolumeSearch, command.StochasticExtended:
		return t.Cross
	default:
		return t.Order
	}
}
