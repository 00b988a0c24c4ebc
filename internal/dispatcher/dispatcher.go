// Package dispatcher is the single worker that executes queued Commands on
// the event loop: one Command per tick, one Result per Command.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"autotrader/internal/command"
	"autotrader/internal/eventloop"
	"autotrader/internal/logger"
	"autotrader/internal/queue"
)

// Queues bundles the two hand-off points shared with the bridge.
type Queues struct {
	In  *queue.Queue[command.Command]
	Out *queue.Queue[command.Result]
}

// NewQueues allocates both queues with the same capacity.
func NewQueues(capacity int) Queues {
	return Queues{
		In:  queue.New[command.Command](capacity),
		Out: queue.New[command.Result](capacity),
	}
}

// ErrMissingHandler is returned by New when a Kind has no handler.
var ErrMissingHandler = errors.New("dispatcher: missing handler")

// Dispatcher pops Commands from Queues.In on a fixed tick.
type Dispatcher struct {
	loop     *eventloop.Loop
	q        Queues
	handlers map[command.Kind]command.Handler
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	busy bool // loop goroutine only

	// OnResult, when set, observes every executed Command. status is
	// "ok", "error", "insufficient_data" or "panic".
	OnResult func(kind command.Kind, status string, d time.Duration)
	// OnTick, when set, is called at the start of every tick that runs.
	OnTick func(inDepth int)
}

// New validates that every Kind has a handler.
func New(loop *eventloop.Loop, q Queues, handlers map[command.Kind]command.Handler, interval time.Duration, log *slog.Logger) (*Dispatcher, error) {
	var missing []string
	for _, k := range command.AllKinds() {
		if handlers[k] == nil {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %v", ErrMissingHandler, missing)
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	cp := make(map[command.Kind]command.Handler, len(handlers))
	for k, h := range handlers {
		cp[k] = h
	}
	return &Dispatcher{
		loop:     loop,
		q:        q,
		handlers: cp,
		interval: interval,
		log:      logger.OrDefault(log).With("component", "dispatcher"),
		now:      time.Now,
	}, nil
}

// Start schedules the tick on the loop. The returned func stops it.
func (d *Dispatcher) Start(ctx context.Context) (stop func()) {
	d.log.Info("dispatcher started", "interval", d.interval)
	return d.loop.Every(ctx, d.interval, func() { d.Tick(ctx) })
}

// Tick processes at most one Command. It must run on the loop. A tick that
// arrives while a Command is still running (parked in a nested broker wait)
// does nothing.
func (d *Dispatcher) Tick(ctx context.Context) {
	if d.busy {
		return
	}
	if d.OnTick != nil {
		d.OnTick(d.q.In.Len())
	}
	cmd, ok := d.q.In.Pop()
	if !ok {
		return
	}
	d.busy = true
	defer func() { d.busy = false }()

	start := d.now()
	tid := logger.GenerateTraceID(cmd.Kind.String(), start)
	cctx := logger.WithTraceID(ctx, tid)

	res, status := d.run(cctx, cmd)
	if !d.q.Out.Push(res) {
		d.log.Error("outbound queue full, result dropped", "kind", cmd.Kind.String(), "trace_id", tid)
	}
	elapsed := d.now().Sub(start)
	if d.OnResult != nil {
		d.OnResult(cmd.Kind, status, elapsed)
	}
	d.log.Info("command done", "kind", cmd.Kind.String(), "status", status, "elapsed", elapsed, "trace_id", tid)
}

func (d *Dispatcher) run(ctx context.Context, cmd command.Command) (res command.Result, status string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic", append([]any{"kind", cmd.Kind.String(), "panic", r, "stack", string(debug.Stack())}, logger.LogWithTrace(ctx)...)...)
			res, status = command.Result{Err: fmt.Sprintf("internal error: %v", r)}, "panic"
		}
	}()
	v, err := d.handlers[cmd.Kind](ctx, cmd)
	if err != nil {
		d.log.Warn("command failed", append([]any{"kind", cmd.Kind.String(), "error", err}, logger.LogWithTrace(ctx)...)...)
		r := command.Fail(err)
		if r.IsError() {
			return r, "error"
		}
		return r, "insufficient_data"
	}
	return command.OK(v), "ok"
}
