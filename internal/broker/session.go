package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"autotrader/internal/eventloop"
	"autotrader/internal/logger"
	"autotrader/internal/model"
)

// State is the lifecycle of the single pending broker call.
type State int32

const (
	StateIdle State = iota
	StateSent
	StateAwaitingCallback
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Session wraps a Control. Request and SendOrder must be called from a task
// running on the event loop; the data callback is re-posted onto the same
// loop so it runs while Request is parked in its nested wait.
type Session struct {
	ctrl Control
	loop *eventloop.Loop
	log  *slog.Logger

	slot  sync.Mutex // single in-flight request
	state atomic.Int32

	// loop goroutine only
	pending string                // rqName awaiting its callback
	results map[string]*RecordSet // keyed by TR code

	// Optional hooks for metrics; called on the loop goroutine.
	OnStateChange func(State)
	OnRequest     func(trCode string, d time.Duration, err error)
}

// NewSession creates a session and registers its data handler on ctrl.
func NewSession(ctrl Control, loop *eventloop.Loop, log *slog.Logger) *Session {
	s := &Session{
		ctrl:    ctrl,
		loop:    loop,
		log:     logger.OrDefault(log).With("component", "broker"),
		results: make(map[string]*RecordSet),
	}
	ctrl.OnReceiveTrData(func(ev TrDataEvent) {
		loop.Post(func() { s.onData(ev) })
	})
	return s
}

// Connect logs in through the control.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.ctrl.Connect(ctx); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	s.log.Info("broker connected")
	return nil
}

// Connected reports the control's login state.
func (s *Session) Connected() bool { return s.ctrl.Connected() }

// State returns the current request state. Safe from any goroutine.
func (s *Session) State() State { return State(s.state.Load()) }

// MasterCodeName resolves an instrument name without a TR round trip.
func (s *Session) MasterCodeName(code string) string {
	return strings.TrimSpace(s.ctrl.MasterCodeName(code))
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
}

// Request issues tr with inputs and waits on the loop for its callback.
// An empty screenNo uses the TR's default. There is no timeout: only ctx
// cancellation releases a request whose callback never arrives.
func (s *Session) Request(ctx context.Context, tr TR, inputs []Input, screenNo string) (RecordSet, error) {
	if !s.ctrl.Connected() {
		return RecordSet{}, ErrNotConnected
	}
	if !s.slot.TryLock() {
		return RecordSet{}, fmt.Errorf("%s: %w", tr.Code, ErrRequestInFlight)
	}
	defer s.slot.Unlock()

	if screenNo == "" {
		screenNo = tr.ScreenNo
	}
	attrs := append([]any{"tr", tr.Code, "rq", tr.RqName, "screen", screenNo}, logger.LogWithTrace(ctx)...)
	start := time.Now()

	// A stale result for this key must never satisfy the wait.
	delete(s.results, tr.Code)
	s.setState(StateSent)
	for _, in := range inputs {
		s.ctrl.SetInputValue(in.ID, in.Value)
	}
	s.pending = tr.RqName
	if err := s.ctrl.CommRqData(tr.RqName, tr.Code, 0, screenNo); err != nil {
		s.pending = ""
		s.setState(StateIdle)
		s.observe(tr.Code, start, err)
		s.log.Error("CommRqData failed", append(attrs, "error", err)...)
		return RecordSet{}, fmt.Errorf("%s: %w", tr.Code, err)
	}

	s.setState(StateAwaitingCallback)
	s.log.Debug("awaiting tr callback", attrs...)
	err := s.loop.WaitUntil(ctx, func() bool {
		_, ok := s.results[tr.Code]
		return ok
	})
	if err != nil {
		s.pending = ""
		s.setState(StateIdle)
		s.observe(tr.Code, start, err)
		return RecordSet{}, fmt.Errorf("%s: %w", tr.Code, err)
	}

	rs := s.results[tr.Code]
	delete(s.results, tr.Code)
	s.setState(StateResolved)
	s.setState(StateIdle)
	s.observe(tr.Code, start, nil)
	s.log.Debug("tr resolved", append(attrs, "rows", len(rs.Rows), "elapsed", time.Since(start))...)
	return *rs, nil
}

func (s *Session) observe(tr string, start time.Time, err error) {
	if s.OnRequest != nil {
		s.OnRequest(tr, time.Since(start), err)
	}
}

// onData runs on the loop. Callbacks that do not match the pending request
// are ignored.
func (s *Session) onData(ev TrDataEvent) {
	if s.pending == "" || ev.RqName != s.pending {
		s.log.Warn("ignoring unexpected tr callback", "tr", ev.TrCode, "rq", ev.RqName, "pending", s.pending)
		return
	}
	tr, ok := lookupTR(ev.TrCode)
	if !ok {
		s.log.Warn("callback for unknown tr", "tr", ev.TrCode)
		return
	}

	rs := &RecordSet{TrCode: ev.TrCode, Single: make(map[string]string, len(tr.Single))}
	for _, f := range tr.Single {
		rs.Single[f] = strings.TrimSpace(s.ctrl.GetCommData(ev.TrCode, ev.RqName, 0, f))
	}
	if len(tr.Multi) > 0 {
		n := s.ctrl.GetRepeatCount(ev.TrCode, ev.RqName)
		rs.Rows = make([]map[string]string, 0, n)
		for i := 0; i < n; i++ {
			row := make(map[string]string, len(tr.Multi))
			for _, f := range tr.Multi {
				row[f] = strings.TrimSpace(s.ctrl.GetCommData(ev.TrCode, ev.RqName, i, f))
			}
			rs.Rows = append(rs.Rows, row)
		}
	}
	s.results[ev.TrCode] = rs
	s.pending = ""
}

// SendOrder submits req. The result reports only whether the broker accepted
// the submission, not whether it filled.
func (s *Session) SendOrder(ctx context.Context, req model.OrderRequest) error {
	if !s.ctrl.Connected() {
		return ErrNotConnected
	}
	if !s.slot.TryLock() {
		return fmt.Errorf("send order: %w", ErrRequestInFlight)
	}
	defer s.slot.Unlock()

	if req.ScreenNo == "" {
		req.ScreenNo = ScreenOrder
	}
	start := time.Now()
	code, err := s.ctrl.SendOrder(req)
	if err == nil && code != 0 {
		err = fmt.Errorf("%w (code %d)", ErrOrderRejected, code)
	}
	s.observe("send_order", start, err)
	s.log.Info("order submitted", append([]any{
		"side", req.Side(), "code", req.Code, "qty", req.Qty, "price", req.Price,
		"cancel", req.IsCancel(), "error", err,
	}, logger.LogWithTrace(ctx)...)...)
	return err
}

var knownTRs = []TR{TRBalance, TRCash, TRVolumeLeaders, TRUnfilled, TRDailyBars, TRStockInfo}

func lookupTR(code string) (TR, bool) {
	for _, tr := range knownTRs {
		if tr.Code == code {
			return tr, true
		}
	}
	return TR{}, false
}
