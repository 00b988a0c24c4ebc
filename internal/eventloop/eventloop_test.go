package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l, cancel
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t)
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 4 {
				close(done)
			}
		})
	}
	<-done
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", got)
		}
	}
}

func TestLoop_WaitUntilOutsideLoop(t *testing.T) {
	l := New()
	if err := l.WaitUntil(context.Background(), func() bool { return true }); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestLoop_NestedWaitRunsOtherTasks(t *testing.T) {
	l, _ := startLoop(t)
	result := make(chan []string, 1)

	l.Post(func() {
		var trace []string
		resolved := false
		// Simulates a broker callback arriving from another goroutine.
		go func() {
			time.Sleep(20 * time.Millisecond)
			l.Post(func() {
				trace = append(trace, "callback")
				resolved = true
			})
		}()
		l.Post(func() { trace = append(trace, "timer") })

		if err := l.WaitUntil(context.Background(), func() bool { return resolved }); err != nil {
			t.Errorf("unexpected wait error: %v", err)
		}
		trace = append(trace, "resumed")
		result <- trace
	})

	select {
	case trace := <-result:
		want := []string{"timer", "callback", "resumed"}
		if len(trace) != len(want) {
			t.Fatalf("unexpected trace %v", trace)
		}
		for i := range want {
			if trace[i] != want[i] {
				t.Fatalf("unexpected trace %v", trace)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nested wait never resumed")
	}
}

func TestLoop_WaitUntilHonoursContext(t *testing.T) {
	l, _ := startLoop(t)
	errc := make(chan error, 1)
	l.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		errc <- l.WaitUntil(ctx, func() bool { return false })
	})
	select {
	case err := <-errc:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestLoop_EveryDoesNotStackTicks(t *testing.T) {
	l, _ := startLoop(t)
	var ticks atomic.Int32
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := l.Every(ctx, 5*time.Millisecond, func() {
		if ticks.Add(1) == 1 {
			// Park the first tick inside a nested wait for a while.
			l.WaitUntil(ctx, func() bool {
				select {
				case <-release:
					return true
				default:
					return false
				}
			})
		}
	})
	defer stop()

	time.Sleep(60 * time.Millisecond)
	if n := ticks.Load(); n != 1 {
		t.Fatalf("ticks must not run while one is in progress, got %d", n)
	}
	close(release)
	l.Post(func() {}) // wake the nested wait so it re-checks
	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 2 {
		t.Error("ticks should resume after the first one returns")
	}
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	if !l.Running() {
		t.Error("expected Running")
	}
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
