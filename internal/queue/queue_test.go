package queue

import (
	"sync"
	"testing"
)

func TestQueue_BasicPushPop(t *testing.T) {
	q := New[string](4)
	q.Push("a")
	q.Push("b")
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
	v, ok := q.Pop()
	if !ok || v != "a" {
		t.Errorf("expected a, got %q %v", v, ok)
	}
	v, ok = q.Pop()
	if !ok || v != "b" {
		t.Errorf("expected b, got %q %v", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_Overflow(t *testing.T) {
	q := New[int](2)
	if !q.Push(1) || !q.Push(2) {
		t.Fatal("expected two pushes to fit")
	}
	if q.Push(3) {
		t.Error("expected push to fail when full")
	}
	if q.Overflow() != 1 {
		t.Errorf("expected overflow 1, got %d", q.Overflow())
	}
}

func TestQueue_Wraparound(t *testing.T) {
	q := New[int](4)
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			q.Push(round*10 + i)
		}
		for i := 0; i < 3; i++ {
			v, ok := q.Pop()
			if !ok || v != round*10+i {
				t.Fatalf("round %d: expected %d, got %d", round, round*10+i, v)
			}
		}
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	got := q.Drain()
	if len(got) != 5 || got[0] != 0 || got[4] != 4 {
		t.Errorf("unexpected drain %v", got)
	}
	if q.Len() != 0 || q.Drain() != nil {
		t.Error("expected empty queue after drain")
	}
}

func TestQueue_MultiProducerFIFOPerProducer(t *testing.T) {
	q := New[[2]int](1 << 12)
	const producers, perProducer = 4, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.Push([2]int{p, i}) {
				}
			}
		}(p)
	}
	wg.Wait()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	n := 0
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		if v[1] != last[v[0]]+1 {
			t.Fatalf("producer %d out of order: %d after %d", v[0], v[1], last[v[0]])
		}
		last[v[0]] = v[1]
		n++
	}
	if n != producers*perProducer {
		t.Errorf("expected %d items, got %d", producers*perProducer, n)
	}
}

func TestQueue_NextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 256: 256, 257: 512}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
	if New[int](0).Cap() != 2 {
		t.Error("expected minimum capacity 2")
	}
}
