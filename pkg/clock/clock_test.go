package clock

import (
	"sync"
	"testing"
)

func TestTickMonotonicallyIncreases(t *testing.T) {
	c := New()
	prev := c.Peek()
	for i := 0; i < 100; i++ {
		ts := c.Tick()
		if ts <= prev {
			t.Fatalf("Tick %d: got %d, want > %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestTickStartsFromZero(t *testing.T) {
	c := New()
	if v := c.Peek(); v != 0 {
		t.Fatalf("new clock: got %d, want 0", v)
	}
	if ts := c.Tick(); ts != 1 {
		t.Fatalf("first Tick: got %d, want 1", ts)
	}
}

func TestMergeMaxPlusOne(t *testing.T) {
	c := New()
	c.Set(5)

	ts := c.Merge(10)
	if ts != 11 {
		t.Fatalf("Merge(10) from 5: got %d, want 11", ts)
	}

	ts = c.Merge(3)
	if ts != 12 {
		t.Fatalf("Merge(3) from 11: got %d, want 12", ts)
	}
}

func TestMergeEqualTimestamp(t *testing.T) {
	c := New()
	c.Set(10)
	ts := c.Merge(10)
	if ts != 11 {
		t.Fatalf("Merge(10) from 10: got %d, want 11", ts)
	}
}

func TestSetAndPeek(t *testing.T) {
	c := New()
	c.Set(42)
	if v := c.Peek(); v != 42 {
		t.Fatalf("after Set(42): got %d, want 42", v)
	}
}

func TestSetThenTick(t *testing.T) {
	c := New()
	c.Set(100)
	ts := c.Tick()
	if ts != 101 {
		t.Fatalf("Tick after Set(100): got %d, want 101", ts)
	}
}

// TestConcurrentTickMerge exercises the CAS loop under contention: every
// returned timestamp across all goroutines must be unique, and the final
// value must be at least the number of operations performed.
func TestConcurrentTickMerge(t *testing.T) {
	c := New()
	const goroutines = 50
	const perGoroutine = 100

	seen := make(chan uint64, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if i%2 == 0 {
					seen <- c.Tick()
				} else {
					seen <- c.Merge(uint64(g))
				}
			}
		}(g)
	}
	wg.Wait()
	close(seen)

	dups := make(map[uint64]bool)
	count := 0
	for ts := range seen {
		if dups[ts] {
			t.Fatalf("duplicate timestamp %d returned under concurrent tick/merge", ts)
		}
		dups[ts] = true
		count++
	}
	if count != goroutines*perGoroutine {
		t.Fatalf("got %d timestamps, want %d", count, goroutines*perGoroutine)
	}
	if v := c.Peek(); v < goroutines*perGoroutine {
		t.Fatalf("final value %d, want at least %d", v, goroutines*perGoroutine)
	}
}
