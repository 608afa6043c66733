// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ring

import (
	"sync"
	"testing"
)

func TestEnqueueDequeueBasic(t *testing.T) {
	r := New(4)
	if got := r.Enqueue([]uint32{1, 2, 3}); got != 3 {
		t.Fatalf("enqueue: got %d, want 3", got)
	}
	dst := make([]uint32, 3)
	if got := r.Dequeue(dst); got != 3 {
		t.Fatalf("dequeue: got %d, want 3", got)
	}
	if dst[0] != 1 || dst[1] != 2 || dst[2] != 3 {
		t.Fatalf("dequeue order: got %v", dst)
	}
}

func TestEnqueuePartialWhenFull(t *testing.T) {
	r := New(4)
	if got := r.Enqueue([]uint32{1, 2, 3, 4, 5, 6, 7, 8}); got != int(r.Cap()) {
		t.Fatalf("enqueue: got %d, want %d", got, r.Cap())
	}
	if got := r.Enqueue([]uint32{5}); got != 0 {
		t.Fatalf("enqueue into full ring: got %d, want 0", got)
	}
}

func TestDequeueEmpty(t *testing.T) {
	r := New(4)
	dst := make([]uint32, 1)
	if got := r.Dequeue(dst); got != 0 {
		t.Fatalf("dequeue from empty ring: got %d, want 0", got)
	}
}

func TestEnqueueOneDequeueOne(t *testing.T) {
	r := New(1)
	if !r.EnqueueOne(42) {
		t.Fatal("EnqueueOne failed on empty ring")
	}
	v, ok := r.DequeueOne()
	if !ok || v != 42 {
		t.Fatalf("DequeueOne: got (%d, %v), want (42, true)", v, ok)
	}
	if _, ok := r.DequeueOne(); ok {
		t.Fatal("DequeueOne succeeded on empty ring")
	}
}

// TestConcurrentProducersConsumers races many goroutines enqueuing and
// dequeuing distinct values through a small ring and checks that every
// value enqueued is dequeued exactly once, which is the invariant the
// cuckoo table's slot allocator depends on: two writers must never be
// handed the same free key-store slot.
func TestConcurrentProducersConsumers(t *testing.T) {
	const total = 20000
	r := New(64)

	var wg sync.WaitGroup
	const producers = 8
	per := total / producers
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < per; {
				if r.EnqueueOne(uint32(base + i)) {
					i++
				}
			}
		}(p * per)
	}

	seen := make([]bool, total)
	var mu sync.Mutex
	var consumed int
	var cwg sync.WaitGroup
	const consumers = 8
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				mu.Lock()
				if consumed >= total {
					mu.Unlock()
					return
				}
				mu.Unlock()
				v, ok := r.DequeueOne()
				if !ok {
					continue
				}
				mu.Lock()
				if seen[v] {
					mu.Unlock()
					t.Errorf("value %d dequeued twice", v)
					return
				}
				seen[v] = true
				consumed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	for i, ok := range seen {
		if !ok {
			t.Fatalf("value %d never dequeued", i)
		}
	}
}

func TestSizeForCache(t *testing.T) {
	cases := []struct {
		entries           uint32
		maxCallers        int
		cacheSize         int
		want              uint32
	}{
		{entries: 16, maxCallers: 1, cacheSize: 8, want: 17},
		{entries: 1024, maxCallers: 4, cacheSize: 8, want: 1024 + 3*7 + 1},
	}
	for _, c := range cases {
		got := SizeForCache(c.entries, c.maxCallers, c.cacheSize)
		if got != c.want {
			t.Errorf("SizeForCache(%d, %d, %d): got %d, want %d",
				c.entries, c.maxCallers, c.cacheSize, got, c.want)
		}
	}
}
