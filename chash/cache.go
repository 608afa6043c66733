// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "github.com/aristanetworks/cuckoohash/chash/ring"

// localCache is a per-caller cache of free key-store slot indices, the Go
// analogue of the rte_mempool_cache DPDK's per-lcore allocation path
// drains before ever touching the shared ring. It is intentionally not
// safe for concurrent use: like a DPDK lcore cache, each one is meant to
// be driven by a single caller id (passed to AddFrom/DelFrom/
// FreeKeyAtFrom) at a time.
//
// Plain Del and FreeKeyAt (no caller id) always bypass every local cache
// and return a freed slot straight to the shared ring.
type localCache struct {
	size int
	free []uint32
}

func newLocalCache(size int) *localCache {
	if size < 2 {
		size = 2
	}
	return &localCache{size: size}
}

func (c *localCache) reset() {
	c.free = c.free[:0]
}

// get returns a free slot index from the cache, refilling it in bulk from
// r if empty. ok is false only if r itself could not supply anything.
func (c *localCache) get(r *ring.Ring) (idx uint32, ok bool) {
	if len(c.free) == 0 {
		c.refill(r)
		if len(c.free) == 0 {
			return 0, false
		}
	}
	last := len(c.free) - 1
	idx = c.free[last]
	c.free = c.free[:last]
	return idx, true
}

// put returns idx to the cache, flushing half of it back to r first if
// the cache is already full.
func (c *localCache) put(r *ring.Ring, idx uint32) {
	if len(c.free) >= c.size {
		c.flush(r, c.size/2)
	}
	c.free = append(c.free, idx)
}

func (c *localCache) refill(r *ring.Ring) {
	want := c.size - len(c.free)
	if want <= 0 {
		return
	}
	buf := make([]uint32, want)
	n := r.Dequeue(buf)
	c.free = append(c.free, buf[:n]...)
}

func (c *localCache) flush(r *ring.Ring, n int) {
	if n <= 0 || n > len(c.free) {
		n = len(c.free)
	}
	start := len(c.free) - n
	accepted := r.Enqueue(c.free[start:])
	// Enqueue fills from the front of c.free[start:], so the indices still
	// owed a home are the tail past accepted, not a same-length prefix of
	// it -- keep the untouched front plus that genuine leftover.
	c.free = append(c.free[:start], c.free[start+accepted:]...)
}
