// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"fmt"
	"unsafe"
)

// LookupBulk looks up up to LookupBulkMax keys at once, writing the
// key-store position of each hit (or -1 for a miss) into positions, which
// must be the same length as keys.
//
// The reference implementation this table is modeled on splits bulk
// lookup into a prefetch pass (issue the load for every key's primary
// bucket before touching any of them) and a compare pass, so that the
// latency of the first cache miss is hidden behind the rest. Go has no
// portable manual-prefetch intrinsic, so this is a straight per-key loop;
// the only thing carried over from the original structure is hashing
// every key up front, in one pass, before the per-key bucket scan (which
// computes each key's bucket indices itself).
func (t *Table) LookupBulk(keys [][]byte, positions []int32) error {
	if len(keys) != len(positions) {
		return fmt.Errorf("%w: keys and positions must be the same length", ErrInvalidArgument)
	}
	if len(keys) > LookupBulkMax {
		return fmt.Errorf("%w: bulk lookup of %d keys exceeds LookupBulkMax=%d",
			ErrInvalidArgument, len(keys), LookupBulkMax)
	}

	hashes := make([]uint32, len(keys))
	for i, k := range keys {
		h, err := t.hash32(k)
		if err != nil {
			return err
		}
		hashes[i] = h
	}

	if t.cfg.mode == RWConcurrent {
		t.mu.RLock()
		defer t.mu.RUnlock()
	}

	for i, k := range keys {
		pos, _, found := t.lookupOne(k, hashes[i])
		positions[i] = pos
		if found {
			t.metrics.observe("lookup_bulk", resultHit)
		} else {
			t.metrics.observe("lookup_bulk", resultMiss)
		}
	}
	return nil
}

// lookupOne dispatches to the locked or lock-free single-key lookup
// depending on the table's mode. It takes no lock itself: the caller is
// responsible for holding whatever t.mu mode requires around the call (or,
// for RWConcurrentLockFree, nothing at all).
func (t *Table) lookupOne(key []byte, hash uint32) (pos int32, data unsafe.Pointer, found bool) {
	if t.cfg.mode == RWConcurrentLockFree {
		return t.lookupLockFree(key, hash)
	}
	return t.lookupLocked(key, hash)
}

// LookupBulkData is the data-returning counterpart of LookupBulk: bit i of
// hitMask is set when keys[i] was found, and data[i] holds its pointer
// (undefined for a miss). It returns the number of hits. keys and data
// must be the same length, no more than LookupBulkMax, and hitMask must
// have at least len(keys) bits of capacity (64, matching LookupBulkMax).
func (t *Table) LookupBulkData(keys [][]byte, hitMask *uint64, data []unsafe.Pointer) int {
	if len(keys) != len(data) || len(keys) > LookupBulkMax {
		*hitMask = 0
		return 0
	}

	hashes := make([]uint32, len(keys))
	for i, k := range keys {
		h, err := t.hash32(k)
		if err != nil {
			*hitMask = 0
			return 0
		}
		hashes[i] = h
	}

	if t.cfg.mode == RWConcurrent {
		t.mu.RLock()
		defer t.mu.RUnlock()
	}

	var mask uint64
	hits := 0
	for i, k := range keys {
		// Fetching data here, inside the same locked/lock-free-verified
		// scope lookupOne used to find the key, matters: once this loop
		// (and any RLock it holds) returns, a concurrent writer is free to
		// reuse the slot, so reading data after the fact could return a
		// torn or freed pointer.
		_, d, found := t.lookupOne(k, hashes[i])
		if !found {
			t.metrics.observe("lookup_bulk", resultMiss)
			continue
		}
		t.metrics.observe("lookup_bulk", resultHit)
		mask |= 1 << uint(i)
		data[i] = d
		hits++
	}
	*hitMask = mask
	return hits
}
