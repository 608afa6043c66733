// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"fmt"
	"unsafe"
)

// Lookup searches for key using the table's configured hash function.
func (t *Table) Lookup(key []byte) (int32, unsafe.Pointer, error) {
	h, err := t.hash32(key)
	if err != nil {
		return -1, nil, err
	}
	return t.LookupWithHash(key, h)
}

// LookupWithHash searches for key using a caller-supplied hash, letting a
// caller that already hashed the key for a different purpose (e.g. to pick
// a shard) avoid hashing it twice.
func (t *Table) LookupWithHash(key []byte, hash uint32) (int32, unsafe.Pointer, error) {
	if err := t.checkKey(key); err != nil {
		return -1, nil, err
	}

	var pos int32
	var data unsafe.Pointer
	var found bool

	if t.cfg.mode == RWConcurrentLockFree {
		pos, data, found = t.lookupLockFree(key, hash)
	} else {
		if t.cfg.mode == RWConcurrent {
			t.mu.RLock()
			defer t.mu.RUnlock()
		}
		pos, data, found = t.lookupLocked(key, hash)
	}

	if !found {
		t.metrics.observe("lookup", resultMiss)
		return -1, nil, ErrNotFound
	}
	t.metrics.observe("lookup", resultHit)
	return pos, data, nil
}

func (t *Table) lookupLocked(key []byte, hash uint32) (pos int32, data unsafe.Pointer, found bool) {
	sig := shortSig(hash)
	prim := primBucketIndex(hash, t.bucketMask)
	sec := altBucketIndex(prim, sig, t.bucketMask)

	if idx, ok := t.searchOneBucket(&t.buckets[prim], key, sig); ok {
		return int32(idx - 1), t.keys.data(idx), true
	}

	for b := &t.buckets[sec]; ; {
		if idx, ok := t.searchOneBucket(b, key, sig); ok {
			return int32(idx - 1), t.keys.data(idx), true
		}
		if !t.overflowEnabled {
			break
		}
		next := b.next.Load()
		if next == 0 {
			break
		}
		b = &t.overflow[next]
	}
	return -1, nil, false
}

func (t *Table) lookupLockFree(key []byte, hash uint32) (pos int32, data unsafe.Pointer, found bool) {
	sig := shortSig(hash)
	prim := primBucketIndex(hash, t.bucketMask)
	sec := altBucketIndex(prim, sig, t.bucketMask)

	for {
		cntBefore := t.tblChngCnt.Load()

		if idx, ok := t.searchOneBucket(&t.buckets[prim], key, sig); ok {
			return int32(idx - 1), t.keys.data(idx), true
		}
		hit := false
		var hitIdx uint32
		for b := &t.buckets[sec]; ; {
			if idx, ok := t.searchOneBucket(b, key, sig); ok {
				hit, hitIdx = true, idx
				break
			}
			if !t.overflowEnabled {
				break
			}
			next := b.next.Load()
			if next == 0 {
				break
			}
			b = &t.overflow[next]
		}
		if hit {
			return int32(hitIdx - 1), t.keys.data(hitIdx), true
		}

		cntAfter := t.tblChngCnt.Load()
		if cntBefore == cntAfter {
			return -1, nil, false
		}
		// A displacement or compaction ran concurrently with the
		// search; the result above cannot be trusted, so retry.
	}
}

// searchOneBucket checks every occupied entry of b whose cached signature
// matches sig against the full key, returning the 1-based key-store
// index of a match.
func (t *Table) searchOneBucket(b *bucket, key []byte, sig uint16) (uint32, bool) {
	mask := t.sigCmp(b, sig)
	for mask != 0 {
		i := trailingZero8(mask)
		mask &^= 1 << uint(i)
		idx := b.keyIdx[i].Load()
		if idx == emptySlot {
			continue
		}
		if t.keys.equal(idx, key) {
			return idx, true
		}
	}
	return 0, false
}

func trailingZero8(v uint8) int {
	for i := 0; i < 8; i++ {
		if v&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 8
}

func (t *Table) hash32(key []byte) (uint32, error) {
	if err := t.checkKey(key); err != nil {
		return 0, err
	}
	return uint32(t.cfg.hashFn(key, t.seed)), nil
}

func (t *Table) checkKey(key []byte) error {
	if len(key) != t.cfg.keyLen {
		return fmt.Errorf("%w: key length %d, want %d", ErrInvalidArgument, len(key), t.cfg.keyLen)
	}
	return nil
}
