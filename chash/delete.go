// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "github.com/aristanetworks/cuckoohash/chash/qsbr"

// Del removes key from the table and returns its former key-store
// position. Unless the table was created WithNoFreeOnDelete (or
// WithMode(RWConcurrentLockFree), which forces that on), the key-store
// slot is cleared and returned to the free ring as part of this call, even
// when an RCU reclamation service is attached. With WithNoFreeOnDelete,
// the slot is handed to the service attached with RCUQSBRAdd, which frees
// it once no registered reader can still observe it; with no service
// attached, the slot stays allocated until FreeKeyAt.
func (t *Table) Del(key []byte) (int32, error) {
	h, err := t.hash32(key)
	if err != nil {
		return -1, err
	}
	return t.delWithHash(key, h, -1)
}

// DelWithHash is the caller-supplied-hash counterpart of Del.
func (t *Table) DelWithHash(key []byte, hash uint32) (int32, error) {
	return t.delWithHash(key, hash, -1)
}

// DelFrom is Del for a caller using a per-caller cache enabled with
// WithLocalCache: the freed slot (if any; see WithNoFreeOnDelete) is
// returned to caller's local cache instead of going straight to the shared
// ring. caller must be the same stable id this goroutine uses for every
// AddFrom/DelFrom/FreeKeyAtFrom call it makes on this table, per AddFrom.
func (t *Table) DelFrom(caller int, key []byte) (int32, error) {
	h, err := t.hash32(key)
	if err != nil {
		return -1, err
	}
	return t.delWithHash(key, h, caller)
}

func (t *Table) delWithHash(key []byte, hash uint32, caller int) (int32, error) {
	if err := t.checkKey(key); err != nil {
		return -1, err
	}

	sig := shortSig(hash)
	primIdx := primBucketIndex(hash, t.bucketMask)
	secIdx := altBucketIndex(primIdx, sig, t.bucketMask)
	prim := &t.buckets[primIdx]
	sec := &t.buckets[secIdx]

	if t.cfg.mode != SingleWriterSingleReader {
		t.mu.Lock()
		defer t.mu.Unlock()
	}

	keyIdx, ok := t.searchAndRemove(prim, key, sig)
	owner := prim
	if !ok {
		for b := sec; ; {
			keyIdx, ok = t.searchAndRemove(b, key, sig)
			if ok {
				owner = b
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
	}
	if !ok {
		t.metrics.observe("del", resultMiss)
		return -1, ErrNotFound
	}

	root := sec
	if owner == prim {
		root = prim
	}
	t.compactChain(root, owner)
	t.count.Add(-1)
	t.metrics.observe("del", resultDeleted)

	pos := int32(keyIdx - 1)

	if t.cfg.noFreeOnDelete {
		if svc := t.qsbrSvc(); svc != nil {
			svc.Enqueue(qsbr.Entry{KeyIndex: keyIdx})
		}
		return pos, nil
	}
	t.keys.set(keyIdx, make([]byte, t.cfg.keyLen), nil)
	t.freeSlot(caller, keyIdx)
	return pos, nil
}

// searchAndRemove looks for key in b and, if found, clears its signature
// and key-index entry, returning the 1-based key-store index it held.
func (t *Table) searchAndRemove(b *bucket, key []byte, sig uint16) (uint32, bool) {
	for i := 0; i < BucketEntries; i++ {
		idx := b.keyIdx[i].Load()
		if b.sig[i] != sig || idx == emptySlot {
			continue
		}
		if !t.keys.equal(idx, key) {
			continue
		}
		b.sig[i] = nullSignature
		b.keyIdx[i].Store(emptySlot)
		return idx, true
	}
	return 0, false
}

// compactChain moves the last occupied entry of root's overflow chain into
// whatever slot searchAndRemove just freed in owner (root itself, or any
// bucket down root's chain, including the tail), keeping the chain dense.
// If that leaves the chain's tail bucket fully empty, the bucket is
// unlinked and its index returned to the overflow-bucket free ring. root
// is the bucket whose chain owner belongs to: the primary bucket when the
// key was removed there, otherwise the secondary bucket. The predecessor
// walk always starts at root rather than at owner, so the tail's real
// predecessor is known even when owner is the tail bucket itself.
func (t *Table) compactChain(root, owner *bucket) {
	if !t.overflowEnabled || root.next.Load() == 0 {
		return
	}

	var prev *bucket
	last := root
	lastIdx := root.next.Load()
	for lastIdx != 0 {
		prev = last
		last = &t.overflow[lastIdx]
		lastIdx = last.next.Load()
	}

	pos := owner.findEmpty()
	if pos == -1 {
		return
	}
	for i := BucketEntries - 1; i >= 0; i-- {
		idx := last.keyIdx[i].Load()
		if idx == emptySlot {
			continue
		}
		owner.sig[pos] = last.sig[i]
		if t.cfg.mode == RWConcurrentLockFree {
			t.tblChngCnt.Add(1)
		}
		owner.keyIdx[pos].Store(idx)
		last.sig[i] = nullSignature
		last.keyIdx[i].Store(emptySlot)
		break
	}
	for i := 0; i < BucketEntries; i++ {
		if last.keyIdx[i].Load() != emptySlot {
			return
		}
	}

	// last is entirely empty: unlink it and recycle its overflow index.
	if prev == nil {
		return
	}
	extIdx := prev.next.Load()
	prev.next.Store(0)
	if t.cfg.noFreeOnDelete {
		if svc := t.qsbrSvc(); svc != nil {
			svc.Enqueue(qsbr.Entry{OverflowIndex: extIdx})
			return
		}
	}
	t.overflowFree.EnqueueOne(extIdx)
}
