// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "unsafe"

// Add inserts key with the given data pointer, or updates the data
// pointer of key if it is already present. It returns the key's
// key-store position.
func (t *Table) Add(key []byte, data unsafe.Pointer) (int32, error) {
	h, err := t.hash32(key)
	if err != nil {
		return -1, err
	}
	return t.addWithHash(key, h, data, -1)
}

// AddWithHash is the caller-supplied-hash counterpart of Add.
func (t *Table) AddWithHash(key []byte, hash uint32, data unsafe.Pointer) (int32, error) {
	return t.addWithHash(key, hash, data, -1)
}

// AddFrom is Add for a caller using a per-caller cache enabled with
// WithLocalCache; caller must be a stable id in [0, maxCallers) that this
// goroutine (and no other, concurrently) uses for every AddFrom/DelFrom/
// FreeKeyAtFrom call it makes on this table.
func (t *Table) AddFrom(caller int, key []byte, data unsafe.Pointer) (int32, error) {
	h, err := t.hash32(key)
	if err != nil {
		return -1, err
	}
	return t.addWithHash(key, h, data, caller)
}

func (t *Table) addWithHash(key []byte, hash uint32, data unsafe.Pointer, caller int) (int32, error) {
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
	}

	// Step 1: duplicate check. An existing key only ever needs its data
	// pointer updated, never a new slot.
	if pos, ok := t.updateIfPresent(prim, sec, key, sig, data); ok {
		if t.cfg.mode != SingleWriterSingleReader {
			t.mu.Unlock()
		}
		t.metrics.observe("add", resultUpdated)
		return pos, nil
	}
	if t.cfg.mode != SingleWriterSingleReader {
		t.mu.Unlock()
	}

	// Step 2: slot allocation, with one reclaim-and-retry on exhaustion.
	slot, ok := t.allocSlot(caller)
	if !ok {
		if svc := t.qsbrSvc(); svc != nil {
			if freed := svc.Reclaim(0); freed > 0 {
				t.metrics.observe("reclaim", resultReclaimed)
			}
			slot, ok = t.allocSlot(caller)
		}
		if !ok {
			t.metrics.observe("add", resultNoSpace)
			return -1, ErrNoSpace
		}
	}

	// Step 3: slot init. The data pointer must be published before the
	// key becomes reachable through any bucket, so a reader that finds
	// the key afterward never observes a nil data pointer for a key that
	// was given a real one.
	t.keys.set(slot, key, data)

	if t.cfg.mode != SingleWriterSingleReader {
		t.mu.Lock()
	}
	defer func() {
		if t.cfg.mode != SingleWriterSingleReader {
			t.mu.Unlock()
		}
	}()

	// Re-check for a duplicate insert that raced between step 1 and
	// taking the lock again here.
	if pos, ok := t.updateIfPresent(prim, sec, key, sig, data); ok {
		t.freeSlot(caller, slot)
		t.metrics.observe("add", resultUpdated)
		return pos, nil
	}

	// Step 4: direct insert into the primary bucket.
	if i := prim.findEmpty(); i != -1 {
		prim.sig[i] = sig
		prim.keyIdx[i].Store(slot)
		t.count.Add(1)
		t.metrics.observe("add", resultInserted)
		return int32(slot - 1), nil
	}

	// Step 4b: direct insert into the secondary bucket (and its
	// overflow chain, if any already exists).
	for b := sec; ; {
		if i := b.findEmpty(); i != -1 {
			b.sig[i] = sig
			b.keyIdx[i].Store(slot)
			t.count.Add(1)
			t.metrics.observe("add", resultInserted)
			return int32(slot - 1), nil
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

	// Step 5/6: BFS cuckoo displacement search, first rooted at the
	// primary bucket, then (for better occupancy) at the secondary.
	if pos, ok := t.makeSpace(primIdx, prim, sec, key, sig, slot); ok {
		t.count.Add(1)
		t.metrics.observe("add", resultDisplacement)
		return pos, nil
	}
	if pos, ok := t.makeSpace(secIdx, sec, prim, key, sig, slot); ok {
		t.count.Add(1)
		t.metrics.observe("add", resultDisplacement)
		return pos, nil
	}

	// Step 7: overflow chain fallback.
	if t.overflowEnabled {
		if i := sec.findEmpty(); i != -1 {
			sec.sig[i] = sig
			sec.keyIdx[i].Store(slot)
			t.count.Add(1)
			t.metrics.observe("add", resultInserted)
			return int32(slot - 1), nil
		}
		for b := sec; ; {
			next := b.next.Load()
			if next == 0 {
				break
			}
			b = &t.overflow[next]
			if i := b.findEmpty(); i != -1 {
				b.sig[i] = sig
				b.keyIdx[i].Store(slot)
				t.count.Add(1)
				t.metrics.observe("add", resultInserted)
				return int32(slot - 1), nil
			}
		}
		if extIdx, ok := t.allocOverflowBucket(); ok {
			ext := &t.overflow[extIdx]
			ext.sig[0] = sig
			ext.keyIdx[0].Store(slot)
			last := sec
			for {
				next := last.next.Load()
				if next == 0 {
					break
				}
				last = &t.overflow[next]
			}
			last.next.Store(extIdx)
			t.count.Add(1)
			t.metrics.observe("add", resultOverflow)
			return int32(slot - 1), nil
		}
	}

	t.freeSlot(caller, slot)
	t.metrics.observe("add", resultNoSpace)
	return -1, ErrNoSpace
}

// updateIfPresent looks for key in prim/sec (and the overflow chain off
// sec) and, if found, stores data into its slot and returns its position.
// The caller must hold the write lock (or be in SingleWriterSingleReader
// mode) before calling this.
func (t *Table) updateIfPresent(prim, sec *bucket, key []byte, sig uint16, data unsafe.Pointer) (int32, bool) {
	if idx, ok := t.searchOneBucket(prim, key, sig); ok {
		t.keys.setData(idx, data)
		return int32(idx - 1), true
	}
	for b := sec; ; {
		if idx, ok := t.searchOneBucket(b, key, sig); ok {
			t.keys.setData(idx, data)
			return int32(idx - 1), true
		}
		if !t.overflowEnabled {
			return -1, false
		}
		next := b.next.Load()
		if next == 0 {
			return -1, false
		}
		b = &t.overflow[next]
	}
}

// bfsNode is one entry of the breadth-first displacement search queue.
type bfsNode struct {
	bkt      *bucket
	bktIdx   uint32
	prev     *bfsNode
	prevSlot int
}

// makeSpace runs the bounded BFS cuckoo displacement search rooted at
// (bktIdx, bkt), with altBkt as the other of the key's two candidate
// buckets (needed so the eventual move-insert can re-run the duplicate
// check against both). It returns the new key's position if it found and
// applied a displacement path, or if it discovered the key had been
// inserted concurrently while re-verifying the path.
func (t *Table) makeSpace(bktIdx uint32, bkt, altBkt *bucket, key []byte, sig uint16, newIdx uint32) (int32, bool) {
	queue := make([]bfsNode, 1, BFSQueueMaxLen)
	queue[0] = bfsNode{bkt: bkt, bktIdx: bktIdx, prevSlot: -1}

	tail := 0
	for tail < len(queue) && len(queue) < BFSQueueMaxLen-BucketEntries {
		cur := &queue[tail]
		for i := 0; i < BucketEntries; i++ {
			if cur.bkt.keyIdx[i].Load() == emptySlot {
				if pos, applied, isDup := t.applyMoveInsert(bkt, altBkt, key, sig, newIdx, cur, i); applied {
					return pos, true
				} else if isDup {
					return pos, true
				}
			}
			altIdx := altBucketIndex(cur.bktIdx, cur.bkt.sig[i], t.bucketMask)
			queue = append(queue, bfsNode{
				bkt:      &t.buckets[altIdx],
				bktIdx:   altIdx,
				prev:     cur,
				prevSlot: i,
			})
		}
		tail++
	}
	return -1, false
}

// applyMoveInsert re-verifies and applies one candidate displacement path
// ending at (leaf, leafSlot). It returns (position, applied, isDuplicate):
// applied is true if the new key was written somewhere along the path;
// isDuplicate is true if a concurrent insert was discovered instead, in
// which case position is that insert's position and the caller should
// treat this as a successful Add rather than retry.
// applyMoveInsert must be called with t.mu already held (by addWithHash,
// across the whole BFS search), in every mode but SingleWriterSingleReader.
func (t *Table) applyMoveInsert(bkt, altBkt *bucket, key []byte, sig uint16, newIdx uint32, leaf *bfsNode, leafSlot int) (int32, bool, bool) {
	if leaf.bkt.keyIdx[leafSlot].Load() != emptySlot {
		return -1, false, false
	}

	if pos, ok := t.updateIfPresent(bkt, altBkt, key, sig, t.keys.data(newIdx)); ok {
		return pos, false, true
	}

	curNode := leaf
	curSlot := leafSlot
	curBkt := leaf.bkt

	for curNode.prev != nil {
		prevNode := curNode.prev
		prevBkt := prevNode.bkt
		prevSlot := curNode.prevSlot

		prevAltIdx := altBucketIndex(prevNode.bktIdx, prevBkt.sig[prevSlot], t.bucketMask)
		if &t.buckets[prevAltIdx] != curBkt {
			curBkt.keyIdx[curSlot].Store(emptySlot)
			return -1, false, false
		}

		if t.cfg.mode == RWConcurrentLockFree {
			t.tblChngCnt.Add(1)
		}

		curBkt.sig[curSlot] = prevBkt.sig[prevSlot]
		curBkt.keyIdx[curSlot].Store(prevBkt.keyIdx[prevSlot].Load())

		curSlot = prevSlot
		curNode = prevNode
		curBkt = curNode.bkt
	}

	if t.cfg.mode == RWConcurrentLockFree {
		t.tblChngCnt.Add(1)
	}

	curBkt.sig[curSlot] = sig
	curBkt.keyIdx[curSlot].Store(newIdx)

	return int32(newIdx - 1), true, false
}

func (t *Table) allocSlot(caller int) (uint32, bool) {
	if t.cfg.useLocalCache && caller >= 0 && caller < len(t.caches) {
		return t.caches[caller].get(t.keyFree)
	}
	return t.keyFree.DequeueOne()
}

func (t *Table) freeSlot(caller int, idx uint32) {
	if t.cfg.useLocalCache && caller >= 0 && caller < len(t.caches) {
		t.caches[caller].put(t.keyFree, idx)
		return
	}
	t.keyFree.EnqueueOne(idx)
}

func (t *Table) allocOverflowBucket() (uint32, bool) {
	if !t.overflowEnabled {
		return 0, false
	}
	return t.overflowFree.DequeueOne()
}

