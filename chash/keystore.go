// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"sync/atomic"
	"unsafe"

	"github.com/aristanetworks/cuckoohash/chash/memalloc"
)

// keySlot holds one fixed-length key plus the opaque data pointer
// associated with it. data is accessed through atomic.Pointer so that a
// lock-free reader's final step -- reading the data pointer after it has
// already matched the key -- is never torn against a concurrent writer
// publishing a new value for the same key (rehash-in-place is not
// supported, but Add can overwrite an existing key's data).
type keySlot struct {
	key  []byte
	data atomic.Pointer[byte]
}

// keyStore is the fixed key-slot array. Slot 0 is a permanently reserved
// dummy: bucket.keyIdx uses 0 to mean "empty", so no real key is ever
// stored at index 0, exactly as __rte_hash_add_key_with_hash reserves
// key_idx 0 for EMPTY_SLOT.
type keyStore struct {
	keyLen  int
	slots   []keySlot
	backing []byte
	alloc   memalloc.Allocator
}

// newKeyStore allocates the key bytes for capacity+1 slots as one
// contiguous, aligned buffer from alloc -- the one piece of this table
// that actually goes through the configured Allocator, since it is the
// only part sized and laid out the way rte_hash's key_store is: a single
// block of fixed-stride entries rather than a Go slice-of-slices.
func newKeyStore(capacity uint32, keyLen int, alloc memalloc.Allocator, socketHint int) (*keyStore, error) {
	n := int(capacity) + 1
	buf, err := alloc.AllocZeroedAligned(n*keyLen, KeyAlignment, socketHint)
	if err != nil {
		return nil, err
	}
	ks := &keyStore{
		keyLen:  keyLen,
		slots:   make([]keySlot, n),
		backing: buf,
		alloc:   alloc,
	}
	for i := range ks.slots {
		ks.slots[i].key = buf[i*keyLen : (i+1)*keyLen : (i+1)*keyLen]
	}
	return ks, nil
}

func (ks *keyStore) free() {
	ks.alloc.Free(ks.backing)
}

func (ks *keyStore) set(idx uint32, key []byte, data unsafe.Pointer) {
	s := &ks.slots[idx]
	copy(s.key, key)
	s.data.Store((*byte)(data))
}

func (ks *keyStore) setData(idx uint32, data unsafe.Pointer) {
	ks.slots[idx].data.Store((*byte)(data))
}

func (ks *keyStore) key(idx uint32) []byte {
	return ks.slots[idx].key
}

func (ks *keyStore) data(idx uint32) unsafe.Pointer {
	return unsafe.Pointer(ks.slots[idx].data.Load())
}

func (ks *keyStore) equal(idx uint32, key []byte) bool {
	return string(ks.slots[idx].key) == string(key)
}
