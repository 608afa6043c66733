// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

// Public sizing constants, mirroring the limits rte_cuckoo_hash.h places on
// an rte_hash table.
const (
	// LookupBulkMax bounds a single LookupBulk/LookupBulkData call.
	LookupBulkMax = 64

	// LcoreCacheSize is the number of free slots held in each per-caller
	// cache that WithLocalCache enables; the size has no option of its own.
	// The minimum a cache enforces is 2, since a one-entry cache
	// could never give up a slot to refill without immediately needing
	// to refill again.
	LcoreCacheSize = 8

	// EntriesMax is the largest capacity Create accepts.
	EntriesMax = 1 << 30

	// KeyAlignment is the byte alignment the default memalloc.Allocator
	// is asked to align the key store's backing buffer to.
	KeyAlignment = 16

	// BFSQueueMaxLen bounds the queue the insert engine's breadth-first
	// displacement search can grow to before giving up and falling back
	// to the overflow chain (or ErrNoSpace).
	BFSQueueMaxLen = 1024
)
