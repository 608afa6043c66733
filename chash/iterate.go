// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "unsafe"

// Iterate walks every occupied entry in the table in bucket-array order
// (followed by the overflow-bucket array in index order, if enabled),
// starting over from the
// beginning when *cursor is 0. Pass the same cursor back in on the next
// call to continue; Iterate returns ErrNotFound once every entry has been
// visited and resets *cursor to 0.
//
// Iterate gives no snapshot isolation: a concurrent Add or Del can cause
// it to skip an entry or visit one twice. Applications that need a
// consistent view should externally serialize Iterate against writers, or
// run it under the same write lock Add/Del use in RWConcurrent mode.
func (t *Table) Iterate(cursor *uint32) ([]byte, unsafe.Pointer, int32, error) {
	total := t.numBuckets * BucketEntries
	var overflowTotal uint32
	if t.overflowEnabled {
		overflowTotal = uint32(len(t.overflow)-1) * BucketEntries
	}

	for *cursor < total+overflowTotal {
		pos := *cursor
		*cursor++

		var b *bucket
		var slot int
		if pos < total {
			b = &t.buckets[pos/BucketEntries]
			slot = int(pos % BucketEntries)
		} else {
			p := pos - total
			b = &t.overflow[p/BucketEntries+1]
			slot = int(p % BucketEntries)
		}

		idx := b.keyIdx[slot].Load()
		if idx == emptySlot {
			continue
		}
		return t.keys.key(idx), t.keys.data(idx), int32(idx - 1), nil
	}

	*cursor = 0
	return nil, nil, -1, ErrNotFound
}
