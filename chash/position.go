// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "fmt"

// KeyAt returns the key stored at position, as previously returned by Add,
// Lookup, Del, or Iterate. The caller must not retain the returned slice
// past the next structural change to the table (Del, Reset, or a cuckoo
// displacement touching this slot), since it aliases the table's internal
// key storage.
func (t *Table) KeyAt(position int32) ([]byte, error) {
	idx, err := t.positionToIndex(position)
	if err != nil {
		return nil, err
	}
	return t.keys.key(idx), nil
}

// FreeKeyAt returns the key-store slot at position to the free ring
// without touching any bucket. It exists for WithNoFreeOnDelete callers
// that defer freeing a deleted key's slot until they know no lock-free
// reader can still be mid-lookup against it (typically by running it
// through a qsbr.Service themselves).
func (t *Table) FreeKeyAt(position int32) error {
	return t.freeKeyAtFrom(position, -1)
}

// FreeKeyAtFrom is FreeKeyAt for a caller using a per-caller cache enabled
// with WithLocalCache, per AddFrom.
func (t *Table) FreeKeyAtFrom(caller int, position int32) error {
	return t.freeKeyAtFrom(position, caller)
}

func (t *Table) freeKeyAtFrom(position int32, caller int) error {
	idx, err := t.positionToIndex(position)
	if err != nil {
		return err
	}
	t.keys.set(idx, make([]byte, t.cfg.keyLen), nil)
	if t.cfg.useLocalCache && caller >= 0 && caller < len(t.caches) {
		t.freeSlot(caller, idx)
		return nil
	}
	if t.keyFree.EnqueueOne(idx) {
		return nil
	}
	t.cfg.logger.Errorf("chash: table %q: free ring rejected slot %d", t.cfg.name, idx)
	return fmt.Errorf("%w: free ring rejected slot %d", ErrInternal, idx)
}

func (t *Table) positionToIndex(position int32) (uint32, error) {
	if position < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ErrInvalidArgument, position)
	}
	idx := uint32(position) + 1
	if idx >= uint32(len(t.keys.slots)) {
		return 0, fmt.Errorf("%w: position %d out of range", ErrInvalidArgument, position)
	}
	return idx, nil
}
