// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"errors"
	"testing"
	"unsafe"
)

func key4(s string) []byte {
	b := make([]byte, 4)
	copy(b, s)
	return b
}

func ptrFor(v *int) unsafe.Pointer { return unsafe.Pointer(v) }

// newWorkedTable builds the table used throughout spec.md's worked
// examples: E=16 entries, K=4-byte keys, N=8 BucketEntries, which Create
// turns into B=2 buckets (2 buckets * 8 entries/bucket = exactly 16 slots).
func newWorkedTable(t *testing.T, opts ...Option) *Table {
	t.Helper()
	base := []Option{WithEntries(16), WithKeyLen(4)}
	tbl, err := Create(append(base, opts...)...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tbl
}

func TestCreateValidatesArguments(t *testing.T) {
	if _, err := Create(WithKeyLen(4)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing entries: got %v, want ErrInvalidArgument", err)
	}
	if _, err := Create(WithEntries(16)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing key length: got %v, want ErrInvalidArgument", err)
	}
	if _, err := Create(WithEntries(EntriesMax+1), WithKeyLen(4)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("entries too large: got %v, want ErrInvalidArgument", err)
	}
}

func TestAddLookupDelRoundTrip(t *testing.T) {
	tbl := newWorkedTable(t)
	defer tbl.Close()

	v := 42
	pos, err := tbl.Add(key4("k1"), ptrFor(&v))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if pos < 0 {
		t.Fatalf("Add returned invalid position %d", pos)
	}
	if got := tbl.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}

	gotPos, data, err := tbl.Lookup(key4("k1"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if gotPos != pos {
		t.Fatalf("Lookup position = %d, want %d", gotPos, pos)
	}
	if *(*int)(data) != 42 {
		t.Fatalf("Lookup data = %d, want 42", *(*int)(data))
	}

	if _, _, err := tbl.Lookup(key4("nope")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup miss: got %v, want ErrNotFound", err)
	}

	delPos, err := tbl.Del(key4("k1"))
	if err != nil {
		t.Fatalf("Del: %v", err)
	}
	if delPos != pos {
		t.Fatalf("Del position = %d, want %d", delPos, pos)
	}
	if tbl.Count() != 0 {
		t.Fatalf("Count after Del = %d, want 0", tbl.Count())
	}
	if _, _, err := tbl.Lookup(key4("k1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup after Del: got %v, want ErrNotFound", err)
	}
	if _, err := tbl.Del(key4("k1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Del twice: got %v, want ErrNotFound", err)
	}
}

func TestAddUpdatesExistingKey(t *testing.T) {
	tbl := newWorkedTable(t)
	defer tbl.Close()

	a, b := 1, 2
	pos1, err := tbl.Add(key4("k1"), ptrFor(&a))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	pos2, err := tbl.Add(key4("k1"), ptrFor(&b))
	if err != nil {
		t.Fatalf("Add (update): %v", err)
	}
	if pos1 != pos2 {
		t.Fatalf("position changed across update: %d vs %d", pos1, pos2)
	}
	if tbl.Count() != 1 {
		t.Fatalf("Count = %d, want 1 (update must not grow the table)", tbl.Count())
	}
	_, data, err := tbl.Lookup(key4("k1"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if *(*int)(data) != 2 {
		t.Fatalf("data = %d, want 2", *(*int)(data))
	}
}

func TestAddRejectsWrongKeyLength(t *testing.T) {
	tbl := newWorkedTable(t)
	defer tbl.Close()
	if _, err := tbl.Add([]byte("too-long-key"), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

// TestFillToCapacityWithoutOverflow exercises the worked-example capacity:
// 16 entries should all fit via direct insert / BFS displacement alone
// (extendable buckets disabled), and the 17th must fail with ErrNoSpace.
func TestFillToCapacityWithoutOverflow(t *testing.T) {
	tbl := newWorkedTable(t)
	defer tbl.Close()

	for i := 0; i < 16; i++ {
		k := key4(string(rune('a' + i)))
		if _, err := tbl.Add(k, nil); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	if got := tbl.Count(); got != 16 {
		t.Fatalf("Count = %d, want 16", got)
	}

	overflow := key4("ZZ")
	if _, err := tbl.Add(overflow, nil); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("17th Add: got %v, want ErrNoSpace", err)
	}

	for i := 0; i < 16; i++ {
		k := key4(string(rune('a' + i)))
		if _, _, err := tbl.Lookup(k); err != nil {
			t.Fatalf("Lookup #%d after fill: %v", i, err)
		}
	}
}

// TestExtendableBucketsOverflowChain forces keys to collide into the same
// two candidate buckets until direct insert and BFS displacement are both
// exhausted, then confirms the overflow chain fallback keeps accepting
// keys and Lookup/Del still find them through it.
func TestExtendableBucketsOverflowChain(t *testing.T) {
	tbl := newWorkedTable(t, WithEntries(40), WithExtendableBuckets(),
		WithHashFunc(func([]byte, uint64) uint64 { return 0 }))
	defer tbl.Close()

	const n = 40
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = key4(string(rune('A'+i%26)) + string(rune('0'+i/26)))
		if _, err := tbl.Add(keys[i], nil); err != nil {
			t.Fatalf("Add #%d (%q): %v", i, keys[i], err)
		}
	}
	if got := tbl.Count(); got != n {
		t.Fatalf("Count = %d, want %d", got, n)
	}
	for i, k := range keys {
		if _, _, err := tbl.Lookup(k); err != nil {
			t.Fatalf("Lookup #%d (%q): %v", i, k, err)
		}
	}

	for i := 0; i < n; i += 2 {
		if _, err := tbl.Del(keys[i]); err != nil {
			t.Fatalf("Del #%d (%q): %v", i, keys[i], err)
		}
	}
	if got := tbl.Count(); got != n/2 {
		t.Fatalf("Count after deletes = %d, want %d", got, n/2)
	}
	for i, k := range keys {
		_, _, err := tbl.Lookup(k)
		if i%2 == 0 {
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Lookup #%d (%q) after Del: got %v, want ErrNotFound", i, k, err)
			}
		} else if err != nil {
			t.Fatalf("Lookup #%d (%q) survivor: %v", i, k, err)
		}
	}
}

func TestIterateVisitsEveryEntryOnce(t *testing.T) {
	tbl := newWorkedTable(t)
	defer tbl.Close()

	want := map[string]bool{}
	for i := 0; i < 10; i++ {
		k := key4(string(rune('a' + i)))
		want[string(k)] = true
		if _, err := tbl.Add(k, nil); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	var cursor uint32
	for {
		k, _, _, err := tbl.Iterate(&cursor)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		seen[string(k)] = true
	}
	if len(seen) != len(want) {
		t.Fatalf("Iterate saw %d keys, want %d", len(seen), len(want))
	}
	for k := range want {
		if !seen[k] {
			t.Fatalf("Iterate never visited %q", k)
		}
	}
}

func TestKeyAtAndFreeKeyAt(t *testing.T) {
	tbl := newWorkedTable(t, WithNoFreeOnDelete())
	defer tbl.Close()

	pos, err := tbl.Add(key4("k1"), nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := tbl.Del(key4("k1")); err != nil {
		t.Fatalf("Del: %v", err)
	}
	// WithNoFreeOnDelete: the slot is not returned to the allocator yet,
	// so KeyAt must still resolve (Del leaves the key bytes in the slot in
	// this mode).
	if _, err := tbl.KeyAt(pos); err != nil {
		t.Fatalf("KeyAt after Del (NoFreeOnDelete): %v", err)
	}
	if err := tbl.FreeKeyAt(pos); err != nil {
		t.Fatalf("FreeKeyAt: %v", err)
	}
	if _, err := tbl.KeyAt(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("KeyAt(-1): got %v, want ErrInvalidArgument", err)
	}
}

func TestResetClearsTable(t *testing.T) {
	tbl := newWorkedTable(t, WithExtendableBuckets())
	defer tbl.Close()

	for i := 0; i < 16; i++ {
		if _, err := tbl.Add(key4(string(rune('a'+i))), nil); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	tbl.Reset()
	if got := tbl.Count(); got != 0 {
		t.Fatalf("Count after Reset = %d, want 0", got)
	}
	if _, _, err := tbl.Lookup(key4("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup after Reset: got %v, want ErrNotFound", err)
	}
	// The table must be fully reusable after Reset.
	if _, err := tbl.Add(key4("a"), nil); err != nil {
		t.Fatalf("Add after Reset: %v", err)
	}
}

func TestWithNameRegistryRoundTrip(t *testing.T) {
	tbl, err := Create(WithEntries(8), WithKeyLen(4), WithName("registry-test-table"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tbl.Close()

	found, ok := FindExisting("registry-test-table")
	if !ok || found != tbl {
		t.Fatalf("FindExisting did not return the created table")
	}
	if _, err := Create(WithEntries(8), WithKeyLen(4), WithName("registry-test-table")); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate name: got %v, want ErrExists", err)
	}
	tbl.Close()
	if _, ok := FindExisting("registry-test-table"); ok {
		t.Fatalf("FindExisting found a closed table")
	}
}

func TestLookupBulk(t *testing.T) {
	tbl := newWorkedTable(t)
	defer tbl.Close()

	keys := [][]byte{key4("a"), key4("b"), key4("c")}
	for _, k := range keys {
		if _, err := tbl.Add(k, nil); err != nil {
			t.Fatalf("Add %q: %v", k, err)
		}
	}

	lookupKeys := [][]byte{key4("a"), key4("missing"), key4("c")}
	positions := make([]int32, len(lookupKeys))
	if err := tbl.LookupBulk(lookupKeys, positions); err != nil {
		t.Fatalf("LookupBulk: %v", err)
	}
	if positions[0] < 0 {
		t.Fatalf("positions[0] = %d, want hit", positions[0])
	}
	if positions[1] != -1 {
		t.Fatalf("positions[1] = %d, want -1 (miss)", positions[1])
	}
	if positions[2] < 0 {
		t.Fatalf("positions[2] = %d, want hit", positions[2])
	}
}

func TestLocalCacheAddFrom(t *testing.T) {
	tbl := newWorkedTable(t, WithLocalCache(2))
	defer tbl.Close()

	v := 7
	pos, err := tbl.AddFrom(0, key4("k1"), ptrFor(&v))
	if err != nil {
		t.Fatalf("AddFrom: %v", err)
	}
	if _, _, err := tbl.Lookup(key4("k1")); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := tbl.DelFrom(0, key4("k1")); err != nil {
		t.Fatalf("DelFrom: %v", err)
	}
	// Re-adding from the same caller id must be able to reuse the slot
	// that just went back through caller 0's local cache.
	if _, err := tbl.AddFrom(0, key4("k2"), nil); err != nil {
		t.Fatalf("AddFrom after Del: %v", err)
	}
	_ = pos
}

func TestSingleWriterModeDoesNotLock(t *testing.T) {
	// SingleWriterSingleReader is the default; confirm Create accepts it
	// explicitly and basic operations behave identically.
	tbl := newWorkedTable(t, WithMode(SingleWriterSingleReader))
	defer tbl.Close()
	if _, err := tbl.Add(key4("k1"), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, _, err := tbl.Lookup(key4("k1")); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
}
