// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package qsbr

import (
	"testing"
)

func TestReclaimWaitsForAllReaders(t *testing.T) {
	var freed []Entry
	svc := New(func(e Entry) error {
		freed = append(freed, e)
		return nil
	})

	r1 := svc.RegisterReader()
	r2 := svc.RegisterReader()

	svc.Enqueue(Entry{KeyIndex: 1})

	if n := svc.Reclaim(0); n != 0 {
		t.Fatalf("Reclaim before any quiescent state: got %d, want 0", n)
	}

	r1.Quiescent()
	if n := svc.Reclaim(0); n != 0 {
		t.Fatalf("Reclaim with only one reader quiescent: got %d, want 0", n)
	}

	r2.Quiescent()
	if n := svc.Reclaim(0); n != 1 {
		t.Fatalf("Reclaim once all readers quiescent: got %d, want 1", n)
	}
	if len(freed) != 1 || freed[0].KeyIndex != 1 {
		t.Fatalf("unexpected freed entries: %+v", freed)
	}
}

func TestReclaimIsFIFO(t *testing.T) {
	var freed []Entry
	svc := New(func(e Entry) error {
		freed = append(freed, e)
		return nil
	})

	r := svc.RegisterReader()
	svc.Enqueue(Entry{KeyIndex: 1})
	r.Quiescent()
	svc.Enqueue(Entry{KeyIndex: 2})
	// KeyIndex 2 was enqueued after r's quiescent state above, so it is
	// not yet safe even though KeyIndex 1 is.

	if n := svc.Reclaim(0); n != 1 {
		t.Fatalf("Reclaim: got %d, want 1", n)
	}
	if len(freed) != 1 || freed[0].KeyIndex != 1 {
		t.Fatalf("unexpected freed entries: %+v", freed)
	}

	r.Quiescent()
	if n := svc.Reclaim(0); n != 1 {
		t.Fatalf("Reclaim after second quiescent state: got %d, want 1", n)
	}
	if len(freed) != 2 || freed[1].KeyIndex != 2 {
		t.Fatalf("unexpected freed entries: %+v", freed)
	}
}

func TestUnregisterStopsBlockingReclaim(t *testing.T) {
	svc := New(func(Entry) error { return nil })

	r1 := svc.RegisterReader()
	r2 := svc.RegisterReader()
	svc.Enqueue(Entry{KeyIndex: 1})

	r1.Quiescent()
	svc.Unregister(r2)

	if n := svc.Reclaim(0); n != 1 {
		t.Fatalf("Reclaim after unregistering the blocking reader: got %d, want 1", n)
	}
}

func TestSynchronizeDrainsQueue(t *testing.T) {
	svc := New(func(Entry) error { return nil })
	r := svc.RegisterReader()
	svc.Enqueue(Entry{KeyIndex: 1})

	done := make(chan struct{})
	go func() {
		svc.Synchronize()
		close(done)
	}()

	r.Quiescent()

	<-done
}
