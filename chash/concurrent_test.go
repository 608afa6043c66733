// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristanetworks/cuckoohash/chash/qsbr"
)

// TestRWConcurrentLockFreeReaders runs a single writer churning Add/Del
// against a table created WithMode(RWConcurrentLockFree) concurrently with
// several lock-free readers, using the table's own qsbr.Service for
// deferred reclamation. The property under test is the one spec.md calls
// out for this mode: a lock-free Lookup must never return a torn or
// use-after-free result, only a clean hit or ErrNotFound.
func TestRWConcurrentLockFreeReaders(t *testing.T) {
	tbl, err := Create(
		WithEntries(64),
		WithKeyLen(4),
		WithMode(RWConcurrentLockFree),
		WithExtendableBuckets(),
	)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tbl.Close()

	// RCUQSBRAdd installs the table's own free logic on svc2; this test
	// only supplies the Service, not the freeing itself.
	svc2 := qsbr.New(func(qsbr.Entry) error { return nil })
	if err := tbl.RCUQSBRAdd(RCUConfig{Service: svc2}); err != nil {
		t.Fatalf("RCUQSBRAdd: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	keys := make([][]byte, 32)
	for i := range keys {
		keys[i] = key4(string(rune('a' + i%26)) + string(rune('0'+i/26)))
	}

	var g errgroup.Group

	g.Go(func() error {
		deadline := time.Now().Add(1500 * time.Millisecond)
		for time.Now().Before(deadline) {
			for _, k := range keys {
				if _, err := tbl.Add(k, nil); err != nil && !errors.Is(err, ErrNoSpace) {
					return err
				}
			}
			for _, k := range keys {
				if _, err := tbl.Del(k); err != nil && !errors.Is(err, ErrNotFound) {
					return err
				}
			}
			svc2.Reclaim(0)
		}
		return nil
	})

	for r := 0; r < 4; r++ {
		reader := svc2.RegisterReader()
		g.Go(func() error {
			defer svc2.Unregister(reader)
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				for _, k := range keys {
					if _, _, err := tbl.Lookup(k); err != nil && !errors.Is(err, ErrNotFound) {
						return err
					}
				}
				reader.Quiescent()
			}
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("concurrent run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent run did not finish in time")
	}
}
