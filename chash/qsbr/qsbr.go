// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package qsbr implements quiescent-state-based reclamation, the
// mechanism that lets package chash recycle a key-store slot or overflow
// bucket only once every reader that might still be looking at it has
// passed through a quiescent state. It plays the role
// rte_rcu_qsbr_dq_enqueue/rte_rcu_qsbr_dq_reclaim play for
// __rte_hash_rcu_dq_entry in the table this package backs.
package qsbr

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristanetworks/cuckoohash/monotime"
)

// Entry is one unit of deferred work: free the key-store slot at KeyIndex
// and, if OverflowIndex is non-zero, the overflow bucket at OverflowIndex.
// It mirrors struct __rte_hash_rcu_dq_entry.
type Entry struct {
	KeyIndex      uint32
	OverflowIndex uint32
}

// FreeFunc releases the resources named by an Entry once it is known no
// reader can still observe them. Reclaim discards a non-nil error; it
// does not block reclamation of later entries.
type FreeFunc func(e Entry) error

// Service tracks a set of registered readers' quiescent-state counters and
// a FIFO of entries waiting to be freed once every reader has reported a
// quiescent state newer than the entry's enqueue time.
//
// Unlike rte_rcu_qsbr, which hands callers a lcore-indexed bitmap token,
// Service hands out a *Reader value per registered goroutine: Go has no
// stable notion of "current core" to index an array by, so each reader
// carries its own quiescent-state counter instead of occupying a slot in
// one shared array.
type Service struct {
	free FreeFunc

	mu      sync.Mutex
	readers []*Reader
	queue   []pendingEntry
}

// Reader is a per-goroutine handle registered with a Service. A goroutine
// that holds references into a lock-free-mode Table across blocking points
// must call Quiescent between lookups to let reclamation proceed;
// goroutines that only ever call a single Table method at a time and
// never retain a returned data pointer across calls do not need one.
type Reader struct {
	gen atomic.Uint64
}

// Quiescent reports that r's goroutine is not currently holding any
// pointer obtained from a lock-free Table read. It must be called
// periodically (e.g. once per request handled) for RegisterReader's
// caller to make forward progress on reclamation.
func (r *Reader) Quiescent() {
	r.gen.Add(1)
}

type pendingEntry struct {
	entry Entry
	stamp []readerStamp // reader generation snapshot at enqueue time
}

// readerStamp binds a generation snapshot to the specific *Reader it was
// taken from, rather than to a slice index: Unregister can shift every
// later reader's index, so an index-keyed stamp would silently start
// checking the wrong reader for any entry enqueued before the removal.
type readerStamp struct {
	reader *Reader
	gen    uint64
}

// New returns a Service that calls free for every entry once it becomes
// safe to reclaim.
func New(free FreeFunc) *Service {
	return &Service{free: free}
}

// SetFree replaces the FreeFunc the service calls on reclaim. It is meant
// for a table attaching itself to a Service it did not construct (see
// chash.Table.RCUQSBRAdd): the table's own free logic must run for every
// entry, so it installs itself here rather than requiring every caller to
// reimplement it. Not safe to call concurrently with Enqueue/Reclaim.
func (s *Service) SetFree(free FreeFunc) {
	s.mu.Lock()
	s.free = free
	s.mu.Unlock()
}

// RegisterReader adds a new reader to the service. Call Unregister when
// the goroutine using it exits, so Reclaim does not wait on a reader that
// will never advance again.
func (s *Service) RegisterReader() *Reader {
	r := &Reader{}
	s.mu.Lock()
	s.readers = append(s.readers, r)
	s.mu.Unlock()
	return r
}

// Unregister removes r from the service.
func (s *Service) Unregister(r *Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rr := range s.readers {
		if rr == r {
			s.readers = append(s.readers[:i], s.readers[i+1:]...)
			return
		}
	}
}

// Enqueue defers freeing e until every currently-registered reader has
// reported at least one quiescent state after this call.
func (s *Service) Enqueue(e Entry) {
	s.mu.Lock()
	stamp := make([]readerStamp, len(s.readers))
	for i, r := range s.readers {
		stamp[i] = readerStamp{reader: r, gen: r.gen.Load()}
	}
	s.queue = append(s.queue, pendingEntry{entry: e, stamp: stamp})
	s.mu.Unlock()
}

// Reclaim walks the deferred queue in FIFO order and frees every entry
// whose readers have all advanced past their enqueue-time generation,
// stopping at the first entry that is not yet safe (later entries were
// enqueued after it and so cannot be safe either). It returns the number
// of entries freed. maxReclaim bounds the amount of work done in one
// call; pass 0 for no bound.
func (s *Service) Reclaim(maxReclaim int) (freed int) {
	for maxReclaim <= 0 || freed < maxReclaim {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return freed
		}
		head := s.queue[0]
		if !s.safeLocked(head) {
			s.mu.Unlock()
			return freed
		}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		_ = s.free(head.entry)
		freed++
	}
	return freed
}

func (s *Service) safeLocked(p pendingEntry) bool {
	for _, st := range p.stamp {
		// A reader that has since unregistered can no longer be
		// holding a pointer into the table; a reader still present
		// must have advanced past its enqueue-time generation.
		if !s.registeredLocked(st.reader) {
			continue
		}
		if st.reader.gen.Load() <= st.gen {
			return false
		}
	}
	return true
}

func (s *Service) registeredLocked(r *Reader) bool {
	for _, rr := range s.readers {
		if rr == r {
			return true
		}
	}
	return false
}

// Synchronize blocks until every entry currently in the deferred queue has
// been reclaimed, polling with a short backoff between attempts. It is
// meant for shutdown paths (Table.Close), not steady-state use.
func (s *Service) Synchronize() {
	const backoff = 50 * time.Microsecond
	for {
		s.mu.Lock()
		empty := len(s.queue) == 0
		s.mu.Unlock()
		if empty {
			return
		}
		start := monotime.Now()
		s.Reclaim(0)
		if elapsed := monotime.Since(start); elapsed < backoff {
			time.Sleep(backoff - elapsed)
		}
	}
}
