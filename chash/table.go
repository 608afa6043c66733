// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/aristanetworks/cuckoohash/chash/memalloc"
	"github.com/aristanetworks/cuckoohash/chash/qsbr"
	"github.com/aristanetworks/cuckoohash/chash/ring"
	"github.com/aristanetworks/cuckoohash/monotime"
)

// Table is a fixed-capacity, concurrent, bucketized cuckoo hash table
// mapping fixed-length byte keys to opaque data pointers.
//
// A zero Table is not usable; every Table is obtained from Create.
type Table struct {
	cfg config

	numBuckets uint32
	bucketMask uint32
	buckets    []bucket

	overflowEnabled bool
	overflow        []bucket
	overflowFree    *ring.Ring

	keys    *keyStore
	keyFree *ring.Ring

	caches []*localCache

	sigCmp sigCompareFunc
	seed   uint64

	// mu is the writer-exclusion / reader-exclusion lock, used according
	// to cfg.mode: unused in SingleWriterSingleReader, a plain mutex for
	// MultiWriter and RWConcurrentLockFree (writers only), and a full
	// RWMutex for RWConcurrent.
	mu sync.RWMutex

	// tblChngCnt is bumped, with a release fence implied by the atomic
	// store, around every structural change a lock-free reader could
	// otherwise observe torn: a cuckoo displacement move or a chain
	// compaction. __rte_hash_lookup_with_hash_lf reads it before and
	// after a bucket scan and retries the scan if it changed.
	tblChngCnt atomic.Uint32

	count atomic.Int32

	qsbrMu sync.Mutex
	qsbrS  *qsbr.Service

	metrics *tableMetrics
}

// RCUConfig configures RCUQSBRAdd.
type RCUConfig struct {
	// Service is the quiescent-state-based reclamation service that will
	// own this table's deferred key-slot and overflow-bucket frees.
	// Required.
	Service *qsbr.Service

	// FreeKeyDataFunc, if set, is called after the table has returned a
	// reclaimed key slot to its free ring, with the key and data pointer
	// that slot held. It lets a caller release resources the data pointer
	// refers to; it runs after the table's own reclamation, never instead
	// of it.
	FreeKeyDataFunc func(key []byte, data unsafe.Pointer)
}

// Create builds a new Table. WithEntries and WithKeyLen are required;
// every other option has a workable default.
func Create(opts ...Option) (*Table, error) {
	cfg := config{
		hashFn:     MapHash,
		socketHint: -1,
		allocator:  memalloc.Default,
		logger:     defaultLogger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.entries == 0 || cfg.entries > EntriesMax {
		return nil, fmt.Errorf("%w: entries must be in (0, %d], got %d",
			ErrInvalidArgument, EntriesMax, cfg.entries)
	}
	if cfg.keyLen <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d",
			ErrInvalidArgument, cfg.keyLen)
	}
	if cfg.mode == RWConcurrentLockFree {
		cfg.noFreeOnDelete = true
	}
	if cfg.useLocalCache {
		if cfg.maxCallers < 1 {
			return nil, fmt.Errorf("%w: WithLocalCache requires at least one caller",
				ErrInvalidArgument)
		}
		if cfg.maxCallers > 1 && cfg.entries < 2 {
			// A table this small gains nothing from per-caller
			// caching.
			cfg.useLocalCache = false
		}
	}

	if cfg.name != "" {
		if _, ok := FindExisting(cfg.name); ok {
			return nil, fmt.Errorf("%w: table %q already registered", ErrExists, cfg.name)
		}
	}

	numBuckets := nextPow2(ceilDiv(cfg.entries, BucketEntries))

	t := &Table{
		cfg:        cfg,
		numBuckets: numBuckets,
		bucketMask: numBuckets - 1,
		buckets:    make([]bucket, numBuckets),
		seed:       newSeed(),
		sigCmp:     selectSigCompare(),
	}

	keyStoreCap := cfg.entries
	if cfg.useLocalCache {
		keyStoreCap = ring.SizeForCache(cfg.entries, cfg.maxCallers, LcoreCacheSize) - 1
	}
	keys, err := newKeyStore(keyStoreCap, cfg.keyLen, cfg.allocator, cfg.socketHint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	t.keys = keys

	ringCap := keyStoreCap
	t.keyFree = ring.New(ringCap)
	free := make([]uint32, ringCap)
	for i := range free {
		free[i] = uint32(i + 1) // slot 0 is the reserved empty sentinel
	}
	t.keyFree.Enqueue(free)

	if cfg.extendableBuckets {
		t.overflowEnabled = true
		t.overflow = make([]bucket, numBuckets+1) // index 0 unused, mirrors keys
		t.overflowFree = ring.New(numBuckets)
		ofree := make([]uint32, numBuckets)
		for i := range ofree {
			ofree[i] = uint32(i + 1)
		}
		t.overflowFree.Enqueue(ofree)
	}

	if cfg.useLocalCache {
		t.caches = make([]*localCache, cfg.maxCallers)
		for i := range t.caches {
			t.caches[i] = newLocalCache(LcoreCacheSize)
		}
	}

	if cfg.registerMetrics {
		m, err := newTableMetrics(cfg.metricsNamespace, cfg.name, t)
		if err != nil {
			return nil, fmt.Errorf("chash: registering metrics: %w", err)
		}
		t.metrics = m
	}

	if cfg.name != "" {
		Register(cfg.name, t)
	}

	cfg.logger.Infof("chash: created table %q: entries=%d keylen=%d buckets=%d mode=%s",
		cfg.name, cfg.entries, cfg.keyLen, numBuckets, cfg.mode)

	return t, nil
}

// Close releases any resources the table holds outside the Go heap: its
// registry entry, its metrics, and (if RCUQSBRAdd was called) waits for
// every deferred free to drain.
func (t *Table) Close() error {
	if t.cfg.name != "" {
		Unregister(t.cfg.name)
	}
	if t.metrics != nil {
		t.metrics.unregister()
	}
	t.qsbrMu.Lock()
	svc := t.qsbrS
	t.qsbrMu.Unlock()
	if svc != nil {
		svc.Synchronize()
	}
	t.keys.free()
	t.cfg.logger.Infof("chash: closed table %q", t.cfg.name)
	return nil
}

// Reset empties the table: every bucket, overflow chain, and key slot is
// cleared and the free rings are rebuilt from scratch. The caller must
// ensure Reset is not called concurrently with any other operation on the
// table, in every concurrency Mode.
func (t *Table) Reset() {
	// Reallocated rather than cleared in place: bucket embeds
	// atomic.Uint32 fields, and assigning a zero-value bucket{} over an
	// existing element would copy them, which go vet (rightly) flags.
	t.buckets = make([]bucket, t.numBuckets)
	if t.overflowEnabled {
		t.overflow = make([]bucket, len(t.overflow))
	}
	zero := make([]byte, t.cfg.keyLen)
	for i := range t.keys.slots {
		t.keys.set(uint32(i), zero, nil)
	}
	t.count.Store(0)
	t.tblChngCnt.Add(1)

	keyStoreCap := uint32(len(t.keys.slots) - 1)
	t.keyFree = ring.New(keyStoreCap)
	free := make([]uint32, keyStoreCap)
	for i := range free {
		free[i] = uint32(i + 1)
	}
	t.keyFree.Enqueue(free)

	if t.overflowEnabled {
		n := uint32(len(t.overflow) - 1)
		t.overflowFree = ring.New(n)
		ofree := make([]uint32, n)
		for i := range ofree {
			ofree[i] = uint32(i + 1)
		}
		t.overflowFree.Enqueue(ofree)
	}

	for _, c := range t.caches {
		if c != nil {
			c.reset()
		}
	}
}

// Count returns the number of keys currently stored in the table.
func (t *Table) Count() int {
	return int(t.count.Load())
}

// RCUQSBRAdd attaches a quiescent-state-based reclamation service to the
// table. It must be called before any Del when the table was created
// WithMode(RWConcurrentLockFree), since that mode never frees a key slot
// synchronously from within Del.
//
// The table installs its own FreeFunc on cfg.Service (overwriting whatever
// it was constructed with): every reclaimed entry has its key slot and, if
// any, overflow bucket returned to the table's own free rings, and only
// then -- with the slot's former key and data pointer still in hand -- is
// cfg.FreeKeyDataFunc invoked, mirroring how rte_hash_rcu_qsbr_add wraps a
// user's free callback around its own internal one.
func (t *Table) RCUQSBRAdd(cfg RCUConfig) error {
	if cfg.Service == nil {
		return fmt.Errorf("%w: RCUConfig.Service is required", ErrInvalidArgument)
	}
	t.qsbrMu.Lock()
	defer t.qsbrMu.Unlock()
	if t.qsbrS != nil {
		return fmt.Errorf("%w: RCU reclamation already configured", ErrExists)
	}
	userFree := cfg.FreeKeyDataFunc
	cfg.Service.SetFree(func(e qsbr.Entry) error {
		if e.KeyIndex != 0 {
			var key []byte
			var data unsafe.Pointer
			if userFree != nil {
				key = append([]byte(nil), t.keys.key(e.KeyIndex)...)
				data = t.keys.data(e.KeyIndex)
			}
			t.keys.set(e.KeyIndex, make([]byte, t.cfg.keyLen), nil)
			t.keyFree.EnqueueOne(e.KeyIndex)
			if userFree != nil {
				userFree(key, data)
			}
		}
		if e.OverflowIndex != 0 {
			t.overflowFree.EnqueueOne(e.OverflowIndex)
		}
		return nil
	})
	t.qsbrS = cfg.Service
	return nil
}

// qsbrSvc returns the reclamation service attached via RCUQSBRAdd, or nil
// if none has been.
func (t *Table) qsbrSvc() *qsbr.Service {
	t.qsbrMu.Lock()
	defer t.qsbrMu.Unlock()
	return t.qsbrS
}

func nextPow2(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

var seedCounter atomic.Uint64

// newSeed derives a per-table hash seed. It does not need to be
// cryptographically random, only distinct across tables created close
// together in time, so folding a monotonic timestamp with a process-wide
// counter is enough.
func newSeed() uint64 {
	n := seedCounter.Add(1)
	return uint64(monotime.Now())<<1 ^ n
}
