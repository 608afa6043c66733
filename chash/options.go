// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "github.com/aristanetworks/cuckoohash/chash/memalloc"

// Mode selects the concurrency discipline of a Table. This replaces the
// extra_flags bitmask of the algorithm this table is modeled on with a
// small closed enum plus orthogonal boolean options (WithExtendableBuckets,
// WithLocalCache, WithNoFreeOnDelete) -- the idiomatic Go shape for what
// was a flags field with two mutually exclusive bits and three independent
// ones.
type Mode int

const (
	// SingleWriterSingleReader requires the application to externally
	// serialize writers and guarantee no concurrent readers during a
	// write. No locking is performed. This is the default.
	SingleWriterSingleReader Mode = iota

	// MultiWriter takes a write-side lock around every Add/Del so that
	// multiple goroutines may call them concurrently; readers still take
	// no lock and require that only one writer executes at a time.
	MultiWriter

	// RWConcurrent takes the write lock for writers and a read lock for
	// readers, so concurrent readers proceed in parallel but writers
	// exclude all readers.
	RWConcurrent

	// RWConcurrentLockFree takes the write lock for mutual exclusion
	// among writers only; readers never lock and instead rely on the
	// table's change-counter protocol. RCUQSBRAdd must be called before
	// any Del in this mode, since NoFreeOnDelete is forced on internally.
	RWConcurrentLockFree
)

func (m Mode) String() string {
	switch m {
	case SingleWriterSingleReader:
		return "single-writer-single-reader"
	case MultiWriter:
		return "multi-writer"
	case RWConcurrent:
		return "rw-concurrent"
	case RWConcurrentLockFree:
		return "rw-concurrent-lock-free"
	default:
		return "unknown"
	}
}

// config collects the options passed to Create.
type config struct {
	name       string
	entries    uint32
	keyLen     int
	hashFn     HashFunc
	socketHint int
	mode       Mode

	extendableBuckets bool
	noFreeOnDelete    bool

	useLocalCache bool
	maxCallers    int

	allocator memalloc.Allocator

	metricsNamespace string
	registerMetrics  bool

	logger Logger
}

// Option configures a Table at Create time.
type Option func(*config)

// WithName gives the table a name under which it is reachable from
// FindExisting, and which metrics and log lines are labeled with.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithEntries sets the table's fixed capacity E.
func WithEntries(entries uint32) Option {
	return func(c *config) { c.entries = entries }
}

// WithKeyLen sets the fixed key length K, in bytes.
func WithKeyLen(keyLen int) Option {
	return func(c *config) { c.keyLen = keyLen }
}

// WithHashFunc overrides the default hash function (MapHash).
func WithHashFunc(fn HashFunc) Option {
	return func(c *config) { c.hashFn = fn }
}

// WithSocketHint passes a NUMA socket hint through to the configured
// Allocator. -1 (the default) means no preference.
func WithSocketHint(socket int) Option {
	return func(c *config) { c.socketHint = socket }
}

// WithMode selects the concurrency discipline. See Mode.
func WithMode(m Mode) Option {
	return func(c *config) { c.mode = m }
}

// WithExtendableBuckets enables the overflow chain fallback (§4.6 step 7).
// Without it, Add returns ErrNoSpace once both candidate buckets and the
// BFS displacement search are exhausted.
func WithExtendableBuckets() Option {
	return func(c *config) { c.extendableBuckets = true }
}

// WithNoFreeOnDelete disables returning a deleted key's slot to the
// allocator from within Del; the application must call FreeKeyAt itself.
// RWConcurrentLockFree forces this on regardless of whether it is passed.
func WithNoFreeOnDelete() Option {
	return func(c *config) { c.noFreeOnDelete = true }
}

// WithLocalCache enables per-caller bulk-refill slot caches (§4.2).
// maxCallers bounds the number of distinct caller ids that may be passed to
// AddFrom/DelFrom/FreeKeyAtFrom; the free-ring is sized up accordingly.
func WithLocalCache(maxCallers int) Option {
	return func(c *config) {
		c.useLocalCache = true
		c.maxCallers = maxCallers
	}
}

// WithAllocator overrides the default memalloc.Allocator.
func WithAllocator(a memalloc.Allocator) Option {
	return func(c *config) { c.allocator = a }
}

// WithMetrics registers Prometheus counters/gauges for this table under
// namespace (see chash/metrics.go). Omit this option to keep table creation
// free of any Prometheus dependency at runtime.
func WithMetrics(namespace string) Option {
	return func(c *config) {
		c.registerMetrics = true
		c.metricsNamespace = namespace
	}
}

// WithLogger overrides the default logger (a logger.Logger backed by
// github.com/aristanetworks/glog).
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}
