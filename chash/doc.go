// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package chash implements a concurrent, bucketized cuckoo hash table
// mapping fixed-length opaque byte keys to opaque data pointers.
//
// The table is a fixed-capacity, two-choice cuckoo hash: every key has a
// primary and a secondary candidate bucket, and insertion falls back to a
// breadth-first search over displacement paths before spilling into an
// optional overflow chain. Lookups dominate the expected workload, so the
// table supports a lock-free reader mode built on a per-table change
// counter and acquire/release fences, coordinated with an external
// quiescent-state-based reclamation service (see package
// github.com/aristanetworks/cuckoohash/chash/qsbr) so that a reader can
// never observe a key-store slot or overflow bucket that has been recycled
// out from under it.
//
// Resizing, persistence, iteration snapshots, key ordering, and
// cryptographic hashing are explicitly not goals of this package.
package chash
