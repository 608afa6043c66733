// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// HashFunc hashes a key under a table-chosen seed. Only the low 32 bits of
// the result are significant: get_short_sig and get_prim_bucket_index split
// a single 32-bit hash, so implementations that naturally produce 64 bits
// (MapHash, XXHash) are truncated by the caller, never by the HashFunc
// itself.
type HashFunc func(key []byte, seed uint64) uint64

// mapHashSeed is the one maphash.Seed MapHash uses, fixed for the life of
// the process so that a key hashes the same way on every call.
var mapHashSeed = maphash.MakeSeed()

// MapHash is the default HashFunc. It is backed by hash/maphash, which
// keeps the table free of an extra hashing dependency for the common case.
func MapHash(key []byte, seed uint64) uint64 {
	var h maphash.Hash
	h.SetSeed(mapHashSeed)
	// Seed values cannot be synthesized from a uint64 directly; fold the
	// table's seed into the message instead, so distinct tables with
	// distinct seeds still see distinct bucket distributions for identical
	// keys.
	var buf [8]byte
	putUint64(buf[:], seed)
	h.Write(buf[:])
	h.Write(key)
	return h.Sum64()
}

// XXHash is an alternative, faster HashFunc backed by
// github.com/cespare/xxhash/v2. It plays the role spec.md assigns to a
// CRC32 hash on platforms with hardware CRC32 acceleration: Go has no
// portable CRC32-in-a-single-instruction intrinsic, so xxHash is the
// idiomatic stand-in for "fast, non-cryptographic, accelerated by the
// platform's instruction set where the library supports it."
func XXHash(key []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	d.Write(key) //nolint:errcheck // xxhash.Digest.Write never errors
	return d.Sum64()
}

func putUint64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
