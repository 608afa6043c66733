// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "github.com/klauspost/cpuid/v2"

// sigCompareFunc returns an 8-bit mask with bit i set when bucket.sig[i]
// equals sig. It plays the role of the original table's compiler-generated
// SSE/AVX2/NEON bulk signature comparison: rather than building a second
// SIMD backend by hand, Create picks between two pure-Go strategies using
// github.com/klauspost/cpuid/v2's feature detection, the same way the rest
// of this module leans on an ecosystem library instead of hand-rolled
// platform probing.
type sigCompareFunc func(b *bucket, sig uint16) uint8

// selectSigCompare chooses the bulk comparator for a newly created table.
// denseSigCompare unrolls the eight comparisons with no branches, which
// pays off on cores wide enough to run them with instruction-level
// parallelism (anything with AVX2 or ASIMD); sparseSigCompare is a plain
// loop with an early continue, cheaper to decode on narrower cores.
func selectSigCompare() sigCompareFunc {
	if cpuid.CPU.Has(cpuid.AVX2) || cpuid.CPU.Has(cpuid.ASIMD) {
		return denseSigCompare
	}
	return sparseSigCompare
}

func denseSigCompare(b *bucket, sig uint16) uint8 {
	var mask uint8
	mask |= boolBit(b.sig[0] == sig, 0)
	mask |= boolBit(b.sig[1] == sig, 1)
	mask |= boolBit(b.sig[2] == sig, 2)
	mask |= boolBit(b.sig[3] == sig, 3)
	mask |= boolBit(b.sig[4] == sig, 4)
	mask |= boolBit(b.sig[5] == sig, 5)
	mask |= boolBit(b.sig[6] == sig, 6)
	mask |= boolBit(b.sig[7] == sig, 7)
	return mask
}

func sparseSigCompare(b *bucket, sig uint16) uint8 {
	var mask uint8
	for i, s := range b.sig {
		if s != sig {
			continue
		}
		mask |= 1 << uint(i)
	}
	return mask
}

func boolBit(cond bool, bit uint) uint8 {
	if cond {
		return 1 << bit
	}
	return 0
}
