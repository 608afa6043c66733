// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import "errors"

// Error kinds returned by Table operations. Every error a caller can observe
// from this package wraps one of these with errors.Is, except the error
// Create returns when WithMetrics fails to register its collectors, which
// wraps the Prometheus registration error instead. The kinds match the
// errno-shaped taxonomy of the algorithm this table implements (-EINVAL,
// -EEXIST, -ENOSPC, -ENOENT, -ENOMEM).
var (
	// ErrInvalidArgument is returned for a nil/zero-length key, a key of
	// the wrong length, an out-of-range capacity, or an incompatible
	// combination of options.
	ErrInvalidArgument = errors.New("chash: invalid argument")

	// ErrExists is returned when creating a table whose name is already
	// registered, or when registering RCU reclamation twice on one table.
	ErrExists = errors.New("chash: already exists")

	// ErrNoSpace is returned when an insert cannot find room for a new
	// key: both candidate buckets, the bounded cuckoo displacement search,
	// and (if enabled) the overflow chain are all exhausted.
	ErrNoSpace = errors.New("chash: table full")

	// ErrNotFound is returned by Lookup/Del for an absent key, and by
	// Iterate once the table has been fully walked.
	ErrNotFound = errors.New("chash: not found")

	// ErrAllocationFailed is returned when the configured memalloc.Allocator
	// refuses a request.
	ErrAllocationFailed = errors.New("chash: allocation failed")

	// ErrInternal marks a logged, non-panicking consistency fault: a ring
	// enqueue that invariants say must succeed, or a reclamation service
	// reporting state this table did not expect. The operation that
	// triggered it still returns promptly with this error.
	ErrInternal = errors.New("chash: internal fault")
)
