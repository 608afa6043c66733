// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	"sync"

	"github.com/aristanetworks/gomap"
)

// registry backs FindExisting, the Go equivalent of rte_hash_find_existing
// walking the rte_hash tailq by name. registryMu guards every access to it,
// so concurrent callers may register, unregister and look up tables.
var (
	registryMu sync.Mutex
	registry   = gomap.New[string, *Table]()
)

// Register makes t reachable from FindExisting under name. Create calls
// this automatically when given WithName; applications that build a Table
// without a name can still call Register themselves later.
func Register(name string, t *Table) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry.Set(name, t)
}

// Unregister removes name from the registry. Close calls this
// automatically for a named table.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry.Delete(name)
}

// FindExisting looks up a table previously registered under name.
func FindExisting(name string) (*Table, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry.Get(name)
}
