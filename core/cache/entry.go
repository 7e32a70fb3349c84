// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cache

// Attributes is the schemaless payload of a cache entry. Values must be
// JSON-representable so persistent store backends can round-trip them.
type Attributes = map[string]interface{}

// Entry is one cached resource as held by the store: its key, its
// attribute payload, and its relationships to entries in other
// namespaces. Entries are owned by the store; reconciliation passes
// re-fetch rather than holding long-lived references.
type Entry struct {
	Key           Key
	Attributes    Attributes
	Relationships map[string][]Key
}

// NamespaceResult is the frozen instruction set for one namespace:
// entries to upsert and keys to evict. Keep and Evict are disjoint.
type NamespaceResult struct {
	Keep  map[Key]Attributes
	Evict []Key
}

// Result is the immutable output of a reconciliation pass, consumed by
// the store as an atomic-per-namespace upsert/evict instruction set.
// Writes are always qualified by explicit key; applying a Result never
// replaces a whole namespace.
type Result struct {
	Namespaces map[string]NamespaceResult
}

// Namespace returns the frozen result for one namespace. The zero value
// is returned for namespaces the pass did not touch.
func (r *Result) Namespace(ns string) NamespaceResult {
	return r.Namespaces[ns]
}

// KeepCount returns the total number of entries staged for upsert
// across all namespaces.
func (r *Result) KeepCount() int {
	var n int
	for _, nr := range r.Namespaces {
		n += len(nr.Keep)
	}
	return n
}
