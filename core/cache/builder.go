// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cache

import (
	"time"
)

// ResultBuilder is the mutable staging area for one reconciliation
// pass. It accumulates, per namespace, the entries to keep and the keys
// to evict, plus the on-demand bookkeeping for the pass, and is frozen
// into an immutable Result by Build.
//
// A builder has exactly one owner: the pass that created it. It is
// never shared across goroutines and carries no locking; concurrent
// passes over the same namespace coexist through the store's per-key
// atomicity and the on-demand timestamp rule, not through the builder.
type ResultBuilder struct {
	startedAt  time.Time
	namespaces map[string]*NamespaceBuilder
	onDemand   map[Key]Record
}

// NewResultBuilder returns a builder for a pass that started at the
// given time. The start time is the scheduled side of the on-demand
// precedence comparison.
func NewResultBuilder(startedAt time.Time) *ResultBuilder {
	return &ResultBuilder{
		startedAt:  startedAt,
		namespaces: make(map[string]*NamespaceBuilder),
		onDemand:   make(map[Key]Record),
	}
}

// StartedAt returns the pass start time the builder was created with.
func (b *ResultBuilder) StartedAt() time.Time {
	return b.startedAt
}

// Namespace returns the staging area for one namespace, creating it on
// first use.
func (b *ResultBuilder) Namespace(ns string) *NamespaceBuilder {
	nb, ok := b.namespaces[ns]
	if !ok {
		nb = &NamespaceBuilder{
			keep:  make(map[Key]Attributes),
			evict: make(map[Key]bool),
		}
		b.namespaces[ns] = nb
	}
	return nb
}

// SetOnDemandRecords seeds the builder with the pending on-demand
// markers read at the start of the pass. Each record is either
// superseded (staged for eviction from the on-demand namespace) or
// retained with its processed counters bumped.
func (b *ResultBuilder) SetOnDemandRecords(records map[Key]Record, now time.Time) {
	od := b.Namespace(NamespaceOnDemand)
	for key, rec := range records {
		if rec.Superseded(b.startedAt) {
			od.Evict(key)
			continue
		}
		b.onDemand[key] = rec
		od.Keep(key, rec.Processed(now).ToAttrs())
	}
}

// ShouldUseOnDemandData reports whether the pass must not overwrite the
// entry for key with freshly-listed data: true iff an on-demand record
// exists whose cache time is strictly newer than the pass start.
// Equal timestamps favour the scheduled pass.
func (b *ResultBuilder) ShouldUseOnDemandData(key Key) bool {
	rec, ok := b.onDemand[key]
	return ok && rec.CacheTime.After(b.startedAt)
}

// MoveOnDemandDataToNamespace copies the on-demand record's attributes
// for key verbatim into the namespace keep set, in place of recomputed
// provider data. The record itself stays staged in the on-demand
// namespace with its processed counters bumped; it is evicted by a
// later pass once superseded.
func (b *ResultBuilder) MoveOnDemandDataToNamespace(ns string, key Key) {
	rec, ok := b.onDemand[key]
	if !ok {
		return
	}
	b.Namespace(ns).Keep(key, rec.Attributes)
}

// Build freezes the staged state into an immutable Result. The builder
// must not be used after Build.
func (b *ResultBuilder) Build() *Result {
	result := &Result{Namespaces: make(map[string]NamespaceResult, len(b.namespaces))}
	for ns, nb := range b.namespaces {
		nr := NamespaceResult{Keep: make(map[Key]Attributes, len(nb.keep))}
		for key, attrs := range nb.keep {
			nr.Keep[key] = attrs
		}
		for key := range nb.evict {
			nr.Evict = append(nr.Evict, key)
		}
		result.Namespaces[ns] = nr
	}
	return result
}

// NamespaceBuilder stages the keep and evict sets for one namespace.
// A key is in at most one of the two sets; the most recent call wins.
type NamespaceBuilder struct {
	keep  map[Key]Attributes
	evict map[Key]bool
}

// Keep stages key for upsert with the given attributes. Calling Keep
// twice for the same key overwrites the attributes. Any pending evict
// for the key is cancelled.
func (nb *NamespaceBuilder) Keep(key Key, attrs Attributes) {
	delete(nb.evict, key)
	nb.keep[key] = attrs
}

// Evict stages key for removal, cancelling any pending keep.
func (nb *NamespaceBuilder) Evict(key Key) {
	delete(nb.keep, key)
	nb.evict[key] = true
}

// EvictIfNotKept stages key for eviction unless the pass already keeps
// it. Full scans use this to sweep vanished entries out of their
// (account, region) scope without disturbing keys they keep.
func (nb *NamespaceBuilder) EvictIfNotKept(key Key) {
	if _, ok := nb.keep[key]; ok {
		return
	}
	nb.evict[key] = true
}

// KeepSize returns the number of keys currently staged to keep.
func (nb *NamespaceBuilder) KeepSize() int {
	return len(nb.keep)
}

// EvictSize returns the number of keys currently staged for eviction.
func (nb *NamespaceBuilder) EvictSize() int {
	return len(nb.evict)
}
