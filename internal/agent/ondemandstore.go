// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package agent

import (
	"context"

	"github.com/juju/errors"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/cachestore"
)

// OnDemandStore reads and writes on-demand marker records. Markers live
// in the store's onDemand namespace but are keyed by the resource key
// they shadow, so a scheduled pass can look its own keys up directly.
//
// Markers are read-then-conditionally-written, never locked: races
// between concurrent refreshes of one key are resolved by the cache
// time comparison, and the last successful write wins.
type OnDemandStore interface {
	// Pending returns the marker records in this (account, region)
	// scope, keyed by the resource key each marker shadows.
	Pending(ctx context.Context, account, region string) (map[cache.Key]cache.Record, error)
}

type storeOnDemand struct {
	store             cachestore.Store
	resourceNamespace string
}

// NewOnDemandStore returns an OnDemandStore over the shared cache for
// markers shadowing one resource namespace.
func NewOnDemandStore(store cachestore.Store, resourceNamespace string) OnDemandStore {
	return &storeOnDemand{store: store, resourceNamespace: resourceNamespace}
}

// Pending implements OnDemandStore.
func (s *storeOnDemand) Pending(ctx context.Context, account, region string) (map[cache.Key]cache.Record, error) {
	pattern := cache.Key{
		Namespace: s.resourceNamespace,
		Name:      cache.Wildcard,
		ID:        cache.Wildcard,
		Account:   account,
		Region:    region,
	}
	keys, err := s.store.FilterIdentifiers(ctx, cache.NamespaceOnDemand, pattern)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entries, err := s.store.GetAll(ctx, cache.NamespaceOnDemand, keys, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	records := make(map[cache.Key]cache.Record, len(entries))
	for _, entry := range entries {
		rec, err := cache.RecordFromAttrs(entry.Attributes)
		if err != nil {
			return nil, errors.Annotatef(err, "decoding on-demand marker %q", entry.Key)
		}
		records[entry.Key] = rec
	}
	return records, nil
}
