// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cachestore defines the contract of the shared key-value cache
// the reconciliation engine writes into. The store is shared by many
// concurrent agents; implementations must apply a Result's keep and
// evict sets atomically per namespace and must never let a write to one
// key disturb another.
package cachestore

import (
	"context"

	"github.com/skycache/skycache/core/cache"
)

// RelationshipFilter restricts which relationship namespaces GetAll
// returns. A nil filter returns all relationships.
type RelationshipFilter func(namespace string) bool

// Store is the shared cache. Get returns errors.NotFound when the key
// has no entry. FilterIdentifiers supports pattern keys with a wildcard
// name or id segment.
type Store interface {
	Get(ctx context.Context, namespace string, key cache.Key) (*cache.Entry, error)
	GetAll(ctx context.Context, namespace string, keys []cache.Key, filter RelationshipFilter) ([]*cache.Entry, error)
	FilterIdentifiers(ctx context.Context, namespace string, pattern cache.Key) ([]cache.Key, error)
	Put(ctx context.Context, result *cache.Result) error
}
