// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package memory provides an in-process cache store. It backs the
// daemon's ephemeral mode and the test suites of every component that
// consumes a store.
package memory

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/cachestore"
)

// Store is a Store implementation over namespaced in-memory maps.
// All operations take the store lock; a Put applies its whole keep and
// evict set under one critical section, which gives the per-namespace
// atomicity the reconciliation contract requires.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[cache.Key]*cache.Entry
}

var _ cachestore.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{namespaces: make(map[string]map[cache.Key]*cache.Entry)}
}

// Get implements cachestore.Store.
func (s *Store) Get(_ context.Context, namespace string, key cache.Key) (*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.namespaces[namespace][key]
	if !ok {
		return nil, errors.NotFoundf("entry %q in namespace %q", key, namespace)
	}
	return copyEntry(entry, nil), nil
}

// GetAll implements cachestore.Store. Keys with no entry are skipped
// rather than reported; reconciliation treats absence as a legitimate
// state, not an error.
func (s *Store) GetAll(_ context.Context, namespace string, keys []cache.Key, filter cachestore.RelationshipFilter) ([]*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*cache.Entry, 0, len(keys))
	for _, key := range keys {
		if entry, ok := s.namespaces[namespace][key]; ok {
			entries = append(entries, copyEntry(entry, filter))
		}
	}
	return entries, nil
}

// FilterIdentifiers implements cachestore.Store.
func (s *Store) FilterIdentifiers(_ context.Context, namespace string, pattern cache.Key) ([]cache.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []cache.Key
	for key := range s.namespaces[namespace] {
		if key.Matches(pattern) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Put implements cachestore.Store.
func (s *Store) Put(_ context.Context, result *cache.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ns, nr := range result.Namespaces {
		entries, ok := s.namespaces[ns]
		if !ok {
			entries = make(map[cache.Key]*cache.Entry)
			s.namespaces[ns] = entries
		}
		for key, attrs := range nr.Keep {
			entries[key] = &cache.Entry{Key: key, Attributes: copyAttrs(attrs)}
		}
		for _, key := range nr.Evict {
			delete(entries, key)
		}
	}
	return nil
}

// Size returns the number of entries held in one namespace.
func (s *Store) Size(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func copyEntry(entry *cache.Entry, filter cachestore.RelationshipFilter) *cache.Entry {
	out := &cache.Entry{Key: entry.Key, Attributes: copyAttrs(entry.Attributes)}
	if len(entry.Relationships) > 0 {
		out.Relationships = make(map[string][]cache.Key)
		for ns, keys := range entry.Relationships {
			if filter != nil && !filter(ns) {
				continue
			}
			out.Relationships[ns] = append([]cache.Key(nil), keys...)
		}
	}
	return out
}

func copyAttrs(attrs cache.Attributes) cache.Attributes {
	out := make(cache.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
