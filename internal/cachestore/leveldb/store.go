// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package leveldb provides a durable cache store on a local LevelDB
// database. Entries are stored one per database key under a
// per-namespace prefix; a reconciliation Result is applied as a single
// write batch, so a pass is atomic with respect to readers.
package leveldb

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/cachestore"
)

// Store is a cachestore.Store backed by LevelDB.
type Store struct {
	db *leveldb.DB
}

var _ cachestore.Store = (*Store)(nil)

// Open opens (creating if necessary) a store at the given path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "opening cache store at %q", path)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type storedEntry struct {
	Key           string              `json:"key"`
	Attributes    cache.Attributes    `json:"attributes,omitempty"`
	Relationships map[string][]string `json:"relationships,omitempty"`
}

// Get implements cachestore.Store.
func (s *Store) Get(_ context.Context, namespace string, key cache.Key) (*cache.Entry, error) {
	raw, err := s.db.Get(dbKey(namespace, key), nil)
	if err == ldberrors.ErrNotFound {
		return nil, errors.NotFoundf("entry %q in namespace %q", key, namespace)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return decodeEntry(raw, nil)
}

// GetAll implements cachestore.Store. Missing keys are skipped.
func (s *Store) GetAll(ctx context.Context, namespace string, keys []cache.Key, filter cachestore.RelationshipFilter) ([]*cache.Entry, error) {
	entries := make([]*cache.Entry, 0, len(keys))
	for _, key := range keys {
		raw, err := s.db.Get(dbKey(namespace, key), nil)
		if err == ldberrors.ErrNotFound {
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		entry, err := decodeEntry(raw, filter)
		if err != nil {
			return nil, errors.Trace(err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FilterIdentifiers implements cachestore.Store. It iterates the
// namespace prefix and matches each stored key against the pattern;
// linear in the namespace size, which the reconciliation contract
// accepts.
func (s *Store) FilterIdentifiers(_ context.Context, namespace string, pattern cache.Key) ([]cache.Key, error) {
	prefix := nsPrefix(namespace)
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var keys []cache.Key
	for it.Next() {
		encoded := string(bytes.TrimPrefix(it.Key(), prefix))
		key, err := cache.ParseKey(encoded)
		if err != nil {
			return nil, errors.Annotatef(err, "corrupt cache key in namespace %q", namespace)
		}
		if key.Matches(pattern) {
			keys = append(keys, key)
		}
	}
	if err := it.Error(); err != nil {
		return nil, errors.Trace(err)
	}
	return keys, nil
}

// Put implements cachestore.Store. The whole result is written in one
// batch.
func (s *Store) Put(_ context.Context, result *cache.Result) error {
	batch := new(leveldb.Batch)
	for ns, nr := range result.Namespaces {
		for key, attrs := range nr.Keep {
			raw, err := encodeEntry(&cache.Entry{Key: key, Attributes: attrs})
			if err != nil {
				return errors.Annotatef(err, "encoding entry %q", key)
			}
			batch.Put(dbKey(ns, key), raw)
		}
		for _, key := range nr.Evict {
			batch.Delete(dbKey(ns, key))
		}
	}
	return errors.Trace(s.db.Write(batch, nil))
}

func nsPrefix(namespace string) []byte {
	return []byte(namespace + "|")
}

func dbKey(namespace string, key cache.Key) []byte {
	return append(nsPrefix(namespace), key.String()...)
}

func encodeEntry(entry *cache.Entry) ([]byte, error) {
	se := storedEntry{
		Key:        entry.Key.String(),
		Attributes: entry.Attributes,
	}
	if len(entry.Relationships) > 0 {
		se.Relationships = make(map[string][]string)
		for ns, keys := range entry.Relationships {
			for _, k := range keys {
				se.Relationships[ns] = append(se.Relationships[ns], k.String())
			}
		}
	}
	return json.Marshal(se)
}

func decodeEntry(raw []byte, filter cachestore.RelationshipFilter) (*cache.Entry, error) {
	// UseNumber keeps int64 attribute values (notably on-demand record
	// timestamps) exact instead of truncating through float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var se storedEntry
	if err := dec.Decode(&se); err != nil {
		return nil, errors.Trace(err)
	}
	key, err := cache.ParseKey(se.Key)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entry := &cache.Entry{Key: key, Attributes: se.Attributes}
	if entry.Attributes == nil {
		entry.Attributes = cache.Attributes{}
	}
	if len(se.Relationships) > 0 {
		entry.Relationships = make(map[string][]cache.Key)
		for ns, encoded := range se.Relationships {
			if filter != nil && !filter(ns) {
				continue
			}
			for _, e := range encoded {
				k, err := cache.ParseKey(e)
				if err != nil {
					return nil, errors.Trace(err)
				}
				entry.Relationships[ns] = append(entry.Relationships[ns], k)
			}
		}
	}
	return entry, nil
}
