// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cache holds the domain types of the caching layer: structured
// cache keys, cache entries, on-demand marker records, and the result
// builder used by both scheduled and on-demand reconciliation passes.
package cache

import (
	"strings"

	"github.com/juju/errors"
)

// Wildcard is the placeholder accepted in the id (and name) segment of a
// pattern key. A resource may be cached under a wildcard id before its
// real provider id is known.
const Wildcard = "*"

// Well-known namespaces. A namespace is one category of cached resource;
// relationship resolution walks entries across namespaces.
const (
	NamespaceLoadBalancers  = "loadBalancers"
	NamespaceVips           = "vips"
	NamespaceSubnets        = "subnets"
	NamespaceNetworks       = "networks"
	NamespaceFloatingIPs    = "floatingIPs"
	NamespaceHealthMonitors = "healthMonitors"
	NamespacePorts          = "ports"
	NamespaceOnDemand       = "onDemand"
)

const keySegments = 5

// Key identifies one cached resource. Two keys are equal iff every
// segment matches; a Wildcard id or name segment matches any value
// during pattern filtering only. Keys are immutable value types.
type Key struct {
	Namespace string
	Name      string
	ID        string
	Account   string
	Region    string
}

// NewKey returns a fully-qualified key for the given resource identity.
// Segments must not contain the separator character.
func NewKey(namespace, name, id, account, region string) Key {
	return Key{
		Namespace: namespace,
		Name:      name,
		ID:        id,
		Account:   account,
		Region:    region,
	}
}

// PatternKey returns a key usable with Store.FilterIdentifiers: the id
// segment is a wildcard matching any cached id.
func PatternKey(namespace, name, account, region string) Key {
	return NewKey(namespace, name, Wildcard, account, region)
}

// String renders the canonical wire form of the key,
// namespace:name:id:account:region.
func (k Key) String() string {
	return strings.Join([]string{k.Namespace, k.Name, k.ID, k.Account, k.Region}, ":")
}

// Validate checks that every segment is populated and separator-free.
// Wildcard segments are valid; pattern keys pass validation.
func (k Key) Validate() error {
	for _, seg := range []string{k.Namespace, k.Name, k.ID, k.Account, k.Region} {
		if seg == "" {
			return errors.NotValidf("key %q with empty segment", k.String())
		}
		if strings.Contains(seg, ":") {
			return errors.NotValidf("key segment %q", seg)
		}
	}
	return nil
}

// Matches reports whether k matches the given pattern: fixed segments
// must be equal, wildcard name/id segments in the pattern match any
// value. Namespace, account and region never match by wildcard.
func (k Key) Matches(pattern Key) bool {
	if k.Namespace != pattern.Namespace ||
		k.Account != pattern.Account ||
		k.Region != pattern.Region {
		return false
	}
	if pattern.Name != Wildcard && k.Name != pattern.Name {
		return false
	}
	if pattern.ID != Wildcard && k.ID != pattern.ID {
		return false
	}
	return true
}

// IsPattern reports whether the key carries a wildcard segment.
func (k Key) IsPattern() bool {
	return k.Name == Wildcard || k.ID == Wildcard
}

// ParseKey decodes the canonical wire form produced by Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != keySegments {
		return Key{}, errors.NotValidf("cache key %q", s)
	}
	k := Key{
		Namespace: parts[0],
		Name:      parts[1],
		ID:        parts[2],
		Account:   parts[3],
		Region:    parts[4],
	}
	if err := k.Validate(); err != nil {
		return Key{}, errors.Trace(err)
	}
	return k, nil
}
